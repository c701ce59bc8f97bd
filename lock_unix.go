//go:build !windows

package datasets

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryLockFile takes a non-blocking flock() advisory lock.
func tryLockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
