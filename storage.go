package datasets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DefaultLockTimeout is the default timeout for acquiring file locks.
const DefaultLockTimeout = 30 * time.Minute

// storage handles all local filesystem operations under the cache root.
type storage struct {
	// baseDir is the cache root.
	baseDir string
}

// newStorage creates a storage rooted at the configured cache directory.
// The directory itself is created lazily on first write.
func newStorage(cfg Config) *storage {
	return &storage{baseDir: cfg.cacheDir()}
}

// familyDir returns the directory artifacts of a dataset family are fetched into.
func (s *storage) familyDir(family string) string {
	return filepath.Join(s.baseDir, family)
}

// datasetDir returns the directory holding a dataset's unpacked files.
func (s *storage) datasetDir(layout Layout) string {
	return filepath.Join(s.familyDir(layout.Family), layout.Subdir)
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %v", ErrIO, path, err)
	}
	return nil
}

// atomicWrite writes data to path using write-sync-rename, so readers see
// either the previous file or the complete new one, never a prefix.
func atomicWrite(path string, data []byte) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", ErrIO, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: failed to write temp file: %v", ErrIO, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: failed to sync temp file: %v", ErrIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: failed to close temp file: %v", ErrIO, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // cleanup on failure
		return fmt.Errorf("%w: failed to rename temp file: %v", ErrIO, err)
	}

	return nil
}

// missingFiles returns the entries of names that do not exist as regular
// files under dir, in order.
func missingFiles(dir string, names []string) []string {
	var missing []string
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, name)
		}
	}
	return missing
}

// joinAll joins every name onto dir.
func joinAll(dir string, names []string) []string {
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths
}

// removeAll deletes a directory tree.
func removeAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: failed to remove %s: %v", ErrIO, path, err)
	}
	return nil
}

// removeFiles deletes each file, ignoring ones that do not exist.
func removeFiles(paths ...string) error {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: failed to remove %s: %v", ErrIO, path, err)
		}
	}
	return nil
}
