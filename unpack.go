package datasets

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Unpacker extracts a downloaded artifact into destDir. After a successful
// Unpack the files the archive contains must exist under destDir.
type Unpacker interface {
	Unpack(ctx context.Context, archivePath, destDir string) error
}

// UnpackerFunc adapts a function to the Unpacker interface.
type UnpackerFunc func(ctx context.Context, archivePath, destDir string) error

// Unpack calls f.
func (f UnpackerFunc) Unpack(ctx context.Context, archivePath, destDir string) error {
	return f(ctx, archivePath, destDir)
}

// NewUnpacker returns the built-in unpacker for a format.
// FormatRaw has no unpacker and yields nil.
func NewUnpacker(format Format) (Unpacker, error) {
	return newUnpacker(format, nil)
}

func newUnpacker(format Format, onFile func(name string)) (Unpacker, error) {
	switch format {
	case FormatRaw, "":
		return nil, nil
	case FormatTar:
		return &tarUnpacker{onFile: onFile}, nil
	case FormatTarGzip:
		return &tarUnpacker{gzipped: true, onFile: onFile}, nil
	case FormatGzip:
		return &gzipUnpacker{onFile: onFile}, nil
	default:
		return nil, fmt.Errorf("%w: archive format %q", ErrUnsupportedFormat, string(format))
	}
}

// tarUnpacker extracts regular files and directories from a tar stream.
// Links, devices and other entry types are skipped.
type tarUnpacker struct {
	// gzipped selects a gzip decompressor in front of the tar reader.
	gzipped bool

	// onFile is called with each member name before it is written. May be nil.
	onFile func(name string)
}

func (u *tarUnpacker) Unpack(ctx context.Context, archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer f.Close()

	var r io.Reader = f
	if u.gzipped {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: opening gzip stream %s: %v", ErrUnsupportedFormat, archivePath, err)
		}
		defer zr.Close()
		r = zr
	}

	if err := ensureDir(destDir); err != nil {
		return err
	}

	tr := tar.NewReader(r)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: reading tar %s: %v", ErrIO, archivePath, err)
		}

		target, err := memberPath(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := ensureDir(target); err != nil {
				return err
			}
		case tar.TypeReg:
			if u.onFile != nil {
				u.onFile(hdr.Name)
			}
			if err := writeMember(target, tr, hdr.Size); err != nil {
				return fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
		}
	}
}

// gzipUnpacker decompresses a single gzip file next to the archive name
// with the ".gz" suffix removed, or under the name recorded in the header.
type gzipUnpacker struct {
	// onFile is called with the output name before it is written. May be nil.
	onFile func(name string)
}

func (u *gzipUnpacker) Unpack(ctx context.Context, archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: opening gzip stream %s: %v", ErrUnsupportedFormat, archivePath, err)
	}
	defer zr.Close()

	base := filepath.Base(archivePath)
	name := strings.TrimSuffix(base, ".gz")
	if name == base {
		name = zr.Name
	}
	if name == "" {
		return fmt.Errorf("%w: cannot name output of %s", ErrUnsupportedFormat, archivePath)
	}

	target, err := memberPath(destDir, name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.onFile != nil {
		u.onFile(name)
	}
	return writeMember(target, zr, -1)
}

// memberPath resolves an archive member name under destDir, rejecting names
// that would escape it.
func memberPath(destDir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: archive member %q escapes destination", ErrUnsupportedFormat, name)
	}
	return filepath.Join(destDir, clean), nil
}

// writeMember streams r into path through a temporary file, so an
// interrupted extraction never leaves a truncated file under the final name.
// A non-negative size is enforced exactly.
func writeMember(path string, r io.Reader, size int64) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	written, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("wrote %d bytes, expected %d", written, size)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}
