package datasets

import (
	"fmt"
	"strings"
)

// DefaultCacheDir is the cache root used when Config.CacheDir is empty.
const DefaultCacheDir = "./data"

// Config configures where datasets are cached.
type Config struct {
	// CacheDir is the cache root. Each dataset family gets a subdirectory.
	// If empty, DefaultCacheDir is used.
	CacheDir string
}

// cacheDir returns the configured cache root or the default.
func (c Config) cacheDir() string {
	if c.CacheDir == "" {
		return DefaultCacheDir
	}
	return c.CacheDir
}

// Format describes how a downloaded artifact is packaged.
type Format string

const (
	// FormatRaw is used as downloaded; nothing is unpacked.
	FormatRaw Format = "raw"

	// FormatTar is an uncompressed tar archive.
	FormatTar Format = "tar"

	// FormatTarGzip is a gzip-compressed tar archive.
	FormatTarGzip Format = "tar.gz"

	// FormatGzip is a single gzip-compressed file.
	FormatGzip Format = "gzip"
)

// ParseFormat parses a format name. The empty string is FormatRaw.
// "tgz" is accepted as an alias of "tar.gz" and "gz" of "gzip".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "raw":
		return FormatRaw, nil
	case "tar":
		return FormatTar, nil
	case "tar.gz", "tgz":
		return FormatTarGzip, nil
	case "gzip", "gz":
		return FormatGzip, nil
	default:
		return "", fmt.Errorf("%w: archive format %q", ErrUnsupportedFormat, s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so formats can be read
// from layout catalogs.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Progress reports the state of one artifact during preparation.
type Progress struct {
	// Phase indicates the current phase: "cached", "downloading", or "unpacking".
	Phase string

	// URL identifies the artifact being processed.
	URL string

	// BytesTotal is the expected artifact size in bytes.
	BytesTotal int64

	// BytesCompleted is the bytes received so far for this artifact.
	BytesCompleted int64

	// CurrentFile is the archive member being written during unpacking.
	CurrentFile string
}

// Progress phases.
const (
	PhaseCached      = "cached"
	PhaseDownloading = "downloading"
	PhaseUnpacking   = "unpacking"
)
