package datasets

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// RemoteArtifact identifies one downloadable file.
// It is a value type; copies are independent and never mutated.
type RemoteArtifact struct {
	// URL is the HTTP(S) location of the file.
	URL string `yaml:"url"`

	// Size is the exact size in bytes the remote must advertise and deliver.
	Size uint64 `yaml:"size"`

	// Digest is the expected content digest, "<hex>" for MD5 or
	// "<algo>:<hex>". Empty means the digest is not checked.
	Digest string `yaml:"digest,omitempty"`

	// Format says how the file is packaged and which Unpacker applies.
	Format Format `yaml:"format,omitempty"`
}

// NewRemoteArtifact returns a descriptor for a raw file.
func NewRemoteArtifact(rawURL string, size uint64, digest string) RemoteArtifact {
	return RemoteArtifact{URL: rawURL, Size: size, Digest: digest, Format: FormatRaw}
}

// FileName returns the final path segment of the URL.
// Returns ErrMalformedURL if the URL cannot be parsed or names no file.
func (a RemoteArtifact) FileName() (string, error) {
	u, err := url.Parse(a.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no scheme or host", ErrMalformedURL, a.URL)
	}

	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return "", fmt.Errorf("%w: %q has no path segment", ErrMalformedURL, a.URL)
	}
	name := path.Base(u.Path)
	if name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q has no path segment", ErrMalformedURL, a.URL)
	}
	return name, nil
}

// ResolveLocalPath returns where the artifact is stored under destDir.
func (a RemoteArtifact) ResolveLocalPath(destDir string) (string, error) {
	name, err := a.FileName()
	if err != nil {
		return "", err
	}
	return filepath.Join(destDir, name), nil
}

// LocalFileIsValid reports whether the file at path satisfies the descriptor:
// it exists, its size equals Size, and, when Digest is set, its content
// digest matches. Any error while checking counts as invalid.
func (a RemoteArtifact) LocalFileIsValid(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if uint64(info.Size()) != a.Size {
		return false
	}
	if a.Digest == "" {
		return true
	}

	algo, want, err := ParseDigest(a.Digest)
	if err != nil {
		return false
	}
	got, err := DigestFile(path, algo)
	if err != nil {
		return false
	}
	return got == want
}

// Fetcher materialises remote artifacts in a local directory.
// A Fetcher is safe for concurrent use on distinct artifacts.
type Fetcher struct {
	// transfer performs the HTTP downloads.
	transfer *transferClient

	// logger receives diagnostic messages. May be nil.
	logger Logger

	// progressFn receives per-artifact progress. May be nil.
	progressFn func(Progress)

	// metrics records cache and transfer counters. May be nil.
	metrics *Metrics

	// lockTimeout bounds the wait for another process materialising the same file.
	lockTimeout time.Duration
}

// NewFetcher creates a Fetcher. Recognised options are WithHTTPClient,
// WithLogger, WithProgress and WithMetrics.
func NewFetcher(opts ...Option) *Fetcher {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newFetcher(o)
}

func newFetcher(o *options) *Fetcher {
	return &Fetcher{
		transfer:    newTransferClient(o.httpClient, o.logger),
		logger:      o.logger,
		progressFn:  o.progressFn,
		metrics:     o.metrics,
		lockTimeout: DefaultLockTimeout,
	}
}

// EnsureLocal makes sure a valid copy of a exists under destDir and returns
// its path. A file that already satisfies the descriptor is returned without
// any network access. Otherwise the artifact is downloaded, checked against
// its digest, and written atomically; on a digest mismatch nothing is written.
func (f *Fetcher) EnsureLocal(ctx context.Context, a RemoteArtifact, destDir string) (string, error) {
	target, err := a.ResolveLocalPath(destDir)
	if err != nil {
		return "", err
	}

	if a.LocalFileIsValid(target) {
		f.cacheHit(a, target)
		return target, nil
	}

	if err := ensureDir(destDir); err != nil {
		return "", err
	}

	lockPath := target + ".lock"
	lock, err := newFileLock(lockPath, f.lockTimeout)
	if err != nil {
		return "", err
	}
	if err := lock.Lock(ctx); err != nil {
		lock.Unlock()
		return "", fmt.Errorf("locking %s: %w", target, err)
	}
	// Once the target is valid the lock file is no longer needed. A failed
	// download leaves it for the next attempt.
	stored := false
	defer func() {
		lock.Unlock()
		if stored {
			os.Remove(lockPath)
		}
	}()

	// Another process may have finished the download while we waited.
	if a.LocalFileIsValid(target) {
		stored = true
		f.cacheHit(a, target)
		return target, nil
	}

	if f.metrics != nil {
		f.metrics.cacheMisses.Inc()
	}
	if f.logger != nil {
		f.logger.Info("downloading artifact", "url", a.URL, "size", a.Size, "path", target)
	}

	start := time.Now()
	data, err := f.transfer.fetch(ctx, a.URL, a.Size, f.progressCallback(a))
	if err != nil {
		f.fetchFailed(err)
		return "", err
	}

	if a.Digest != "" {
		if err := verifyDigest(data, a.Digest); err != nil {
			f.fetchFailed(err)
			return "", fmt.Errorf("artifact %s: %w", a.URL, err)
		}
	}

	if err := atomicWrite(target, data); err != nil {
		f.fetchFailed(err)
		return "", err
	}
	stored = true

	if f.metrics != nil {
		f.metrics.bytesDownloaded.Add(float64(len(data)))
		f.metrics.fetchDuration.Observe(time.Since(start).Seconds())
	}
	if f.logger != nil {
		f.logger.Debug("artifact stored", "path", target, "bytes", len(data), "elapsed", time.Since(start))
	}

	return target, nil
}

// cacheHit records and reports a fast-path return.
func (f *Fetcher) cacheHit(a RemoteArtifact, target string) {
	if f.metrics != nil {
		f.metrics.cacheHits.Inc()
	}
	if f.logger != nil {
		f.logger.Debug("artifact cache hit", "path", target)
	}
	if f.progressFn != nil {
		size := int64(a.Size)
		f.progressFn(Progress{Phase: PhaseCached, URL: a.URL, BytesTotal: size, BytesCompleted: size})
	}
}

// fetchFailed counts a failed materialisation by error kind.
func (f *Fetcher) fetchFailed(err error) {
	if f.metrics != nil {
		f.metrics.fetchFailures.WithLabelValues(failureReason(err)).Inc()
	}
}

// progressCallback converts transfer deltas into cumulative Progress reports.
func (f *Fetcher) progressCallback(a RemoteArtifact) func(delta int64) {
	if f.progressFn == nil {
		return nil
	}

	var completed int64
	total := int64(a.Size)
	f.progressFn(Progress{Phase: PhaseDownloading, URL: a.URL, BytesTotal: total})
	return func(delta int64) {
		done := atomic.AddInt64(&completed, delta)
		f.progressFn(Progress{Phase: PhaseDownloading, URL: a.URL, BytesTotal: total, BytesCompleted: done})
	}
}
