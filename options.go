package datasets

import (
	"net/http"
)

// Concurrency constants for artifact fetches.
const (
	// DefaultConcurrency is the default number of artifacts fetched at once.
	DefaultConcurrency = 4

	// MaxConcurrency is the maximum allowed concurrent artifact fetches.
	MaxConcurrency = 16
)

// Option configures a Fetcher or a Preparer.
type Option func(*options)

// options holds configuration shared by Fetcher and Preparer construction.
type options struct {
	// httpClient is used for all artifact downloads.
	httpClient HTTPClient

	// logger receives diagnostic log messages. May be nil.
	logger Logger

	// concurrency bounds the number of artifacts fetched in parallel.
	concurrency int

	// progressFn is called with progress updates during download and unpack.
	progressFn func(Progress)

	// metrics records cache and transfer counters. May be nil.
	metrics *Metrics

	// unpackers overrides the default unpacker per artifact format.
	unpackers map[Format]Unpacker
}

// newOptions returns options with default values.
// No request timeout is set: a hung transfer blocks until ctx is done.
func newOptions() *options {
	return &options{
		httpClient:  http.DefaultClient,
		concurrency: DefaultConcurrency,
	}
}

// WithHTTPClient sets a custom HTTP client for artifact downloads.
// Useful for testing with mock servers or customizing timeouts.
// If not set, http.DefaultClient is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConcurrency sets the number of artifacts fetched concurrently.
// Values are clamped to the range [1, MaxConcurrency].
// Default is DefaultConcurrency (4).
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		if n > MaxConcurrency {
			n = MaxConcurrency
		}
		o.concurrency = n
	}
}

// WithProgress sets a callback for progress updates.
// The callback is invoked from fetch goroutines and must be thread-safe.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) {
		o.progressFn = fn
	}
}

// WithMetrics records cache hits, misses and transfer volume into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithUnpacker replaces the unpacker used for artifacts of the given format.
// Passing a nil Unpacker leaves artifacts of that format as downloaded.
func WithUnpacker(format Format, u Unpacker) Option {
	return func(o *options) {
		if o.unpackers == nil {
			o.unpackers = make(map[Format]Unpacker)
		}
		o.unpackers[format] = u
	}
}

// HTTPClient is the interface for HTTP operations.
// *http.Client satisfies this interface.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the interface for diagnostic logging.
// Compatible with slog, zap, logrus, and other structured loggers.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}
