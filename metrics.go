package datasets

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps Prometheus collectors for artifact acquisition.
// It owns a private registry so several Preparers in one process can share
// it without touching the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	bytesDownloaded prometheus.Counter
	fetchFailures   *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	unpackedFiles   prometheus.Counter
}

// NewMetrics creates a Metrics with its own Prometheus registry.
func NewMetrics() *Metrics {
	const ns = "xprim_datasets"

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_hits_total",
			Help:      "Artifacts served from a valid local copy without network access",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_misses_total",
			Help:      "Artifacts that had to be downloaded",
		}),
		bytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "bytes_downloaded_total",
			Help:      "Verified artifact bytes written to the cache",
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "fetch_failures_total",
			Help:      "Failed artifact materialisations by reason",
		}, []string{"reason"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "fetch_duration_seconds",
			Help:      "Time from request to verified write for downloaded artifacts",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		unpackedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "unpacked_files_total",
			Help:      "Files written while unpacking archives",
		}),
	}

	m.registry.MustRegister(
		m.cacheHits,
		m.cacheMisses,
		m.bytesDownloaded,
		m.fetchFailures,
		m.fetchDuration,
		m.unpackedFiles,
	)
	return m
}

// Registry returns the registry holding the collectors, for callers that
// serve or push metrics themselves.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the text exposition format,
// for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// failureReason maps an acquisition error to a bounded label value.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrSizeMismatch):
		return "size"
	case errors.Is(err, ErrHTTPStatus):
		return "status"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
