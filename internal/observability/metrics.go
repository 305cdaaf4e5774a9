// Package observability exposes Prometheus metrics for the memory engine.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type engineMetrics struct {
	registry *prometheus.Registry

	searchTotal    *prometheus.CounterVec
	searchDuration prometheus.Histogram
	syncTotal      *prometheus.CounterVec
	syncDuration   prometheus.Histogram

	indexedFiles  prometheus.Gauge
	indexedChunks prometheus.Gauge

	compactionTotal *prometheus.CounterVec
	watcherEvents   *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *engineMetrics
)

func getMetrics() *engineMetrics {
	metricsOnce.Do(func() {
		registry := prometheus.NewRegistry()

		m := &engineMetrics{
			registry: registry,
			searchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_search_total",
					Help: "Total memory searches by status.",
				},
				[]string{"status"},
			),
			searchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Memory search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			syncTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_sync_total",
					Help: "Total memory syncs by status.",
				},
				[]string{"status"},
			),
			syncDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_sync_duration_seconds",
					Help:    "Memory sync duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			indexedFiles: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_indexed_files",
					Help: "Current count of indexed files.",
				},
			),
			indexedChunks: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_indexed_chunks",
					Help: "Current count of indexed chunks.",
				},
			),
			compactionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_compaction_files_total",
					Help: "Total short-term files compacted by strategy.",
				},
				[]string{"strategy"},
			),
			watcherEvents: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_watcher_events_total",
					Help: "Total file watcher events by change type.",
				},
				[]string{"change"},
			),
		}

		registry.MustRegister(
			m.searchTotal,
			m.searchDuration,
			m.syncTotal,
			m.syncDuration,
			m.indexedFiles,
			m.indexedChunks,
			m.compactionTotal,
			m.watcherEvents,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns an HTTP handler serving the metrics endpoint.
func MetricsHandler() http.Handler {
	m := getMetrics()
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the engine's metric registry.
func Registry() *prometheus.Registry {
	return getMetrics().registry
}

func RecordSearch(duration time.Duration, success bool) {
	m := getMetrics()
	m.searchTotal.WithLabelValues(statusLabel(success)).Inc()
	m.searchDuration.Observe(duration.Seconds())
}

func RecordSync(duration time.Duration, success bool) {
	m := getMetrics()
	m.syncTotal.WithLabelValues(statusLabel(success)).Inc()
	m.syncDuration.Observe(duration.Seconds())
}

func SetIndexSize(files, chunks int) {
	m := getMetrics()
	m.indexedFiles.Set(float64(files))
	m.indexedChunks.Set(float64(chunks))
}

func RecordCompaction(strategy string, files int) {
	m := getMetrics()
	m.compactionTotal.WithLabelValues(strategy).Add(float64(files))
}

func RecordWatcherEvent(change string) {
	m := getMetrics()
	m.watcherEvents.WithLabelValues(change).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
