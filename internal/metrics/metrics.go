// Package metrics provides Prometheus metrics for load runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

const namespace = "tripmerge"

// Metrics holds all load run metrics. A disabled instance accepts every call and records nothing.
type Metrics struct {
	// Counters
	BatchTransitions *prometheus.CounterVec
	RowsLoaded       *prometheus.CounterVec
	RowsMerged       *prometheus.CounterVec
	Downloads        *prometheus.CounterVec

	// Gauges
	ActiveWorkers prometheus.Gauge

	// Histograms
	StageDuration *prometheus.HistogramVec

	registry *prometheus.Registry
	enabled  bool
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Address serves /metrics while a run is in progress, e.g. ":9090". Empty disables the server.
	Address string `yaml:"address"`
	// TextFile receives a node_exporter textfile snapshot after the run.
	TextFile string `yaml:"textfile"`
}

// New creates a new metrics instance with its own registry.
func New(cfg Config) *Metrics {
	m := &Metrics{
		enabled:  cfg.Enabled,
		registry: prometheus.NewRegistry(),
	}
	if !cfg.Enabled {
		return m
	}

	m.BatchTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_transitions_total",
			Help:      "Batch state transitions by source type and state",
		},
		[]string{"source", "state"},
	)

	m.RowsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Rows loaded into staging relations",
		},
		[]string{"source"},
	)

	m.RowsMerged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_merged_total",
			Help:      "New rows inserted into master relations",
		},
		[]string{"source"},
	)

	m.Downloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Feed downloads by outcome",
		},
		[]string{"status"}, // "downloaded", "skipped", "failed"
	)

	m.ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_active",
			Help:      "Number of batches currently being processed",
		},
	)

	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	m.registry.MustRegister(
		m.BatchTransitions,
		m.RowsLoaded,
		m.RowsMerged,
		m.Downloads,
		m.ActiveWorkers,
		m.StageDuration,
	)
	return m
}

// IsEnabled returns true if metrics are enabled.
func (m *Metrics) IsEnabled() bool {
	return m.enabled
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if !m.enabled || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// WriteTextfile writes a snapshot in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if !m.enabled || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// RecordTransition counts a batch entering state.
func (m *Metrics) RecordTransition(source tripmerge.SourceType, state tripmerge.BatchState) {
	if m.enabled {
		m.BatchTransitions.WithLabelValues(string(source), string(state)).Inc()
	}
}

// RecordRowsLoaded adds staged rows for a source type.
func (m *Metrics) RecordRowsLoaded(source tripmerge.SourceType, rows int64) {
	if m.enabled {
		m.RowsLoaded.WithLabelValues(string(source)).Add(float64(rows))
	}
}

// RecordRowsMerged adds merged rows for a source type.
func (m *Metrics) RecordRowsMerged(source tripmerge.SourceType, rows int64) {
	if m.enabled {
		m.RowsMerged.WithLabelValues(string(source)).Add(float64(rows))
	}
}

// RecordDownload counts a feed download outcome.
func (m *Metrics) RecordDownload(status string) {
	if m.enabled {
		m.Downloads.WithLabelValues(status).Inc()
	}
}

// RecordStageDuration observes the duration of one pipeline stage.
func (m *Metrics) RecordStageDuration(stage tripmerge.Stage, d time.Duration) {
	if m.enabled {
		m.StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	}
}

// WorkerStarted and WorkerFinished track the active worker gauge.
func (m *Metrics) WorkerStarted() {
	if m.enabled {
		m.ActiveWorkers.Inc()
	}
}

func (m *Metrics) WorkerFinished() {
	if m.enabled {
		m.ActiveWorkers.Dec()
	}
}
