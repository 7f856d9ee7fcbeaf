// Package metrics exposes Prometheus metrics for retrieval runs.
//
// Every Collector owns its own registry so that several runs (or tests) in
// one process do not collide. Record methods are safe on a nil *Collector.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chunk outcomes.
const (
	OutcomeRetrieved = "retrieved"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Collector provides application metrics collection
type Collector struct {
	registry *prometheus.Registry

	// Retrieval Metrics
	ChunksTotal       *prometheus.CounterVec
	RetriesTotal      *prometheus.CounterVec
	BytesDownloaded   *prometheus.CounterVec
	RetrievalDuration *prometheus.HistogramVec

	// Codec Metrics
	CodecDuration    *prometheus.HistogramVec
	CodecErrorsTotal *prometheus.CounterVec

	// Postprocessing Metrics
	PhaseDuration *prometheus.HistogramVec
	MergedYears   *prometheus.GaugeVec
	AlignedTotal  *prometheus.CounterVec
}

// NewCollector creates a new metrics collector
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		ChunksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_total",
				Help:      "Chunks processed by variable and outcome",
			},
			[]string{"variable", "outcome"},
		),

		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retried transfer attempts by variable",
			},
			[]string{"variable"},
		),

		BytesDownloaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloaded_bytes_total",
				Help:      "Bytes downloaded from the archive by variable",
			},
			[]string{"variable"},
		),

		RetrievalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_duration_seconds",
				Help:      "Duration of a chunk retrieval including queueing at the archive",
				Buckets:   []float64{10, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
			},
			[]string{"variable"},
		),

		CodecDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "codec_duration_seconds",
				Help:      "Duration of codec operations",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"op"},
		),

		CodecErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "codec_errors_total",
				Help:      "Failed codec operations",
			},
			[]string{"op"},
		),

		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of pipeline phases by variable",
				Buckets:   []float64{1, 10, 60, 300, 900, 3600, 14400, 43200},
			},
			[]string{"variable", "phase"},
		),

		MergedYears: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "merged_years",
				Help:      "Years covered by the cumulative merged archive",
			},
			[]string{"variable", "frequency"},
		),

		AlignedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aligned_total",
				Help:      "Archives whose time axis was shifted to the month start",
			},
			[]string{"variable"},
		),
	}
}

// Registry returns the registry the collector registers with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics in text format for the node exporter's
// textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

// RecordChunk counts a chunk outcome.
func (c *Collector) RecordChunk(variable, outcome string) {
	if c == nil {
		return
	}
	c.ChunksTotal.WithLabelValues(variable, outcome).Inc()
}

// RecordRetry counts a retried attempt.
func (c *Collector) RecordRetry(variable string) {
	if c == nil {
		return
	}
	c.RetriesTotal.WithLabelValues(variable).Inc()
}

// RecordDownload records a completed transfer.
func (c *Collector) RecordDownload(variable string, n int64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.BytesDownloaded.WithLabelValues(variable).Add(float64(n))
	c.RetrievalDuration.WithLabelValues(variable).Observe(elapsed.Seconds())
}

// ObserveCodec records a codec call. Its signature matches codec.ObserveFunc.
func (c *Collector) ObserveCodec(op string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.CodecDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		c.CodecErrorsTotal.WithLabelValues(op).Inc()
	}
}

// ObservePhase records the duration of a pipeline phase.
func (c *Collector) ObservePhase(variable, phase string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.PhaseDuration.WithLabelValues(variable, phase).Observe(elapsed.Seconds())
}

// SetMergedYears records the span of a merged archive.
func (c *Collector) SetMergedYears(variable, frequency string, years int) {
	if c == nil {
		return
	}
	c.MergedYears.WithLabelValues(variable, frequency).Set(float64(years))
}

// RecordAlignment counts a shifted archive.
func (c *Collector) RecordAlignment(variable string) {
	if c == nil {
		return
	}
	c.AlignedTotal.WithLabelValues(variable).Inc()
}
