// Package metrics provides Prometheus metrics for the argopipe ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// File-level outcomes
	filesProcessed prometheus.Counter
	filesAborted   *prometheus.CounterVec // labeled by stage

	// Observation-level quality outcomes
	observationsAccepted prometheus.Counter
	observationsFlagged  prometheus.Counter
	observationsRejected *prometheus.CounterVec // labeled by reason

	// Stage performance
	stageDuration *prometheus.HistogramVec // labeled by stage

	// Batch health
	workerCount   prometheus.Gauge
	filesInFlight prometheus.Gauge

	// Export artifacts
	artifactsWritten *prometheus.CounterVec // labeled by kind
	exportErrors     prometheus.Counter

	// Decode resilience
	decodeFallbacks *prometheus.CounterVec // labeled by field
}

var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// customRegistry keeps pipeline metrics off the default registry.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() {
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "argopipe",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.filesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "files_processed_total",
		Help:      "Total number of profile files that reached the Done state",
	})

	m.filesAborted = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "files_aborted_total",
			Help:      "Total number of profile files aborted, by pipeline stage",
		},
		[]string{"stage"},
	)

	m.observationsAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "observations_accepted_total",
		Help:      "Total number of observations retained after quality filtering",
	})

	m.observationsFlagged = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "observations_flagged_total",
		Help:      "Total number of observations retained with review-class quality flags",
	})

	m.observationsRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "observations_rejected_total",
			Help:      "Total number of observations excluded, by reason",
		},
		[]string{"reason"},
	)

	m.stageDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage per file",
			Buckets:   m.histogramBuckets,
		},
		[]string{"stage"},
	)

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Configured number of batch workers",
	})

	m.filesInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "files_in_flight",
		Help:      "Number of files currently being processed",
	})

	m.artifactsWritten = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "artifacts_written_total",
			Help:      "Total number of output artifacts committed, by kind",
		},
		[]string{"kind"},
	)

	m.exportErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "export_errors_total",
		Help:      "Total number of artifact write failures",
	})

	m.decodeFallbacks = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "decode_fallbacks_total",
			Help:      "Total number of identification-field decodes that fell back to a sentinel default",
		},
		[]string{"field"},
	)
}

// Package-level helpers operating on the global manager.

// RecordFileProcessed increments the processed-file counter.
func RecordFileProcessed() {
	globalManager.filesProcessed.Inc()
}

// RecordFileAborted increments the aborted-file counter for a stage.
func RecordFileAborted(stage string) {
	globalManager.filesAborted.WithLabelValues(stage).Inc()
}

// RecordObservationAccepted increments the accepted-observation counter.
func RecordObservationAccepted() {
	globalManager.observationsAccepted.Inc()
}

// RecordObservationFlagged increments the flagged-observation counter.
func RecordObservationFlagged() {
	globalManager.observationsFlagged.Inc()
}

// RecordObservationRejected increments the rejected-observation counter for a reason.
func RecordObservationRejected(reason string) {
	globalManager.observationsRejected.WithLabelValues(reason).Inc()
}

// RecordStageDuration observes a stage duration in seconds.
func RecordStageDuration(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// UpdateWorkerCount sets the configured worker gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateFilesInFlight sets the in-flight file gauge.
func UpdateFilesInFlight(count int) {
	globalManager.filesInFlight.Set(float64(count))
}

// RecordArtifactWritten increments the committed-artifact counter for a kind.
func RecordArtifactWritten(kind string) {
	globalManager.artifactsWritten.WithLabelValues(kind).Inc()
}

// RecordExportError increments the export-error counter.
func RecordExportError() {
	globalManager.exportErrors.Inc()
}

// RecordDecodeFallback increments the decode-fallback counter for a field.
func RecordDecodeFallback(field string) {
	globalManager.decodeFallbacks.WithLabelValues(field).Inc()
}

// GetRegistry returns the custom registry metrics are registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
