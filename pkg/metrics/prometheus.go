// Package metrics provides Prometheus metrics for the framecoach service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Advisory pipeline
	analyses           *prometheus.CounterVec
	analysisLatency    *prometheus.HistogramVec
	analyzerLatency    prometheus.Histogram
	commandsEmitted    *prometheus.CounterVec
	supersededResults  prometheus.Counter
	duplicateSubmits   prometheus.Counter
	overlayProjections *prometheus.CounterVec
	activeSessions     prometheus.Gauge

	// Template store
	templateOps     *prometheus.CounterVec
	templateLatency *prometheus.HistogramVec

	// Queue and workers
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueRejected *prometheus.CounterVec
	workerCount   prometheus.Gauge
	workerLatency prometheus.Histogram
	workerErrors  prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // service registry, no default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "framecoach",
		subsystem:        "advisor",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	msBuckets := []float64{5, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

	m.analyses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "analyses_total",
		Help: "Completed analysis requests by mode and outcome",
	}, []string{"mode", "outcome"})

	m.analysisLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "analysis_latency_milliseconds",
		Help:    "End-to-end analysis latency in milliseconds",
		Buckets: msBuckets,
	}, []string{"mode"})

	m.analyzerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "analyzer_latency_milliseconds",
		Help:    "Vision analyzer call latency in milliseconds",
		Buckets: msBuckets,
	})

	m.commandsEmitted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "commands_emitted_total",
		Help: "Correction commands surfaced, by rule and priority",
	}, []string{"rule", "priority"})

	m.supersededResults = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "superseded_results_total",
		Help: "Analyzer responses discarded because a newer request replaced them",
	})

	m.duplicateSubmits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "duplicate_submits_total",
		Help: "Asynchronous submissions ignored by request-id deduplication",
	})

	m.overlayProjections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "overlay_projections_total",
		Help: "Overlay projections by mode",
	}, []string{"mode"})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sessions",
		Help: "Sessions currently tracked by the orchestrator",
	})

	m.templateOps = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "template_operations_total",
		Help: "Template store operations by operation and outcome",
	}, []string{"op", "outcome"})

	m.templateLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "template_latency_milliseconds",
		Help:    "Template store latency in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"op"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_size",
		Help: "Analysis jobs waiting in the queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_capacity",
		Help: "Configured analysis queue capacity",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_enqueued_total",
		Help: "Analysis jobs accepted by the queue",
	})

	m.queueRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_rejected_total",
		Help: "Analysis jobs rejected by the queue, by reason",
	}, []string{"reason"})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "worker_count",
		Help: "Analysis workers running",
	})

	m.workerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "worker_job_latency_milliseconds",
		Help:    "Time a worker spends on one analysis job",
		Buckets: msBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "worker_errors_total",
		Help: "Analysis jobs that ended in an error",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "errors_total",
		Help: "Errors by component and kind",
	}, []string{"component", "kind"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system",
		Name: "memory_bytes",
		Help: "Heap bytes allocated",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system",
		Name: "goroutines",
		Help: "Number of goroutines",
	})
}

// Advisory pipeline.

// RecordAnalysis counts one finished analysis and observes its latency.
func RecordAnalysis(mode, outcome string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.analyses.WithLabelValues(mode, outcome).Inc()
	globalManager.analysisLatency.WithLabelValues(mode).Observe(latencyMs)
}

// RecordAnalyzerLatency observes the vision analyzer round trip.
func RecordAnalyzerLatency(latencyMs float64) {
	globalManager.analyzerLatency.Observe(latencyMs)
}

// RecordCommand counts a surfaced command.
func RecordCommand(rule, priority string) {
	globalManager.commandsEmitted.WithLabelValues(rule, priority).Inc()
}

// RecordSuperseded counts a discarded stale response.
func RecordSuperseded() {
	globalManager.supersededResults.Inc()
}

// RecordDuplicateSubmit counts a deduplicated async submission.
func RecordDuplicateSubmit() {
	globalManager.duplicateSubmits.Inc()
}

// RecordOverlayProjection counts an overlay projection.
func RecordOverlayProjection(mode string) {
	globalManager.overlayProjections.WithLabelValues(mode).Inc()
}

// UpdateActiveSessions sets the tracked session gauge.
func UpdateActiveSessions(n int) {
	globalManager.activeSessions.Set(float64(n))
}

// Template store.

// RecordTemplateOp counts a template store operation and its latency.
func RecordTemplateOp(op, outcome string, latencyMs float64) {
	globalManager.templateOps.WithLabelValues(op, outcome).Inc()
	globalManager.templateLatency.WithLabelValues(op).Observe(latencyMs)
}

// Queue and workers.

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected counts a rejected job.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the worker gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerLatency observes the time spent on one job.
func RecordWorkerLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed job.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordError counts an error by component and kind.
func RecordError(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// Process.

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RefreshInterval returns how often the process refreshes gauge metrics.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// SetRefreshInterval changes the gauge refresh period of the global manager.
// Call it before starting the refresh loops; non-positive values are ignored.
func SetRefreshInterval(d time.Duration) {
	WithRefreshInterval(d)(globalManager)
}

// GetRegistry returns the registry the service's collectors live on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
