// Package metrics provides Prometheus metrics for the sightline relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the relay.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Upload path
	uploadRequests  *prometheus.CounterVec
	filesStored     prometheus.Counter
	fileFailures    *prometheus.CounterVec
	jobsPublished   prometheus.Counter
	storeLatency    prometheus.Histogram
	publishLatency  prometheus.Histogram
	uploadFileBytes prometheus.Histogram

	// Delivery path
	eventsReceived  *prometheus.CounterVec
	eventsDelivered *prometheus.CounterVec
	eventsMissed    *prometheus.CounterVec
	eventsDuplicate prometheus.Counter

	// Sessions
	sessionsActive       prometheus.Gauge
	sessionsOpened       prometheus.Counter
	sessionsReplaced     prometheus.Counter
	handshakesRejected   *prometheus.CounterVec
	sessionWriteFailures prometheus.Counter

	// In-memory job queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Simulated worker
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	predictions             *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sightline",
		subsystem:        "relay",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	m.uploadRequests = m.counterVec("upload_requests_total", "Upload requests by outcome (ok, partial, failed, rejected)", "outcome")
	m.filesStored = m.counter("files_stored_total", "Files durably stored in the blob store")
	m.fileFailures = m.counterVec("file_failures_total", "Per-file upload failures by kind", "kind")
	m.jobsPublished = m.counter("jobs_published_total", "Analysis jobs published to the job queue")
	m.storeLatency = m.histogram("blob_store_latency_milliseconds", "Blob store put latency in milliseconds", m.histogramBuckets)
	m.publishLatency = m.histogram("job_publish_latency_milliseconds", "Job publish latency in milliseconds", m.histogramBuckets)
	m.uploadFileBytes = m.histogram("upload_file_bytes", "Size of accepted upload files in bytes",
		prometheus.ExponentialBuckets(1024, 4, 8))

	m.eventsReceived = m.counterVec("events_received_total", "Result and message reports received", "topic")
	m.eventsDelivered = m.counterVec("events_delivered_total", "Events pushed to a live session", "topic")
	m.eventsMissed = m.counterVec("events_missed_total", "Events dropped because no live session matched", "topic")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Result reports dropped as duplicates")

	m.sessionsActive = m.gauge("sessions_active", "Live sessions currently registered")
	m.sessionsOpened = m.counter("sessions_opened_total", "Session connections opened")
	m.sessionsReplaced = m.counter("sessions_replaced_total", "Registrations that replaced an older connection for the same uid")
	m.handshakesRejected = m.counterVec("handshakes_rejected_total", "Session handshakes rejected", "reason")
	m.sessionWriteFailures = m.counter("session_write_failures_total", "Failed writes to a live session")

	m.queueSize = m.gauge("queue_size", "Current size of the in-memory job queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the in-memory job queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (0.0 to 1.0)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue failures")

	m.workerCount = m.gauge("worker_count", "Simulated analysis workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time to analyse one job", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Jobs the simulated worker failed to analyse")
	m.predictions = m.counterVec("predictions_total", "Predictions produced by label", "label")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that failed", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Upload path.

// RecordUploadRequest counts an upload request by outcome.
func RecordUploadRequest(outcome string) {
	globalManager.uploadRequests.WithLabelValues(outcome).Inc()
}

// RecordFileStored counts a stored file and observes its size.
func RecordFileStored(sizeBytes int) {
	globalManager.filesStored.Inc()
	globalManager.uploadFileBytes.Observe(float64(sizeBytes))
}

// RecordFileFailure counts a per-file failure of the given kind.
func RecordFileFailure(kind string) {
	globalManager.fileFailures.WithLabelValues(kind).Inc()
}

// RecordJobPublished counts a published job.
func RecordJobPublished() {
	globalManager.jobsPublished.Inc()
}

// RecordStoreLatency records blob store put latency.
func RecordStoreLatency(latencyMs float64) {
	globalManager.storeLatency.Observe(latencyMs)
}

// RecordPublishLatency records job publish latency.
func RecordPublishLatency(latencyMs float64) {
	globalManager.publishLatency.Observe(latencyMs)
}

// Delivery path.

// RecordEventReceived counts an inbound report.
func RecordEventReceived(topic string) {
	globalManager.eventsReceived.WithLabelValues(topic).Inc()
}

// RecordEventDelivered counts a pushed event.
func RecordEventDelivered(topic string) {
	globalManager.eventsDelivered.WithLabelValues(topic).Inc()
}

// RecordEventMissed counts an event with no matching session.
func RecordEventMissed(topic string) {
	globalManager.eventsMissed.WithLabelValues(topic).Inc()
}

// RecordEventDuplicate counts a de-duplicated result report.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// Sessions.

// UpdateSessionsActive sets the number of registered sessions.
func UpdateSessionsActive(count int) {
	globalManager.sessionsActive.Set(float64(count))
}

// RecordSessionOpened counts an opened session.
func RecordSessionOpened() {
	globalManager.sessionsOpened.Inc()
}

// RecordSessionReplaced counts a replace-on-register.
func RecordSessionReplaced() {
	globalManager.sessionsReplaced.Inc()
}

// RecordHandshakeRejected counts a rejected handshake.
func RecordHandshakeRejected(reason string) {
	globalManager.handshakesRejected.WithLabelValues(reason).Inc()
}

// RecordSessionWriteFailure counts a failed push.
func RecordSessionWriteFailure() {
	globalManager.sessionWriteFailures.Inc()
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordPrediction counts a prediction by label.
func RecordPrediction(label string) {
	globalManager.predictions.WithLabelValues(label).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
