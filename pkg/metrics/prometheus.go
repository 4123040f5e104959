// Package metrics provides Prometheus metrics for the trailvote service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the trailvote service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	latencyBuckets   []float64
	registry         prometheus.Registerer

	// Stream ingestion
	eventsReceived  prometheus.Counter
	eventsWatched   prometheus.Counter
	eventsDuplicate prometheus.Counter
	streamErrors    *prometheus.CounterVec
	reconnects      prometheus.Counter
	backoffSeconds  prometheus.Gauge
	lastBlock       prometheus.Gauge
	contentLatency  prometheus.Histogram

	// Rule evaluation and dispatch
	trailDecisions *prometheus.CounterVec
	ballotsQueued  prometheus.Counter
	ballotsDropped *prometheus.CounterVec
	ballotsSkipped prometheus.Counter

	// Broadcast
	broadcasts       *prometheus.CounterVec
	broadcastLatency prometheus.Histogram
	resultsPublished *prometheus.CounterVec

	// Queue and workers
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	workerCount   prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "trailvote",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		latencyBuckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.eventsReceived = m.counter("events_received_total", "Vote operations delivered by the upstream stream")
	m.eventsWatched = m.counter("events_watched_total", "Vote operations cast by a watched account")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Vote operations dropped as redeliveries after a reconnect")
	m.streamErrors = m.counterVec("stream_errors_total", "Stream iterations that ended in an error, by kind", "kind")
	m.reconnects = m.counter("stream_reconnects_total", "Subscriptions created by the consumer loop")
	m.backoffSeconds = m.gauge("stream_backoff_seconds", "Delay the consumer will wait after the next stream error")
	m.lastBlock = m.gauge("stream_last_block", "Block number of the most recently delivered vote operation")
	m.contentLatency = m.histogram("content_lookup_latency_milliseconds", "Content lookup latency in milliseconds", m.latencyBuckets)

	m.trailDecisions = m.counterVec("trail_decisions_total", "Eligibility decisions by trail and outcome", "trail", "reason")
	m.ballotsQueued = m.counter("ballots_queued_total", "Ballots accepted by the dispatch queue")
	m.ballotsDropped = m.counterVec("ballots_dropped_total", "Ballots rejected by the dispatch queue", "reason")
	m.ballotsSkipped = m.counter("ballots_skipped_total", "Voter identities skipped because they already voted on the content")

	m.broadcasts = m.counterVec("broadcasts_total", "Broadcast attempts by status", "status")
	m.broadcastLatency = m.histogram("broadcast_latency_milliseconds", "Broadcast round-trip latency in milliseconds", m.latencyBuckets)
	m.resultsPublished = m.counterVec("results_published_total", "Vote results handed to result sinks, by sink and outcome", "sink", "outcome")

	m.queueSize = m.gauge("queue_size", "Current number of ballots waiting in the dispatch queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum dispatch queue capacity")
	m.workerCount = m.gauge("worker_count", "Number of broadcast workers")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// RecordEventReceived increments the delivered vote operation counter.
func RecordEventReceived() { globalManager.eventsReceived.Inc() }

// RecordEventWatched increments the watched vote operation counter.
func RecordEventWatched() { globalManager.eventsWatched.Inc() }

// RecordEventDuplicate increments the redelivered vote operation counter.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordStreamError counts a failed stream iteration. kind is "transient" or "error".
func RecordStreamError(kind string) { globalManager.streamErrors.WithLabelValues(kind).Inc() }

// RecordReconnect counts a new subscription.
func RecordReconnect() { globalManager.reconnects.Inc() }

// UpdateBackoff sets the current backoff delay in seconds.
func UpdateBackoff(seconds float64) { globalManager.backoffSeconds.Set(seconds) }

// UpdateLastBlock sets the last delivered block number.
func UpdateLastBlock(block uint32) { globalManager.lastBlock.Set(float64(block)) }

// RecordContentLatency records content lookup latency in milliseconds.
func RecordContentLatency(latencyMs float64) { globalManager.contentLatency.Observe(latencyMs) }

// RecordTrailDecision counts an eligibility decision.
func RecordTrailDecision(trail, reason string) {
	globalManager.trailDecisions.WithLabelValues(trail, reason).Inc()
}

// RecordBallotQueued counts a ballot accepted by the queue.
func RecordBallotQueued() { globalManager.ballotsQueued.Inc() }

// RecordBallotDropped counts a ballot the queue refused.
func RecordBallotDropped(reason string) { globalManager.ballotsDropped.WithLabelValues(reason).Inc() }

// RecordBallotSkipped counts an identity skipped by the active-voter guard.
func RecordBallotSkipped() { globalManager.ballotsSkipped.Inc() }

// RecordBroadcast counts a broadcast attempt by status.
func RecordBroadcast(status string) { globalManager.broadcasts.WithLabelValues(status).Inc() }

// RecordBroadcastLatency records broadcast latency in milliseconds.
func RecordBroadcastLatency(latencyMs float64) { globalManager.broadcastLatency.Observe(latencyMs) }

// RecordResultPublished counts a result handed to a sink.
func RecordResultPublished(sink, outcome string) {
	globalManager.resultsPublished.WithLabelValues(sink, outcome).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
