// Package metrics provides Prometheus metrics for the zen event pipeline.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Feed
	eventsReceived   *prometheus.CounterVec
	eventsProcessed  *prometheus.CounterVec
	eventsDuplicate  prometheus.Counter
	eventsFailed     *prometheus.CounterVec
	dispatchLatency  prometheus.Histogram
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueRejected    prometheus.Counter
	workerCount      prometheus.Gauge
	workerErrors     prometheus.Counter
	workerLatency    prometheus.Histogram

	// Ledgers and enforcement
	grants          *prometheus.CounterVec
	levelUps        prometheus.Counter
	rewardsReached  *prometheus.CounterVec
	hashtagVerdicts *prometheus.CounterVec
	cooldownChecks  *prometheus.CounterVec

	// Collaborators
	policyLookups   *prometheus.CounterVec
	sinkFailures    *prometheus.CounterVec
	effectsDropped  prometheus.Counter
	storeLatency    *prometheus.HistogramVec
	trackedMembers  *prometheus.GaugeVec
	processedSetLen prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	goroutines prometheus.Gauge
	heapBytes  prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served on /healthz

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init rebuilds every collector on a fresh registry served by GetRegistry.
// Call it once at startup, before any metric is recorded.
func Init(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	all := append(append([]Option(nil), opts...), WithPrometheusRegistry(customRegistry))
	globalManager = NewManager(all...)
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "zen",
		subsystem:        "pipeline",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.eventsReceived = m.counterVec("events_received_total", "Events accepted from the feed by kind", "kind")
	m.eventsProcessed = m.counterVec("events_processed_total", "Events fully dispatched by kind", "kind")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Redelivered events suppressed by the processed-set")
	m.eventsFailed = m.counterVec("events_failed_total", "Events that failed dispatch by reason", "reason")
	m.dispatchLatency = m.histogram("dispatch_latency_milliseconds", "Time spent dispatching one event")

	m.queueSize = m.gauge("queue_size", "Current size of the event queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Events enqueued")
	m.queueRejected = m.counter("queue_rejected_total", "Events rejected because the queue was full or closed")
	m.workerCount = m.gauge("worker_count", "Running dispatch workers")
	m.workerErrors = m.counter("worker_errors_total", "Dispatch errors observed by workers")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency")

	m.grants = m.counterVec("grants_total", "Ledger grant outcomes", "ledger", "outcome")
	m.levelUps = m.counter("level_ups_total", "Experience level transitions")
	m.rewardsReached = m.counterVec("rewards_reached_total", "Reward milestones crossed", "ledger")
	m.hashtagVerdicts = m.counterVec("hashtag_verdicts_total", "Hashtag enforcement verdicts", "verdict")
	m.cooldownChecks = m.counterVec("cooldown_checks_total", "Cooldown check-and-arm results", "action", "allowed")

	m.policyLookups = m.counterVec("policy_lookups_total", "Policy lookups by source and result", "source", "result")
	m.sinkFailures = m.counterVec("sink_failures_total", "Message action sink failures by action", "action")
	m.effectsDropped = m.counter("effects_dropped_total", "Side effects dropped because the runner was saturated")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Persistence operation latency", "op")
	m.trackedMembers = m.gaugeVec("tracked_members", "Members with a profile in the store", "ledger")
	m.processedSetLen = m.gauge("processed_set_size", "Entries held by the in-memory processed-set")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.goroutines = m.gauge("system_goroutine_count", "Number of goroutines")
	m.heapBytes = m.gauge("system_heap_alloc_bytes", "Heap bytes allocated")
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

// RecordEventReceived counts an event accepted from the feed.
func RecordEventReceived(kind string) { globalManager.eventsReceived.WithLabelValues(kind).Inc() }

// RecordEventProcessed counts a fully dispatched event.
func RecordEventProcessed(kind string) { globalManager.eventsProcessed.WithLabelValues(kind).Inc() }

// RecordEventDuplicate counts a suppressed redelivery.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordEventFailed counts a failed dispatch.
func RecordEventFailed(reason string) { globalManager.eventsFailed.WithLabelValues(reason).Inc() }

// RecordDispatchLatency records dispatch latency in milliseconds.
func RecordDispatchLatency(ms float64) { globalManager.dispatchLatency.Observe(ms) }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue counts an enqueued event.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueRejected counts an event the queue refused.
func RecordQueueRejected() { globalManager.queueRejected.Inc() }

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerError counts a worker-side dispatch error.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordWorkerProcessingLatency records worker latency in milliseconds.
func RecordWorkerProcessingLatency(ms float64) { globalManager.workerLatency.Observe(ms) }

// RecordGrant counts a ledger outcome ("applied" or a rejection reason).
func RecordGrant(ledger, outcome string) { globalManager.grants.WithLabelValues(ledger, outcome).Inc() }

// RecordLevelUp counts an experience level transition.
func RecordLevelUp() { globalManager.levelUps.Inc() }

// RecordRewardReached counts a crossed reward milestone.
func RecordRewardReached(ledger string) { globalManager.rewardsReached.WithLabelValues(ledger).Inc() }

// RecordHashtagVerdict counts a hashtag verdict.
func RecordHashtagVerdict(verdict string) { globalManager.hashtagVerdicts.WithLabelValues(verdict).Inc() }

// RecordCooldownCheck counts a cooldown check-and-arm call.
func RecordCooldownCheck(action string, allowed bool) {
	label := "false"
	if allowed {
		label = "true"
	}
	globalManager.cooldownChecks.WithLabelValues(action, label).Inc()
}

// RecordPolicyLookup counts a policy lookup ("hit", "miss" or "error").
func RecordPolicyLookup(source, result string) {
	globalManager.policyLookups.WithLabelValues(source, result).Inc()
}

// RecordSinkFailure counts a failed message action.
func RecordSinkFailure(action string) { globalManager.sinkFailures.WithLabelValues(action).Inc() }

// RecordEffectDropped counts a side effect dropped by the runner.
func RecordEffectDropped() { globalManager.effectsDropped.Inc() }

// RecordStoreLatency records persistence latency in milliseconds.
func RecordStoreLatency(op string, ms float64) { globalManager.storeLatency.WithLabelValues(op).Observe(ms) }

// UpdateTrackedMembers sets the member count for a ledger.
func UpdateTrackedMembers(ledger string, count int) {
	globalManager.trackedMembers.WithLabelValues(ledger).Set(float64(count))
}

// UpdateProcessedSetSize sets the processed-set size.
func UpdateProcessedSetSize(size int64) { globalManager.processedSetLen.Set(float64(size)) }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMetrics samples goroutine and heap gauges.
func UpdateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	globalManager.goroutines.Set(float64(runtime.NumGoroutine()))
	globalManager.heapBytes.Set(float64(ms.HeapAlloc))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
