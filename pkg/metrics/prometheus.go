// Package metrics exposes Prometheus instruments for the matchup service
// and the game client.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every instrument. A package-level instance backs the
// Record*/Update* helpers.
type Manager struct {
	namespace   string
	subsystem   string
	buckets     []float64
	constLabels prometheus.Labels
	registry    prometheus.Registerer

	// Gameplay
	comparisonsServed *prometheus.CounterVec
	batchesSelected   *prometheus.CounterVec
	selections        *prometheus.CounterVec
	selectionLatency  prometheus.Histogram
	streakLength      prometheus.Histogram

	// Stats pipeline
	statsSubmissions   prometheus.Counter
	statsDuplicates    prometheus.Counter
	profileUpdates     prometheus.Counter
	flushErrors        prometheus.Counter
	flushLatency       prometheus.Histogram
	missingAssetReport *prometheus.CounterVec

	// Store
	storeLatency  *prometheus.HistogramVec
	profilesTotal prometheus.Gauge

	// Client cache and prefetch
	cacheLookups     *prometheus.CounterVec
	prefetchOutcomes *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerActive       prometheus.Gauge
	workerLatency      prometheus.Histogram
	workerErrors       prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// Runtime
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
}

var (
	customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // shared exposition registry
	globalManager  *Manager                   //nolint:gochecknoglobals // backs the package helpers
)

func init() { //nolint:gochecknoinits // global manager bound to the custom registry
	globalManager = NewManager(WithRegisterer(customRegistry))
}

// NewManager builds a Manager and registers its instruments.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "ceoorcto",
		subsystem: "game",
		buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.register()
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

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.buckets,
	}, labels)
}

func (m *Manager) register() {
	m.comparisonsServed = m.counterVec("comparisons_served_total", "Comparisons returned, by variant", "variant")
	m.batchesSelected = m.counterVec("batches_selected_total", "Batches drawn by the selector, by mode (banded or shuffled)", "mode")
	m.selections = m.counterVec("selections_total", "Player picks, by correctness", "correct")
	m.selectionLatency = m.histogram("selection_latency_milliseconds", "Time spent drawing a batch", m.buckets)
	m.streakLength = m.histogram("streak_length", "Final streak when a game ends", []float64{0, 1, 2, 3, 5, 8, 13, 21, 34})

	m.statsSubmissions = m.counter("stats_submissions_total", "Accepted stats submissions")
	m.statsDuplicates = m.counter("stats_duplicates_total", "Stats submissions dropped as replays of a known batch")
	m.profileUpdates = m.counter("profile_updates_total", "Persisted per-profile counter increments")
	m.flushErrors = m.counter("flush_errors_total", "Failed batch flushes")
	m.flushLatency = m.histogram("flush_latency_milliseconds", "Time to persist one batch", m.buckets)
	m.missingAssetReport = m.counterVec("missing_asset_reports_total", "Client reports of broken images, by reason", "reason")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Profile store operation latency", "operation")
	m.profilesTotal = m.gauge("profiles_total", "Profiles in the store")

	m.cacheLookups = m.counterVec("client_cache_lookups_total", "Client comparison cache lookups, by result (hit, miss, corrupt, expired)", "result")
	m.prefetchOutcomes = m.counterVec("client_prefetch_total", "Client prefetch outcomes (started, used, discarded, failed)", "outcome")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.queueSize = m.gauge("flush_queue_size", "Jobs waiting in the flush queue")
	m.queueCapacity = m.gauge("flush_queue_capacity", "Flush queue capacity")
	m.queueEnqueued = m.counter("flush_queue_enqueued_total", "Jobs enqueued for flushing")
	m.queueDequeued = m.counter("flush_queue_dequeued_total", "Jobs taken by flush workers")
	m.queueEnqueueErrors = m.counter("flush_queue_enqueue_errors_total", "Jobs rejected by a full or closed queue")
	m.workerActive = m.gauge("flush_worker_active", "Flush workers currently running")
	m.workerLatency = m.histogram("flush_worker_latency_milliseconds", "Per-job flush worker latency", m.buckets)
	m.workerErrors = m.counter("flush_worker_errors_total", "Jobs the flush workers failed to submit")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.memoryUsage = m.gauge("system_memory_usage_bytes", "Heap in use")
	m.goroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordComparisonServed counts a comparison response for the given variant.
func RecordComparisonServed(variant string) {
	globalManager.comparisonsServed.WithLabelValues(variant).Inc()
}

// RecordBatchSelected counts a drawn batch. mode is "banded" or "shuffled".
func RecordBatchSelected(mode string) {
	globalManager.batchesSelected.WithLabelValues(mode).Inc()
}

// RecordSelection counts a player pick.
func RecordSelection(correct bool) {
	globalManager.selections.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

// RecordSelectionLatency observes batch draw time in milliseconds.
func RecordSelectionLatency(ms float64) { globalManager.selectionLatency.Observe(ms) }

// RecordStreak observes the final streak of a finished game.
func RecordStreak(streak int) { globalManager.streakLength.Observe(float64(streak)) }

// RecordStatsSubmission counts an accepted submission.
func RecordStatsSubmission() { globalManager.statsSubmissions.Inc() }

// RecordStatsDuplicate counts a replayed batch.
func RecordStatsDuplicate() { globalManager.statsDuplicates.Inc() }

// RecordProfileUpdates adds n persisted increments.
func RecordProfileUpdates(n int) { globalManager.profileUpdates.Add(float64(n)) }

// RecordFlushError counts a failed flush.
func RecordFlushError() { globalManager.flushErrors.Inc() }

// RecordFlushLatency observes flush time in milliseconds.
func RecordFlushLatency(ms float64) { globalManager.flushLatency.Observe(ms) }

// RecordMissingAsset counts a missing-asset report.
func RecordMissingAsset(reason string) {
	globalManager.missingAssetReport.WithLabelValues(reason).Inc()
}

// RecordStoreLatency observes a store operation in milliseconds.
func RecordStoreLatency(operation string, ms float64) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(ms)
}

// UpdateProfilesTotal sets the store size gauge.
func UpdateProfilesTotal(n int) { globalManager.profilesTotal.Set(float64(n)) }

// RecordCacheLookup counts a client cache lookup result.
func RecordCacheLookup(result string) {
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

// RecordPrefetch counts a prefetch outcome.
func RecordPrefetch(outcome string) {
	globalManager.prefetchOutcomes.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// UpdateQueueSize sets the flush queue backlog.
func UpdateQueueSize(n int) { globalManager.queueSize.Set(float64(n)) }

// UpdateQueueCapacity sets the flush queue capacity.
func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }

// RecordQueueEnqueue counts an enqueued job.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue counts a dequeued job.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerActiveCount sets the running worker gauge.
func UpdateWorkerActiveCount(n int) { globalManager.workerActive.Set(float64(n)) }

// RecordWorkerProcessingLatency observes per-job latency in milliseconds.
func RecordWorkerProcessingLatency(ms float64) { globalManager.workerLatency.Observe(ms) }

// RecordWorkerError counts a failed job.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint counts an error returned by an HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.memoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(n int) { globalManager.goroutineCount.Set(float64(n)) }

// GetRegistry returns the registry behind the package helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
