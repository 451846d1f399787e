// Package metrics provides Prometheus metrics for hitscore runs.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the detector.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Decode pass
	framesDecoded   prometheus.Counter
	frameLatency    prometheus.Histogram
	motionThreshold prometheus.Gauge

	// Events
	impactsDetected     prometheus.Counter
	eventsScored        *prometheus.CounterVec
	eventsMissed        prometheus.Counter
	ballNotFound        prometheus.Counter
	localizationLatency prometheus.Histogram
	totalScore          prometheus.Gauge
	runDuration         prometheus.Histogram

	// Queue
	queueCapacity prometheus.Gauge
	queueSize     prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueRejected *prometheus.CounterVec

	// Workers
	workerActiveCount prometheus.Gauge
	workerErrors      prometheus.Counter

	// Errors
	errorsByStage *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "hitscore",
		subsystem:        "detector",
		histogramBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
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
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.framesDecoded = m.counter("frames_decoded_total", "Total number of frames decoded and scored for motion")
	m.frameLatency = m.histogram("frame_latency_milliseconds", "Per-frame decode, crop and motion latency in milliseconds", m.histogramBuckets)
	m.motionThreshold = m.gauge("motion_threshold", "Adaptive motion threshold of the last run")

	m.impactsDetected = m.counter("impacts_detected_total", "Total number of impact peaks found by segmentation")
	m.eventsScored = m.counterVec("events_scored_total", "Total number of impacts that landed in a ring, by point value", "value")
	m.eventsMissed = m.counter("events_missed_total", "Total number of impacts that scored nothing")
	m.ballNotFound = m.counter("ball_not_found_total", "Total number of impact frames where the ball was not located")
	m.localizationLatency = m.histogram("localization_latency_milliseconds", "Ball localization and scoring latency in milliseconds", m.histogramBuckets)
	m.totalScore = m.gauge("total_score", "Total score of the last run")
	m.runDuration = m.histogram("run_duration_seconds", "Wall time of a full detector run in seconds", prometheus.ExponentialBuckets(0.5, 2, 10))

	m.queueCapacity = m.gauge("queue_capacity", "Maximum impact queue capacity")
	m.queueSize = m.gauge("queue_size", "Current number of queued impact jobs")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Total number of impact jobs enqueued")
	m.queueRejected = m.counterVec("queue_rejected_total", "Total number of impact jobs rejected by the queue", "reason")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of running localization workers")
	m.workerErrors = m.counter("worker_errors_total", "Total number of impact jobs that failed in a worker")

	m.errorsByStage = m.counterVec("errors_total", "Total number of run-aborting errors by pipeline stage", "stage")
}

// RecordFrameDecoded increments the decoded frame counter.
func RecordFrameDecoded() {
	globalManager.framesDecoded.Inc()
}

// RecordFrameLatency records per-frame processing latency in milliseconds.
func RecordFrameLatency(latencyMs float64) {
	globalManager.frameLatency.Observe(latencyMs)
}

// UpdateMotionThreshold sets the adaptive threshold gauge.
func UpdateMotionThreshold(threshold float64) {
	globalManager.motionThreshold.Set(threshold)
}

// RecordImpactDetected adds n impact peaks.
func RecordImpactDetected(n int) {
	globalManager.impactsDetected.Add(float64(n))
}

// RecordEventScored increments the scored counter for a point value.
func RecordEventScored(value int) {
	globalManager.eventsScored.WithLabelValues(fmt.Sprint(value)).Inc()
}

// RecordEventMissed increments the miss counter.
func RecordEventMissed() {
	globalManager.eventsMissed.Inc()
}

// RecordBallNotFound increments the not-found counter.
func RecordBallNotFound() {
	globalManager.ballNotFound.Inc()
}

// RecordLocalizationLatency records localization latency in milliseconds.
func RecordLocalizationLatency(latencyMs float64) {
	globalManager.localizationLatency.Observe(latencyMs)
}

// UpdateTotalScore sets the total score gauge.
func UpdateTotalScore(total int) {
	globalManager.totalScore.Set(float64(total))
}

// RecordRunDuration records a run's wall time in seconds.
func RecordRunDuration(seconds float64) {
	globalManager.runDuration.Observe(seconds)
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected increments the rejection counter for reason.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordErrorByStage records a run-aborting error for a pipeline stage.
func RecordErrorByStage(stage string) {
	globalManager.errorsByStage.WithLabelValues(stage).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the registry in the text exposition format, for the
// node exporter textfile collector.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteTextfile, err)
	}
	return nil
}
