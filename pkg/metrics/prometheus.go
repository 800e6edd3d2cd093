package metrics

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Comparison outcomes used as label values.
const (
	OutcomePreferA = "prefer_a"
	OutcomeTie     = "tie"
	OutcomePreferB = "prefer_b"
)

// Manager owns every Prometheus collector of the ranking service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ranking
	comparisonsRegistered *prometheus.CounterVec
	comparisonsUndone     *prometheus.CounterVec
	duplicateSubmissions  prometheus.Counter
	engineLatency         *prometheus.HistogramVec
	invariantViolations   *prometheus.CounterVec

	// Store
	listsTotal      prometheus.Gauge
	charactersTotal prometheus.Gauge
	storeLatency    *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
}

// global holds the manager the package-level recorders write to and the
// registry it is exposed on. Swapped as a unit by Configure.
type global struct {
	manager  *Manager
	registry *prometheus.Registry
}

var current atomic.Pointer[global] //nolint:gochecknoglobals // singleton metrics manager

func init() { //nolint:gochecknoinits // global metrics setup
	Configure()
}

// Configure rebuilds the global manager on a fresh custom registry. Call it
// at startup, before handlers capture GetRegistry.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	m := NewManager(append([]Option{WithPrometheusRegistry(registry)}, opts...)...)
	current.Store(&global{manager: m, registry: registry})
}

func manager() *Manager { return current.Load().manager }

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "charsort",
		subsystem:        "ranking",
		histogramBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one block per collector
	auto := promauto.With(m.registry)

	m.comparisonsRegistered = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "comparisons_registered_total",
		Help:      "Verdicts appended to a comparison log",
	}, []string{"algorithm", "outcome"})

	m.comparisonsUndone = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "comparisons_undone_total",
		Help:      "Verdicts removed by undo",
	}, []string{"algorithm"})

	m.duplicateSubmissions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "duplicate_submissions_total",
		Help:      "Comparison submissions dropped by idempotency key",
	})

	m.engineLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "engine_latency_milliseconds",
		Help:      "Time to derive ranking state from a snapshot",
		Buckets:   m.histogramBuckets,
	}, []string{"algorithm", "operation"})

	m.invariantViolations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "invariant_violations_total",
		Help:      "Internal consistency failures found while replaying a log",
	}, []string{"algorithm"})

	m.listsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "lists_total",
		Help:      "Character lists in the store",
	})

	m.charactersTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "characters_total",
		Help:      "Characters across all lists",
	})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_latency_milliseconds",
		Help:      "Store operation latency by backend and operation",
		Buckets:   m.histogramBuckets,
	}, []string{"backend", "operation"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_total",
		Help:      "Errors by component and type",
	}, []string{"component", "error_type"})
}

// Outcome maps a comparison value in {-1, 0, 1} to its label.
func Outcome(value int) (string, error) {
	switch value {
	case 1:
		return OutcomePreferA, nil
	case 0:
		return OutcomeTie, nil
	case -1:
		return OutcomePreferB, nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownOutcome, value)
	}
}

// RecordComparison counts an appended verdict.
func RecordComparison(algorithm string, value int) {
	outcome, err := Outcome(value)
	if err != nil {
		return
	}
	manager().comparisonsRegistered.WithLabelValues(algorithm, outcome).Inc()
}

// RecordUndo counts a removed verdict.
func RecordUndo(algorithm string) {
	manager().comparisonsUndone.WithLabelValues(algorithm).Inc()
}

// RecordDuplicateSubmission counts a submission dropped by idempotency key.
func RecordDuplicateSubmission() {
	manager().duplicateSubmissions.Inc()
}

// RecordEngineLatency records how long an engine query took.
func RecordEngineLatency(algorithm, operation string, latencyMs float64) {
	manager().engineLatency.WithLabelValues(algorithm, operation).Observe(latencyMs)
}

// RecordInvariantViolation counts a consistency failure.
func RecordInvariantViolation(algorithm string) {
	manager().invariantViolations.WithLabelValues(algorithm).Inc()
}

// UpdateListsTotal sets the number of lists.
func UpdateListsTotal(count int) {
	manager().listsTotal.Set(float64(count))
}

// UpdateCharactersTotal sets the number of characters.
func UpdateCharactersTotal(count int) {
	manager().charactersTotal.Set(float64(count))
}

// RecordStoreLatency records store operation latency.
func RecordStoreLatency(backend, operation string, latencyMs float64) {
	manager().storeLatency.WithLabelValues(backend, operation).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	manager().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	manager().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	manager().errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return current.Load().registry
}
