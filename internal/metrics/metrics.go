package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationLookup records cache lookup calls.
	CacheOperationLookup CacheOperation = "lookup"
	// CacheOperationStore records cache store attempts.
	CacheOperationStore CacheOperation = "store"
	// CacheOperationInvalidate records tag invalidation calls.
	CacheOperationInvalidate CacheOperation = "invalidate"
)

// CacheOutcome captures the result of a cache operation.
type CacheOutcome string

const (
	// CacheHit indicates the lookup reused a cached value.
	CacheHit CacheOutcome = "hit"
	// CacheMiss indicates no cached value was present.
	CacheMiss CacheOutcome = "miss"
	// CacheStored indicates the entry was persisted.
	CacheStored CacheOutcome = "stored"
	// CacheError indicates the operation failed and the gateway degraded to
	// direct computation.
	CacheError CacheOutcome = "error"
)

// RemoteOutcome classifies a downstream service call.
type RemoteOutcome string

const (
	// RemoteOK indicates the downstream returned a usable payload.
	RemoteOK RemoteOutcome = "ok"
	// RemoteUnavailable indicates timeout, connection failure, or 5xx.
	RemoteUnavailable RemoteOutcome = "unavailable"
	// RemoteRejected indicates the downstream rejected the request (4xx).
	RemoteRejected RemoteOutcome = "rejected"
)

// Recorder publishes Prometheus metrics for gateway activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	rateLimitDecisions *prometheus.CounterVec

	remoteCalls   *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total public read requests processed by the gateway.",
	}, []string{"route", "status_code", "from_cache"})

	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed public read requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"route"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache operations executed by the read-through orchestrator.",
	}, []string{"resource", "operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for cache store operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"resource", "operation", "result"})

	rateLimitDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Fixed-window limiter decisions per route.",
	}, []string{"route", "allowed"})

	remoteCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "remote",
		Name:      "calls_total",
		Help:      "Downstream domain service calls issued by the gateway.",
	}, []string{"service", "outcome"})

	remoteLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "remote",
		Name:      "call_duration_seconds",
		Help:      "Latency distribution for downstream service calls.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"service", "outcome"})

	reg.MustRegister(httpRequests, httpLatency, cacheOperations, cacheLatency, rateLimitDecisions, remoteCalls, remoteLatency)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:           reg,
		handler:            handler,
		httpRequests:       httpRequests,
		httpLatency:        httpLatency,
		cacheOperations:    cacheOperations,
		cacheLatency:       cacheLatency,
		rateLimitDecisions: rateLimitDecisions,
		remoteCalls:        remoteCalls,
		remoteLatency:      remoteLatency,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveRequest records the status and latency for a completed read request.
func (r *Recorder) ObserveRequest(route string, statusCode int, fromCache bool, duration time.Duration) {
	if r == nil {
		return
	}
	routeLabel := normalizeLabel(route)
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	r.httpRequests.WithLabelValues(routeLabel, statusLabel, cacheLabel).Inc()
	r.httpLatency.WithLabelValues(routeLabel).Observe(duration.Seconds())
}

// ObserveCache records the result of a cache operation.
func (r *Recorder) ObserveCache(resource string, operation CacheOperation, outcome CacheOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationLookup)
	}
	r.cacheOperations.WithLabelValues(normalizeLabel(resource), opLabel, normalizeLabel(string(outcome))).Inc()
	r.cacheLatency.WithLabelValues(normalizeLabel(resource), opLabel, normalizeLabel(string(outcome))).Observe(duration.Seconds())
}

// ObserveRateLimit records a limiter decision for a route.
func (r *Recorder) ObserveRateLimit(route string, allowed bool) {
	if r == nil {
		return
	}
	allowedLabel := "false"
	if allowed {
		allowedLabel = "true"
	}
	r.rateLimitDecisions.WithLabelValues(normalizeLabel(route), allowedLabel).Inc()
}

// ObserveRemoteCall records the outcome and latency of a downstream call.
func (r *Recorder) ObserveRemoteCall(service string, outcome RemoteOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	outcomeLabel := string(outcome)
	if outcomeLabel == "" {
		outcomeLabel = string(RemoteUnavailable)
	}
	r.remoteCalls.WithLabelValues(normalizeLabel(service), outcomeLabel).Inc()
	r.remoteLatency.WithLabelValues(normalizeLabel(service), outcomeLabel).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
