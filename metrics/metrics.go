// Package metrics exposes pipeline observability: Prometheus
// collectors for process-level counters and a key-value-store-backed
// execution tracker for per-tenant statistics that survive restarts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds the pipeline's Prometheus instruments.
type Collectors struct {
	// CommandsProcessed counts pipeline invocations by type and outcome.
	CommandsProcessed *prometheus.CounterVec

	// ExecutionAttempts counts router attempts, including retries.
	ExecutionAttempts *prometheus.CounterVec

	// ExecutionDuration observes end-to-end execution latency.
	ExecutionDuration *prometheus.HistogramVec

	// RateLimitRejections counts admissions denied by the limiter.
	RateLimitRejections *prometheus.CounterVec

	// CacheHits and CacheMisses count cache lookups by command type.
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// NewCollectors creates the instrument set and registers it with reg.
// Pass prometheus.NewRegistry() in tests to avoid global state.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		CommandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storepilot",
			Name:      "commands_processed_total",
			Help:      "Commands processed by the pipeline.",
		}, []string{"type", "outcome"}),
		ExecutionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storepilot",
			Name:      "execution_attempts_total",
			Help:      "Execution attempts including retries.",
		}, []string{"type"}),
		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storepilot",
			Name:      "execution_duration_seconds",
			Help:      "End-to-end command execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		RateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storepilot",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests denied by the rate limiter.",
		}, []string{"type"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storepilot",
			Name:      "cache_hits_total",
			Help:      "Cache lookups that returned fresh data.",
		}, []string{"type"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storepilot",
			Name:      "cache_misses_total",
			Help:      "Cache lookups that missed or were stale.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		c.CommandsProcessed,
		c.ExecutionAttempts,
		c.ExecutionDuration,
		c.RateLimitRejections,
		c.CacheHits,
		c.CacheMisses,
	)
	return c
}
