// Package metrics exposes Prometheus collectors for script runs, trigger
// processing and Home Assistant interactions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts script executions by outcome (success/failure) and
	// host mode (real/mock/dry_run).
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homescript_runs_total",
		Help: "Script executions by outcome and host mode.",
	}, []string{"outcome", "mode"})

	// RunDuration observes wall-clock execution time per run.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "homescript_run_duration_seconds",
		Help:    "Script execution duration.",
		Buckets: prometheus.DefBuckets,
	})

	// TriggerEventsTotal counts state_changed events seen by the engine.
	TriggerEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homescript_trigger_events_total",
		Help: "state_changed events processed by the trigger engine.",
	})

	// TriggerFiresTotal counts rule groups that fired a script.
	TriggerFiresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homescript_trigger_fires_total",
		Help: "Rule groups that matched and dispatched a script.",
	})

	// HARequestsTotal counts Home Assistant interactions by action and
	// status.
	HARequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homescript_ha_requests_total",
		Help: "Home Assistant interactions by action and status.",
	}, []string{"action", "status"})

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homescript_rate_limited_total",
		Help: "Requests rejected with 429.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
