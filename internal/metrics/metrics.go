// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderRequests counts upstream API calls by outcome.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asharescan_provider_requests_total",
		Help: "Upstream data API calls by provider, api and status.",
	}, []string{"provider", "api", "status"})

	// ProviderLatency observes upstream call latency.
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asharescan_provider_request_seconds",
		Help:    "Upstream data API call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "api"})

	// QuotesFetched counts daily bars fetched per industry.
	QuotesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asharescan_quotes_fetched_total",
		Help: "Daily bars fetched per industry.",
	}, []string{"industry"})

	// CacheRequests counts cache lookups by store and outcome.
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asharescan_cache_requests_total",
		Help: "Cache lookups by store and outcome.",
	}, []string{"store", "outcome"})

	// BacktestRuns counts completed backtests.
	BacktestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asharescan_backtest_runs_total",
		Help: "Completed backtest runs per industry.",
	}, []string{"industry"})

	// StageDuration observes pipeline stage wall time.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asharescan_stage_duration_seconds",
		Help:    "Pipeline stage wall time.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})
)

// ObserveProviderCall records one upstream call; plugs into the provider
// metrics callback.
func ObserveProviderCall(provider, api string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ProviderRequests.WithLabelValues(provider, api, status).Inc()
	ProviderLatency.WithLabelValues(provider, api).Observe(d.Seconds())
}

// TimeStage returns a stop function that records the stage duration.
func TimeStage(stage string) func() {
	start := time.Now()
	return func() {
		StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
