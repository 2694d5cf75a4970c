// Package monitor exposes the gateway's Prometheus metrics.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	relayRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llmgateway_relay_requests_total",
		Help: "Relay requests by provider, model and unified outcome",
	}, []string{"provider", "model", "outcome"})

	relayDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llmgateway_relay_duration_seconds",
		Help:    "End-to-end relay duration",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"provider", "model"})

	relayTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llmgateway_relay_tokens_total",
		Help: "Tokens relayed, split by direction",
	}, []string{"provider", "model", "direction"})

	relayCost = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llmgateway_relay_cost_usd_total",
		Help: "Billed cost in USD",
	}, []string{"provider", "model"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		relayRequests, relayDuration, relayTokens, relayCost,
	)
}

// RecordRelay records one finished relay attempt. Provider and model name the
// upstream that actually served (or last failed) the request; outcome is the
// unified finish reason.
func RecordRelay(provider, model, outcome string, duration time.Duration, promptTokens, completionTokens int, costUSD float64) {
	if provider == "" {
		provider = "none"
	}
	if model == "" {
		model = "none"
	}
	relayRequests.WithLabelValues(provider, model, outcome).Inc()
	relayDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if promptTokens > 0 {
		relayTokens.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		relayTokens.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
	if costUSD > 0 {
		relayCost.WithLabelValues(provider, model).Add(costUSD)
	}
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
