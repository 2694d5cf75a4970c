package controller

import (
	"sync"

	"github.com/llmgateway/llmgateway/catalog"
	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/relay/scorer"
)

// Fallbacks substituted when a provider has uptime history but no recorded
// latency or throughput yet, matching the scorer's cold-start defaults.
const (
	fallbackLatencyMs  = 1000.0
	fallbackThroughput = 50.0
	ewmaAlpha          = 0.2
)

type perfEntry struct {
	latencyMs  float64
	throughput float64
	samples    int
}

// perfTracker keeps an exponential moving average of per-provider latency and
// throughput, feeding the scorer's weighted selection.
type perfTracker struct {
	mu      sync.Mutex
	entries map[string]*perfEntry
}

func newPerfTracker() *perfTracker {
	return &perfTracker{entries: make(map[string]*perfEntry)}
}

func (t *perfTracker) record(providerID string, latencyMs, throughput float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[providerID]
	if !ok {
		e = &perfEntry{}
		t.entries[providerID] = e
	}
	if e.samples == 0 {
		e.latencyMs, e.throughput = latencyMs, throughput
	} else {
		e.latencyMs = ewmaAlpha*latencyMs + (1-ewmaAlpha)*e.latencyMs
		if throughput > 0 {
			e.throughput = ewmaAlpha*throughput + (1-ewmaAlpha)*e.throughput
		}
	}
	e.samples++
}

func (t *perfTracker) snapshot(providerID string) (latencyMs, throughput float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, found := t.entries[providerID]
	if !found || e.samples == 0 {
		return 0, 0, false
	}
	return e.latencyMs, e.throughput, true
}

// providerUptime aggregates the key health window across every configured key
// of a provider. ok is false until any key has at least one sample.
func providerUptime(providerID string) (uptime float64, ok bool) {
	envVar, keys := config.ProviderKeys(providerID)
	successes, errors := 0, 0
	for i := range keys {
		m := health.GetMetrics(envVar, i)
		successes += m.Successes
		errors += m.Errors
	}
	total := successes + errors
	if total == 0 {
		return 100, false
	}
	return 100 * float64(successes) / float64(total), true
}

// healthMetrics builds the scorer's per-provider metrics map. Providers with
// no observations are left out so the scorer applies its own defaults.
func healthMetrics(candidates []*catalog.Mapping) map[string]scorer.Metrics {
	out := make(map[string]scorer.Metrics, len(candidates))
	for _, c := range candidates {
		uptime, seen := providerUptime(c.ProviderID)
		latency, throughput, hasPerf := perf.snapshot(c.ProviderID)
		if !seen && !hasPerf {
			continue
		}
		if !hasPerf {
			latency, throughput = fallbackLatencyMs, fallbackThroughput
		}
		out[c.ProviderID] = scorer.Metrics{
			Uptime:         uptime,
			AverageLatency: latency,
			Throughput:     throughput,
		}
	}
	return out
}
