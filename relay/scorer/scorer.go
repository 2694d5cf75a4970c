// Package scorer picks one provider mapping out of the routable candidate set
// for a model, balancing price against observed reliability.
package scorer

import (
	"math/rand"

	"github.com/llmgateway/llmgateway/catalog"
	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/relay/keyhealth"
)

// explorationRate is the chance a request ignores scoring and samples a
// random candidate so cold providers keep accumulating metrics.
const explorationRate = 0.01

// Score weights. Latency only matters for streaming requests; when it is
// dropped the rest are re-normalized.
const (
	weightPrice      = 0.2
	weightUptime     = 0.5
	weightThroughput = 0.2
	weightLatency    = 0.1
)

// Defaults substituted when a provider has no recorded metric yet.
const (
	defaultUptime     = 100.0
	defaultLatencyMs  = 1000.0
	defaultThroughput = 50.0
)

// Selection reasons recorded in RoutingMetadata.
const (
	ReasonSingleCandidate   = "single-candidate"
	ReasonRandomExploration = "random-exploration"
	ReasonPriceOnly         = "price-only-no-metrics"
	ReasonWeightedScore     = "weighted-score"
)

// Metrics is the observed performance of one (model, provider) pair.
type Metrics struct {
	Uptime         float64
	AverageLatency float64 // ms to first token
	Throughput     float64 // tokens per second
}

// CandidateScore is one candidate's scoring breakdown, kept for the log row.
type CandidateScore struct {
	ProviderID string   `json:"providerId"`
	Score      float64  `json:"score"`
	Uptime     *float64 `json:"uptime,omitempty"`
	Latency    *float64 `json:"latency,omitempty"`
	Throughput *float64 `json:"throughput,omitempty"`
	Price      float64  `json:"price"`
	Priority   float64  `json:"priority"`
}

// RoutingMetadata explains a routing decision. It is serialized onto the
// request's log record.
type RoutingMetadata struct {
	Reason                 string           `json:"reason"`
	AvailableProviders     []string         `json:"availableProviders"`
	Candidates             []CandidateScore `json:"candidates,omitempty"`
	ChosenProvider         string           `json:"chosenProvider"`
	OriginalProvider       string           `json:"originalProvider,omitempty"`
	OriginalProviderUptime *float64         `json:"originalProviderUptime,omitempty"`
	NoFallback             bool             `json:"noFallback,omitempty"`
}

// Scorer selects among candidate mappings using the registry for provider
// priorities and an optional metrics source.
type Scorer struct {
	reg *catalog.Registry
	// rnd returns a uniform float in [0,1). Swappable for tests.
	rnd func() float64
}

func New(reg *catalog.Registry) *Scorer {
	return &Scorer{reg: reg, rnd: rand.Float64}
}

func (s *Scorer) priority(providerID string) float64 {
	if p := s.reg.Provider(providerID); p != nil && p.Priority > 0 {
		return p.Priority
	}
	return 1
}

// basePrice is the candidate's blended per-token price after discount.
func basePrice(m *catalog.Mapping) float64 {
	return (m.InputPrice + m.OutputPrice) / 2 * (1 - m.Discount)
}

// Select picks one mapping from candidates. Returns nil when the set is
// empty. metrics may be nil; streaming controls whether latency participates.
func (s *Scorer) Select(candidates []*catalog.Mapping, metrics map[string]Metrics, streaming bool) (*catalog.Mapping, *RoutingMetadata) {
	if len(candidates) == 0 {
		return nil, nil
	}

	md := &RoutingMetadata{AvailableProviders: make([]string, 0, len(candidates))}
	for _, c := range candidates {
		md.AvailableProviders = append(md.AvailableProviders, c.ProviderID)
	}

	if len(candidates) == 1 {
		md.Reason = ReasonSingleCandidate
		md.ChosenProvider = candidates[0].ProviderID
		return candidates[0], md
	}

	if !config.TestMode && s.rnd() < explorationRate {
		chosen := candidates[int(s.rnd()*float64(len(candidates)))%len(candidates)]
		md.Reason = ReasonRandomExploration
		md.ChosenProvider = chosen.ProviderID
		return chosen, md
	}

	if len(metrics) == 0 {
		return s.selectByPrice(candidates, md)
	}
	return s.selectByScore(candidates, metrics, streaming, md)
}

func (s *Scorer) selectByPrice(candidates []*catalog.Mapping, md *RoutingMetadata) (*catalog.Mapping, *RoutingMetadata) {
	var best *catalog.Mapping
	bestPrice := 0.0
	for _, c := range candidates {
		prio := s.priority(c.ProviderID)
		effective := basePrice(c) / prio
		md.Candidates = append(md.Candidates, CandidateScore{
			ProviderID: c.ProviderID,
			Score:      effective,
			Price:      basePrice(c),
			Priority:   prio,
		})
		if best == nil || effective < bestPrice {
			best, bestPrice = c, effective
		}
	}
	md.Reason = ReasonPriceOnly
	md.ChosenProvider = best.ProviderID
	return best, md
}

type measured struct {
	mapping    *catalog.Mapping
	price      float64
	priority   float64
	uptime     float64
	latency    float64
	throughput float64
	hasMetrics bool
}

func (s *Scorer) selectByScore(candidates []*catalog.Mapping, metrics map[string]Metrics, streaming bool, md *RoutingMetadata) (*catalog.Mapping, *RoutingMetadata) {
	rows := make([]measured, 0, len(candidates))
	for _, c := range candidates {
		row := measured{
			mapping:    c,
			price:      basePrice(c),
			priority:   s.priority(c.ProviderID),
			uptime:     defaultUptime,
			latency:    defaultLatencyMs,
			throughput: defaultThroughput,
		}
		if m, ok := metrics[c.ProviderID]; ok {
			row.uptime, row.latency, row.throughput = m.Uptime, m.AverageLatency, m.Throughput
			row.hasMetrics = true
		}
		rows = append(rows, row)
	}

	priceN := normalize(rows, func(r measured) float64 { return r.price }, false)
	uptimeN := normalize(rows, func(r measured) float64 { return r.uptime }, true)
	throughputN := normalize(rows, func(r measured) float64 { return r.throughput }, true)
	latencyN := normalize(rows, func(r measured) float64 { return r.latency }, false)

	wPrice, wUptime, wThroughput, wLatency := weightPrice, weightUptime, weightThroughput, weightLatency
	if !streaming {
		kept := weightPrice + weightUptime + weightThroughput
		wPrice, wUptime, wThroughput = weightPrice/kept, weightUptime/kept, weightThroughput/kept
		wLatency = 0
	}

	var best *catalog.Mapping
	bestScore := 0.0
	for i, r := range rows {
		score := wPrice*priceN[i] + wUptime*uptimeN[i] + wThroughput*throughputN[i] + wLatency*latencyN[i]
		score += (1 - r.priority) + keyhealth.UptimePenalty(r.uptime)

		cs := CandidateScore{
			ProviderID: r.mapping.ProviderID,
			Score:      score,
			Price:      r.price,
			Priority:   r.priority,
		}
		if r.hasMetrics {
			u, l, tp := r.uptime, r.latency, r.throughput
			cs.Uptime, cs.Latency, cs.Throughput = &u, &l, &tp
		}
		md.Candidates = append(md.Candidates, cs)

		if best == nil || score < bestScore {
			best, bestScore = r.mapping, score
		}
	}
	md.Reason = ReasonWeightedScore
	md.ChosenProvider = best.ProviderID
	return best, md
}

// normalize min-max scales one dimension across the candidate set so 0 is
// best and 1 is worst. higherIsBetter inverts the scale. A flat dimension
// normalizes to all zeros.
func normalize(rows []measured, value func(measured) float64, higherIsBetter bool) []float64 {
	min, max := value(rows[0]), value(rows[0])
	for _, r := range rows[1:] {
		v := value(r)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(rows))
	if max == min {
		return out
	}
	for i, r := range rows {
		n := (value(r) - min) / (max - min)
		if higherIsBetter {
			n = 1 - n
		}
		out[i] = n
	}
	return out
}
