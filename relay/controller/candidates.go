package controller

import (
	"time"

	"github.com/llmgateway/llmgateway/catalog"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
	"github.com/llmgateway/llmgateway/relay/resolver"
)

// buildCandidates turns a resolved model request into the set of mappings the
// scorer may route to. Unstable, experimental and deactivated mappings never
// receive traffic, pinned or not.
func buildCandidates(reg *catalog.Registry, res *resolver.Result) (*catalog.Model, []*catalog.Mapping, *relaymodel.ErrorWithStatusCode) {
	now := time.Now()

	if res.RequestedProvider != "" {
		mdl := reg.ModelByMapping(res.RequestedProvider, res.RequestedModel)
		if mdl == nil {
			return nil, nil, relaymodel.BadRequestError("unsupported model: %s/%s",
				res.RequestedProvider, res.RequestedModel)
		}
		mapping := mdl.MappingFor(res.RequestedProvider)
		if !mapping.Routable() || !mapping.Available(now) {
			return nil, nil, relaymodel.BadRequestError("model %s is not available on provider %s",
				res.RequestedModel, res.RequestedProvider)
		}
		return mdl, []*catalog.Mapping{mapping}, nil
	}

	mdl := reg.Model(res.RequestedModel)
	if mdl == nil {
		return nil, nil, relaymodel.BadRequestError("unsupported model: %s", res.RequestedModel)
	}
	var out []*catalog.Mapping
	for i := range mdl.Providers {
		mapping := &mdl.Providers[i]
		if mapping.Routable() && mapping.Available(now) {
			out = append(out, mapping)
		}
	}
	if len(out) == 0 {
		return nil, nil, relaymodel.BadRequestError("model %s has no active providers", res.RequestedModel)
	}
	return mdl, out, nil
}

func without(candidates []*catalog.Mapping, drop *catalog.Mapping) []*catalog.Mapping {
	out := make([]*catalog.Mapping, 0, len(candidates)-1)
	for _, c := range candidates {
		if c != drop {
			out = append(out, c)
		}
	}
	return out
}

// selectKey picks the upstream credential for a provider: the first healthy
// key in configured order, or the least-unhealthy one when every key is
// blacklisted so traffic degrades instead of failing outright.
func selectKey(envVar string, keys []string) (idx int, key string, ok bool) {
	if len(keys) == 0 {
		return 0, "", false
	}
	for i := range keys {
		if health.IsHealthy(envVar, i) {
			return i, keys[i], true
		}
	}
	best := 0
	bestUptime := -1.0
	for i := range keys {
		m := health.GetMetrics(envVar, i)
		if m.Uptime > bestUptime {
			best, bestUptime = i, m.Uptime
		}
	}
	return best, keys[best], true
}
