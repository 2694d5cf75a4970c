package controller

import (
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/catalog"
	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
	"github.com/llmgateway/llmgateway/relay/resolver"
	"github.com/llmgateway/llmgateway/relay/scorer"
)

// reasonCustomUpstream marks routing decisions that bypassed the scorer
// because the caller addressed a custom upstream directly.
const reasonCustomUpstream = "custom-upstream"

// dispatchCustom relays to a caller-configured OpenAI-compatible upstream.
// The base URL comes from <NAME>_BASE_URL and keys from <NAME>_API_KEY; the
// model name is opaque to the gateway, so there is no catalog pricing and no
// fallback candidate.
func dispatchCustom(c *gin.Context, m *meta.Meta, req *relaymodel.GeneralOpenAIRequest, res *resolver.Result, noFallback bool) {
	name := res.CustomProviderName
	if name == "" {
		name = catalog.CustomProviderID
	}

	baseURL := config.ProviderBaseURL(name)
	if baseURL == "" {
		if p := registry.Provider(name); p != nil {
			baseURL = p.BaseURL
		}
	}
	if baseURL == "" {
		abortWith(c, m, req, relaymodel.BadRequestError(
			"custom upstream %s has no base URL configured", name))
		return
	}

	provider := &catalog.Provider{
		ID:           name,
		Name:         name,
		BaseURL:      baseURL,
		Format:       catalog.FormatOpenAI,
		Streaming:    true,
		Cancellation: true,
	}
	mapping := &catalog.Mapping{
		ProviderID: name,
		ModelName:  res.RequestedModel,
		Streaming:  true,
	}
	routing := &scorer.RoutingMetadata{
		Reason:             reasonCustomUpstream,
		AvailableProviders: []string{name},
		ChosenProvider:     name,
		NoFallback:         noFallback,
	}

	canonical, bizErr, fromUpstream := relayOnce(c, m, provider, nil, mapping, req)
	if bizErr == nil {
		finishSuccess(c, m, req, name, canonical, routing)
		return
	}

	kind := classify(c, bizErr, fromUpstream)
	emitLog(c, logRecordInput{
		meta: m, req: req, requestedProvider: name,
		routing: routing, relayErr: bizErr,
		unified:  unifiedFor(kind),
		canceled: kind == kindCanceled,
	})
	if kind != kindCanceled {
		respondError(c, bizErr)
	}
}
