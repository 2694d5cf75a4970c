// Package resolver parses the caller's model identifier into a concrete
// (model, provider) request against the catalog.
package resolver

import (
	"strings"

	relaymodel "github.com/llmgateway/llmgateway/relay/model"

	"github.com/llmgateway/llmgateway/catalog"
)

// Result is the parsed form of a model input string.
type Result struct {
	// RequestedModel is the canonical provider-specific model name when a
	// provider prefix was given, otherwise the catalog model id.
	RequestedModel string
	// RequestedProvider is set when the caller pinned a provider; empty means
	// the scorer picks one.
	RequestedProvider string
	// CustomProviderName holds the unknown prefix when the caller addressed a
	// custom upstream ("myproxy/some-model").
	CustomProviderName string
}

// ParseModelInput resolves a free-form model input against the catalog.
// The returned error is always a 400; routing never retries a parse failure.
func ParseModelInput(reg *catalog.Registry, modelInput string) (*Result, *relaymodel.ErrorWithStatusCode) {
	if modelInput == "auto" || modelInput == "custom" {
		return &Result{
			RequestedModel:    modelInput,
			RequestedProvider: catalog.GatewayProviderID,
		}, nil
	}

	if head, tail, found := strings.Cut(modelInput, "/"); found {
		return parsePrefixed(reg, head, tail)
	}

	if m := reg.Model(modelInput); m != nil {
		return &Result{RequestedModel: modelInput}, nil
	}

	// A bare provider-specific name is ambiguous between providers, so force
	// the caller to qualify it.
	if models := reg.ModelsByMappingName(modelInput); len(models) > 0 {
		owner := ""
		rootModelID := models[0].ID
		for i := range models[0].Providers {
			if models[0].Providers[i].ModelName == modelInput {
				owner = models[0].Providers[i].ProviderID
				break
			}
		}
		return nil, relaymodel.BadRequestError(
			"model %s must be requested with a provider prefix. Use the format: %s/%s",
			modelInput, owner, rootModelID)
	}

	return nil, relaymodel.BadRequestError("unsupported model: %s", modelInput)
}

func parsePrefixed(reg *catalog.Registry, head, tail string) (*Result, *relaymodel.ErrorWithStatusCode) {
	if !reg.HasProvider(head) {
		// Unknown prefix addresses a caller-configured custom upstream; the
		// model name is opaque to the gateway.
		return &Result{
			RequestedModel:     tail,
			RequestedProvider:  catalog.CustomProviderID,
			CustomProviderName: head,
		}, nil
	}
	if head == catalog.CustomProviderID {
		return &Result{
			RequestedModel:    tail,
			RequestedProvider: head,
		}, nil
	}

	m := reg.Model(tail)
	if m == nil {
		m = reg.ModelByMapping(head, tail)
	}
	if m == nil {
		return nil, relaymodel.BadRequestError("unsupported model: %s/%s", head, tail)
	}

	mapping := m.MappingFor(head)
	if mapping == nil {
		return nil, relaymodel.BadRequestError("provider %s does not support model %s", head, tail)
	}

	return &Result{
		RequestedModel:    mapping.ModelName,
		RequestedProvider: head,
	}, nil
}
