// Package relay dispatches gateway requests to upstream providers and
// transforms their responses into the canonical OpenAI shapes.
package relay

import (
	"github.com/llmgateway/llmgateway/catalog"
	"github.com/llmgateway/llmgateway/relay/adaptor"
	"github.com/llmgateway/llmgateway/relay/adaptor/ali"
	"github.com/llmgateway/llmgateway/relay/adaptor/anthropic"
	"github.com/llmgateway/llmgateway/relay/adaptor/aws"
	"github.com/llmgateway/llmgateway/relay/adaptor/gemini"
	"github.com/llmgateway/llmgateway/relay/adaptor/openai_compatible"
	"github.com/llmgateway/llmgateway/relay/adaptor/openai_responses"
	"github.com/llmgateway/llmgateway/relay/adaptor/zhipu"
)

// GetAdaptor returns the wire adaptor for the provider's format. OpenAI
// chat-completions providers share one adaptor parameterized by provider id
// so vendor quirks (json fences, web_search blocks) stay with the provider.
func GetAdaptor(provider *catalog.Provider) adaptor.Adaptor {
	if provider == nil {
		return nil
	}
	switch provider.Format {
	case catalog.FormatOpenAI:
		return &openai_compatible.Adaptor{ProviderID: provider.ID}
	case catalog.FormatOpenAIResponses:
		return &openai_responses.Adaptor{}
	case catalog.FormatAnthropic:
		return &anthropic.Adaptor{}
	case catalog.FormatGoogle:
		return &gemini.Adaptor{}
	case catalog.FormatBedrock:
		return &aws.Adaptor{}
	case catalog.FormatDashScopeImage:
		return &ali.Adaptor{}
	case catalog.FormatCogViewImage:
		return &zhipu.Adaptor{}
	}
	return nil
}
