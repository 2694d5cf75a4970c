// Package openai_compatible relays providers that speak the OpenAI
// chat-completions wire format, with small per-provider post-processing
// overrides.
package openai_compatible

import (
	"encoding/json"
	"strings"

	"github.com/Laisky/errors/v2"

	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

// Provider ids that need post-processing on top of the shared normalizer.
const (
	ProviderMistral = "mistral"
	ProviderNovita  = "novita"
	ProviderZAI     = "zai"
)

// upstreamUsage tolerates the non-standard detail fields some providers pack
// into usage; sanitizeUsage lifts out the standard subset.
type upstreamUsage struct {
	PromptTokens            int                             `json:"prompt_tokens"`
	CompletionTokens        int                             `json:"completion_tokens"`
	TotalTokens             int                             `json:"total_tokens"`
	PromptTokensDetails     *relaymodel.PromptTokensDetails `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails map[string]json.Number          `json:"completion_tokens_details,omitempty"`
}

type upstreamMessage struct {
	Role             string                  `json:"role"`
	Content          any                     `json:"content"`
	Reasoning        string                  `json:"reasoning,omitempty"`
	ReasoningContent string                  `json:"reasoning_content,omitempty"`
	ToolCalls        []relaymodel.ToolCall   `json:"tool_calls,omitempty"`
	Annotations      []relaymodel.Annotation `json:"annotations,omitempty"`
	WebSearch        []zaiWebSearchResult    `json:"web_search,omitempty"`
}

type zaiWebSearchResult struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

type upstreamChoice struct {
	Index        int             `json:"index"`
	Message      upstreamMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type upstreamResponse struct {
	ID      string            `json:"id"`
	Choices []upstreamChoice  `json:"choices"`
	Usage   *upstreamUsage    `json:"usage,omitempty"`
	Error   *relaymodel.Error `json:"error,omitempty"`
}

func (m *upstreamMessage) stringContent() string {
	if s, ok := m.Content.(string); ok {
		return s
	}
	return ""
}

// ParseResponse decodes a completed chat-completions body into the canonical
// form, applying the provider-specific overrides for providerID.
func ParseResponse(providerID string, body []byte) (*relaymodel.CanonicalResponse, error) {
	var resp upstreamResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "unmarshal chat completion")
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, errors.Errorf("upstream error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned")
	}
	choice := resp.Choices[0]

	canonical := &relaymodel.CanonicalResponse{
		Content:      choice.Message.stringContent(),
		FinishReason: relaymodel.NormalizeFinishReason(choice.FinishReason),
		ToolCalls:    choice.Message.ToolCalls,
		Annotations:  choice.Message.Annotations,
	}
	canonical.ReasoningContent = choice.Message.Reasoning
	if canonical.ReasoningContent == "" {
		canonical.ReasoningContent = choice.Message.ReasoningContent
	}

	switch providerID {
	case ProviderMistral, ProviderNovita:
		canonical.Content = extractJSONFence(canonical.Content)
	case ProviderZAI:
		for _, w := range choice.Message.WebSearch {
			canonical.Annotations = append(canonical.Annotations, relaymodel.Annotation{
				Type:        "url_citation",
				URLCitation: &relaymodel.URLCitation{URL: w.Link, Title: w.Title},
			})
		}
		canonical.WebSearchCount = len(choice.Message.WebSearch)
	}

	if u := sanitizeUsage(resp.Usage); u != nil {
		canonical.PromptTokens = u.PromptTokens
		canonical.CompletionTokens = u.CompletionTokens
		canonical.TotalTokens = u.TotalTokens
		if u.PromptTokensDetails != nil {
			canonical.CachedTokens = u.PromptTokensDetails.CachedTokens
		}
		if u.CompletionTokensDetails != nil {
			canonical.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
		}
	}
	return canonical, nil
}

// sanitizeUsage drops non-standard completion_tokens_details fields while
// keeping reasoning_tokens.
func sanitizeUsage(u *upstreamUsage) *relaymodel.Usage {
	if u == nil {
		return nil
	}
	out := &relaymodel.Usage{
		PromptTokens:        u.PromptTokens,
		CompletionTokens:    u.CompletionTokens,
		TotalTokens:         u.TotalTokens,
		PromptTokensDetails: u.PromptTokensDetails,
	}
	if raw, ok := u.CompletionTokensDetails["reasoning_tokens"]; ok {
		if n, err := raw.Int64(); err == nil && n > 0 {
			out.CompletionTokensDetails = &relaymodel.CompletionTokensDetails{ReasoningTokens: int(n)}
		}
	}
	return out
}

// extractJSONFence unwraps content of the form ```json\n{...}\n``` and
// re-serializes the parsed document. Content that is not a single fenced
// JSON block passes through untouched.
func extractJSONFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}
	rest := strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		lang := strings.TrimSpace(rest[:idx])
		if lang != "" && !strings.EqualFold(lang, "json") {
			return content
		}
		rest = rest[idx+1:]
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), "```")
	rest = strings.TrimSpace(rest)

	var parsed any
	if err := json.Unmarshal([]byte(rest), &parsed); err != nil {
		return content
	}
	reserialized, err := json.Marshal(parsed)
	if err != nil {
		return content
	}
	return string(reserialized)
}
