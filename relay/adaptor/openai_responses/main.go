package openai_responses

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/relay/adaptor"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

// ConvertRequest maps the canonical OpenAI chat request onto the Responses
// API shape. System messages become instructions; tools flatten.
func ConvertRequest(request *relaymodel.GeneralOpenAIRequest, actualModel string) *Request {
	out := &Request{
		Model:           actualModel,
		Stream:          request.Stream,
		MaxOutputTokens: request.MaxTokens,
		Temperature:     request.Temperature,
		TopP:            request.TopP,
		ToolChoice:      request.ToolChoice,
	}
	for _, msg := range request.Messages {
		if msg.Role == "system" {
			if out.Instructions != "" {
				out.Instructions += "\n"
			}
			out.Instructions += msg.StringContent()
			continue
		}
		out.Input = append(out.Input, InputMessage{Role: msg.Role, Content: msg.Content})
	}
	for _, tool := range request.Tools {
		out.Tools = append(out.Tools, Tool{
			Type:        "function",
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  tool.Function.Parameters,
		})
	}
	if request.WebSearch {
		out.Tools = append(out.Tools, Tool{Type: "web_search"})
	}
	if request.ReasoningEffort != "" {
		out.Reasoning = &Reasoning{Effort: request.ReasoningEffort}
	}
	return out
}

// ParseResponse decodes a completed Responses API body into the canonical
// form.
func ParseResponse(body []byte) (*relaymodel.CanonicalResponse, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "unmarshal responses body")
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, errors.Errorf("upstream error: %s", resp.Error.Message)
	}

	canonical := &relaymodel.CanonicalResponse{}
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, content := range item.Content {
				canonical.Content += content.Text
				canonical.Annotations = append(canonical.Annotations, urlCitations(content.Annotations)...)
			}
		case "reasoning":
			for _, part := range item.Summary {
				canonical.ReasoningContent += part.Text
			}
		case "function_call":
			id := item.CallID
			if id == "" {
				id = item.ID
			}
			canonical.ToolCalls = append(canonical.ToolCalls, relaymodel.ToolCall{
				ID:   id,
				Type: "function",
				Function: relaymodel.FunctionCall{
					Name:      item.Name,
					Arguments: item.Arguments,
				},
			})
		case "web_search_call":
			canonical.WebSearchCount++
		}
	}

	canonical.FinishReason = finishFromStatus(resp.Status, len(canonical.ToolCalls) > 0)

	if u := resp.Usage; u != nil {
		canonical.PromptTokens = u.InputTokens
		canonical.CompletionTokens = u.OutputTokens
		canonical.TotalTokens = u.TotalTokens
		if canonical.TotalTokens == 0 {
			canonical.TotalTokens = u.InputTokens + u.OutputTokens
		}
		if u.InputTokensDetails != nil {
			canonical.CachedTokens = u.InputTokensDetails.CachedTokens
		}
		if u.OutputTokensDetails != nil {
			canonical.ReasoningTokens = u.OutputTokensDetails.ReasoningTokens
		}
	}
	return canonical, nil
}

// finishFromStatus maps a Responses API status to an OpenAI finish reason.
func finishFromStatus(status string, hasToolCalls bool) string {
	switch status {
	case "completed", "":
		if hasToolCalls {
			return relaymodel.FinishToolCalls
		}
		return relaymodel.FinishStop
	case "incomplete":
		return relaymodel.FinishIncomplete
	default:
		return relaymodel.NormalizeFinishReason(status)
	}
}

func urlCitations(annotations []relaymodel.Annotation) []relaymodel.Annotation {
	var out []relaymodel.Annotation
	for _, a := range annotations {
		if a.Type == "url_citation" {
			out = append(out, a)
		}
	}
	return out
}

// Handler parses a non-streaming Responses API response and writes the
// canonical rendering back to the client.
func Handler(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "read response body"), "read_response_body_failed", http.StatusInternalServerError)
	}
	if err = resp.Body.Close(); err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "close response body"), "close_response_body_failed", http.StatusInternalServerError)
	}

	canonical, err := ParseResponse(body)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(err, "parse_response_failed", http.StatusInternalServerError)
	}
	if apiErr := adaptor.WriteTextResponse(c, m, canonical); apiErr != nil {
		return nil, apiErr
	}
	return canonical, nil
}
