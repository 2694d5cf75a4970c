package anthropic

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

// ParseResponse decodes a completed Messages response into the canonical
// form. Text blocks concatenate into content, thinking blocks into
// reasoning, tool_use blocks into tool calls, web search results into
// annotations.
func ParseResponse(body []byte) (*relaymodel.CanonicalResponse, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "unmarshal anthropic response")
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, errors.Errorf("upstream error: %s", resp.Error.Message)
	}

	canonical := &relaymodel.CanonicalResponse{
		FinishReason: relaymodel.NormalizeFinishReason(resp.StopReason),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			canonical.Content += block.Text
			for _, cit := range block.Citations {
				if cit.URL == "" {
					continue
				}
				canonical.Annotations = append(canonical.Annotations, relaymodel.Annotation{
					Type:        "url_citation",
					URLCitation: &relaymodel.URLCitation{URL: cit.URL, Title: cit.Title},
				})
			}
		case "thinking":
			canonical.ReasoningContent += block.Thinking
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				return nil, errors.Wrap(err, "marshal tool input")
			}
			canonical.ToolCalls = append(canonical.ToolCalls, relaymodel.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: relaymodel.FunctionCall{
					Name:      block.Name,
					Arguments: string(args),
				},
			})
		case "web_search_tool_result":
			canonical.WebSearchCount++
			for _, result := range block.Content {
				canonical.Annotations = append(canonical.Annotations, relaymodel.Annotation{
					Type:        "url_citation",
					URLCitation: &relaymodel.URLCitation{URL: result.URL, Title: result.Title},
				})
			}
		}
	}

	canonical.PromptTokens = resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens
	canonical.CachedTokens = resp.Usage.CacheReadInputTokens
	canonical.CompletionTokens = resp.Usage.OutputTokens
	canonical.TotalTokens = canonical.PromptTokens + canonical.CompletionTokens
	return canonical, nil
}

// Handler parses a non-streaming Messages response and writes the canonical
// rendering back to the client.
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

// ConvertRequest maps the canonical OpenAI request onto the Messages shape.
// System messages move to the top-level system field.
func ConvertRequest(request *relaymodel.GeneralOpenAIRequest, actualModel string) *Request {
	out := &Request{
		Model:       actualModel,
		MaxTokens:   request.MaxTokens,
		Stream:      request.Stream,
		Temperature: request.Temperature,
		TopP:        request.TopP,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
	}
	for _, msg := range request.Messages {
		if msg.Role == "system" {
			if out.System != "" {
				out.System += "\n"
			}
			out.System += msg.StringContent()
			continue
		}
		out.Messages = append(out.Messages, Message{Role: msg.Role, Content: msg.Content})
	}
	for _, tool := range request.Tools {
		out.Tools = append(out.Tools, Tool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}
	if request.ToolChoice != nil {
		out.ToolChoice = request.ToolChoice
	}
	if stops, ok := request.Stop.([]any); ok {
		for _, s := range stops {
			if str, ok := s.(string); ok {
				out.StopSequences = append(out.StopSequences, str)
			}
		}
	} else if stop, ok := request.Stop.(string); ok && stop != "" {
		out.StopSequences = []string{stop}
	}
	return out
}
