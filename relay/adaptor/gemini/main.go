package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/common/rdb"
	"github.com/llmgateway/llmgateway/relay/adaptor"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
	"github.com/llmgateway/llmgateway/relay/pricing"
)

var mimeTypeMap = map[string]string{
	"json_object": "application/json",
	"json_schema": "application/json",
	"text":        "text/plain",
}

// ConvertRequest maps the canonical OpenAI request onto generateContent.
// System messages become the systemInstruction; assistant turns map to the
// "model" role. Replayed assistant tool calls become functionCall parts with
// their thought signature restored (from the call's extra_content, else the
// Redis cache), and tool-role results become functionResponse parts.
func ConvertRequest(ctx context.Context, request *relaymodel.GeneralOpenAIRequest) *ChatRequest {
	out := &ChatRequest{
		GenerationConfig: &GenerationConfig{
			Temperature:     request.Temperature,
			TopP:            request.TopP,
			MaxOutputTokens: request.MaxTokens,
		},
	}
	if request.ResponseFormat != nil {
		if mime, ok := mimeTypeMap[request.ResponseFormat.Type]; ok {
			out.GenerationConfig.ResponseMimeType = mime
		}
	}
	if stop, ok := request.Stop.(string); ok && stop != "" {
		out.GenerationConfig.StopSequences = []string{stop}
	}

	// Function names by tool-call id, so tool results can name the function
	// they answer.
	callNames := map[string]string{}
	for _, msg := range request.Messages {
		switch msg.Role {
		case "system":
			out.SystemInstruction = &Content{Parts: []Part{{Text: msg.StringContent()}}}
		case "assistant":
			out.Contents = append(out.Contents, assistantContent(ctx, msg, callNames))
		case "tool":
			out.Contents = append(out.Contents, Content{Role: "user", Parts: []Part{{
				FunctionResponse: &FunctionResponse{
					Name:     callNames[msg.ToolCallID],
					Response: map[string]any{"result": msg.StringContent()},
				},
			}}})
		default:
			out.Contents = append(out.Contents, Content{Role: "user", Parts: []Part{{Text: msg.StringContent()}}})
		}
	}

	if len(request.Tools) > 0 {
		decl := ToolDeclaration{}
		for _, tool := range request.Tools {
			decl.FunctionDeclarations = append(decl.FunctionDeclarations, FunctionDeclaration{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			})
		}
		out.Tools = []ToolDeclaration{decl}
	}
	return out
}

// assistantContent rebuilds a prior model turn. Tool calls round-trip as
// functionCall parts; the thought signature cached at parse time is
// re-injected so Gemini accepts the replayed call.
func assistantContent(ctx context.Context, msg relaymodel.Message, callNames map[string]string) Content {
	content := Content{Role: "model"}
	if text := msg.StringContent(); text != "" {
		content.Parts = append(content.Parts, Part{Text: text})
	}
	for _, call := range msg.ToolCalls {
		callNames[call.ID] = call.Function.Name
		var args any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				args = call.Function.Arguments
			}
		}
		part := Part{FunctionCall: &FunctionCall{Name: call.Function.Name, Args: args}}
		if sig, ok := call.Extra["thought_signature"].(string); ok && sig != "" {
			part.ThoughtSignature = sig
		} else if sig := rdb.GetThoughtSignature(ctx, call.ID); sig != "" {
			part.ThoughtSignature = sig
		}
		content.Parts = append(content.Parts, part)
	}
	if len(content.Parts) == 0 {
		content.Parts = []Part{{Text: ""}}
	}
	return content
}

// toolCallID builds the deterministic id for a parsed function call.
func toolCallID(name string, candidateIndex, partIndex int) string {
	return fmt.Sprintf("%s_%d_%d", name, candidateIndex, partIndex)
}

// ParseResponse decodes a completed generateContent response. Totals are
// recomputed from the per-kind counts; the upstream totalTokenCount is
// ignored because it omits thought tokens on some models. Thought signatures
// are cached in Redis so multi-turn clients that drop extra_content can
// still replay them.
func ParseResponse(ctx context.Context, body []byte) (*relaymodel.CanonicalResponse, error) {
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "unmarshal gemini response")
	}

	canonical := &relaymodel.CanonicalResponse{FinishReason: relaymodel.FinishStop}

	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		canonical.FinishReason = relaymodel.NormalizeFinishReason(candidate.FinishReason)

		for partIndex, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, errors.Wrap(err, "marshal function args")
				}
				call := relaymodel.ToolCall{
					ID:   toolCallID(part.FunctionCall.Name, candidate.Index, partIndex),
					Type: "function",
					Function: relaymodel.FunctionCall{
						Name:      part.FunctionCall.Name,
						Arguments: string(args),
					},
				}
				if part.ThoughtSignature != "" {
					call.Extra = map[string]any{"thought_signature": part.ThoughtSignature}
					rdb.CacheThoughtSignature(ctx, call.ID, part.ThoughtSignature)
				}
				canonical.ToolCalls = append(canonical.ToolCalls, call)
			case part.InlineData != nil:
				canonical.Images = append(canonical.Images,
					fmt.Sprintf("data:%s;base64,%s", part.InlineData.MimeType, part.InlineData.Data))
			case part.Thought:
				canonical.ReasoningContent += part.Text
			default:
				canonical.Content += part.Text
			}
		}

		if gm := candidate.GroundingMetadata; gm != nil {
			for _, chunk := range gm.GroundingChunks {
				if chunk.Web == nil {
					continue
				}
				canonical.Annotations = append(canonical.Annotations, relaymodel.Annotation{
					Type:        "url_citation",
					URLCitation: &relaymodel.URLCitation{URL: chunk.Web.URI, Title: chunk.Web.Title},
				})
			}
			canonical.WebSearchCount = len(canonical.Annotations)
		}
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		canonical.FinishReason = relaymodel.FinishContentFilter
	}

	if um := resp.UsageMetadata; um != nil {
		canonical.PromptTokens = um.PromptTokenCount
		canonical.CompletionTokens = um.CandidatesTokenCount
		canonical.ReasoningTokens = um.ThoughtsTokenCount
	}
	if canonical.CompletionTokens == 0 && canonical.Content != "" {
		canonical.CompletionTokens = pricing.EstimateTokens(canonical.Content)
	}
	canonical.TotalTokens = canonical.PromptTokens + canonical.CompletionTokens + canonical.ReasoningTokens
	return canonical, nil
}

// Handler parses a non-streaming generateContent response and writes the
// canonical rendering back to the client.
func Handler(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "read response body"), "read_response_body_failed", http.StatusInternalServerError)
	}
	if err = resp.Body.Close(); err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "close response body"), "close_response_body_failed", http.StatusInternalServerError)
	}

	canonical, err := ParseResponse(c.Request.Context(), body)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(err, "parse_response_failed", http.StatusInternalServerError)
	}
	if apiErr := adaptor.WriteTextResponse(c, m, canonical); apiErr != nil {
		return nil, apiErr
	}
	return canonical, nil
}
