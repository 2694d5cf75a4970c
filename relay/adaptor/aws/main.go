package aws

import (
	"encoding/json"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/relay/adaptor"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

// ConvertRequest maps the canonical OpenAI request onto a Converse input.
func ConvertRequest(request *relaymodel.GeneralOpenAIRequest, actualModel string) (*bedrockruntime.ConverseInput, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(actualModel),
	}

	inference := &types.InferenceConfiguration{}
	configured := false
	if request.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(request.MaxTokens))
		configured = true
	}
	if request.Temperature != nil {
		inference.Temperature = aws.Float32(float32(*request.Temperature))
		configured = true
	}
	if request.TopP != nil {
		inference.TopP = aws.Float32(float32(*request.TopP))
		configured = true
	}
	if configured {
		input.InferenceConfig = inference
	}

	for _, msg := range request.Messages {
		if msg.Role == "system" {
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: msg.StringContent()})
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.StringContent()}},
		})
	}

	if len(request.Tools) > 0 {
		toolConfig := &types.ToolConfiguration{}
		for _, tool := range request.Tools {
			toolConfig.Tools = append(toolConfig.Tools, &types.ToolMemberToolSpec{
				Value: types.ToolSpecification{
					Name: aws.String(tool.Function.Name),
					InputSchema: &types.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(tool.Function.Parameters),
					},
				},
			})
		}
		input.ToolConfig = toolConfig
	}
	return input, nil
}

// mapStopReason folds Bedrock stop reasons onto the OpenAI set. Anything
// unrecognized counts as a normal stop.
func mapStopReason(reason types.StopReason) string {
	switch reason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return relaymodel.FinishStop
	case types.StopReasonMaxTokens:
		return relaymodel.FinishLength
	case types.StopReasonToolUse:
		return relaymodel.FinishToolCalls
	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		return relaymodel.FinishContentFilter
	default:
		return relaymodel.FinishStop
	}
}

func canonicalFromConverse(out *bedrockruntime.ConverseOutput) (*relaymodel.CanonicalResponse, error) {
	canonical := &relaymodel.CanonicalResponse{
		FinishReason: mapStopReason(out.StopReason),
	}

	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				canonical.Content += b.Value
			case *types.ContentBlockMemberToolUse:
				args := "{}"
				if b.Value.Input != nil {
					raw, err := b.Value.Input.MarshalSmithyDocument()
					if err != nil {
						return nil, errors.Wrap(err, "marshal tool input")
					}
					args = string(raw)
				}
				canonical.ToolCalls = append(canonical.ToolCalls, relaymodel.ToolCall{
					ID:   aws.ToString(b.Value.ToolUseId),
					Type: "function",
					Function: relaymodel.FunctionCall{
						Name:      aws.ToString(b.Value.Name),
						Arguments: args,
					},
				})
			}
		}
	}

	if u := out.Usage; u != nil {
		cacheRead := int(aws.ToInt32(u.CacheReadInputTokens))
		cacheWrite := int(aws.ToInt32(u.CacheWriteInputTokens))
		canonical.PromptTokens = int(aws.ToInt32(u.InputTokens)) + cacheRead + cacheWrite
		canonical.CachedTokens = cacheRead
		canonical.CompletionTokens = int(aws.ToInt32(u.OutputTokens))
		canonical.TotalTokens = canonical.PromptTokens + canonical.CompletionTokens
	}
	return canonical, nil
}

// Handler performs a blocking Converse call and writes the canonical
// rendering back to the client.
func Handler(c *gin.Context, client *bedrockruntime.Client, input *bedrockruntime.ConverseInput, m *meta.Meta) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode) {
	out, err := client.Converse(c.Request.Context(), input)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "bedrock converse"), "bedrock_converse_failed", http.StatusBadGateway)
	}
	canonical, err := canonicalFromConverse(out)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(err, "parse_response_failed", http.StatusInternalServerError)
	}
	if apiErr := adaptor.WriteTextResponse(c, m, canonical); apiErr != nil {
		return nil, apiErr
	}
	return canonical, nil
}

// parseToolUseDelta tolerates both encodings Bedrock uses for streamed tool
// input: a plain string fragment or a JSON-stringified object.
func parseToolUseDelta(input *string) string {
	if input == nil {
		return ""
	}
	s := *input
	var decoded string
	if err := json.Unmarshal([]byte(s), &decoded); err == nil {
		return decoded
	}
	return s
}
