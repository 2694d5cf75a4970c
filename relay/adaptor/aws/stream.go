package aws

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/common"
	"github.com/llmgateway/llmgateway/common/helper"
	"github.com/llmgateway/llmgateway/common/render"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

// StreamHandler performs a ConverseStream call and relays the event stream
// as canonical OpenAI chunks.
func StreamHandler(c *gin.Context, client *bedrockruntime.Client, input *bedrockruntime.ConverseInput, m *meta.Meta) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode) {
	lg := gmw.GetLogger(c)

	streamInput := &bedrockruntime.ConverseStreamInput{
		ModelId:         input.ModelId,
		Messages:        input.Messages,
		System:          input.System,
		InferenceConfig: input.InferenceConfig,
		ToolConfig:      input.ToolConfig,
	}
	out, err := client.ConverseStream(c.Request.Context(), streamInput)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "bedrock converse stream"), "bedrock_converse_stream_failed", http.StatusBadGateway)
	}
	stream := out.GetStream()
	defer stream.Close()

	common.SetEventStreamHeaders(c)

	chunkID := helper.GenerateChatCompletionID()
	created := helper.GetTimestamp()
	canonical := &relaymodel.CanonicalResponse{FinishReason: relaymodel.FinishStop}
	toolArgs := make(map[int]*relaymodel.ToolCall)
	var toolOrder []int

	emit := func(delta relaymodel.Delta, finishReason *string, usage *relaymodel.Usage) {
		chunk := &relaymodel.ChatCompletionsStreamResponse{
			ID:      chunkID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   m.OriginModelName,
			Choices: []relaymodel.StreamChoice{{Delta: delta, FinishReason: finishReason}},
			Usage:   usage,
		}
		m.MarkFirstChunk()
		if err := render.ObjectData(c, chunk); err != nil {
			lg.Error("render stream chunk", zap.Error(err))
		}
	}

	var finalUsage *relaymodel.Usage
	for event := range stream.Events() {
		switch e := event.(type) {
		case *types.ConverseStreamOutputMemberMessageStart:
			emit(relaymodel.Delta{Role: "assistant"}, nil, nil)

		case *types.ConverseStreamOutputMemberContentBlockStart:
			start, ok := e.Value.Start.(*types.ContentBlockStartMemberToolUse)
			if !ok {
				continue
			}
			idx := int(aws.ToInt32(e.Value.ContentBlockIndex))
			call := &relaymodel.ToolCall{
				ID:       aws.ToString(start.Value.ToolUseId),
				Type:     "function",
				Function: relaymodel.FunctionCall{Name: aws.ToString(start.Value.Name)},
			}
			toolArgs[idx] = call
			toolOrder = append(toolOrder, idx)
			emit(relaymodel.Delta{ToolCalls: []relaymodel.ToolCall{{
				Index:    &idx,
				ID:       call.ID,
				Type:     "function",
				Function: relaymodel.FunctionCall{Name: call.Function.Name, Arguments: ""},
			}}}, nil, nil)

		case *types.ConverseStreamOutputMemberContentBlockDelta:
			switch d := e.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				canonical.Content += d.Value
				emit(relaymodel.Delta{Content: d.Value}, nil, nil)
			case *types.ContentBlockDeltaMemberToolUse:
				idx := int(aws.ToInt32(e.Value.ContentBlockIndex))
				fragment := parseToolUseDelta(d.Value.Input)
				if call, ok := toolArgs[idx]; ok {
					call.Function.Arguments += fragment
				}
				emit(relaymodel.Delta{ToolCalls: []relaymodel.ToolCall{{
					Index:    &idx,
					Function: relaymodel.FunctionCall{Arguments: fragment},
				}}}, nil, nil)
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			canonical.FinishReason = mapStopReason(e.Value.StopReason)

		case *types.ConverseStreamOutputMemberMetadata:
			if u := e.Value.Usage; u != nil {
				cacheRead := int(aws.ToInt32(u.CacheReadInputTokens))
				cacheWrite := int(aws.ToInt32(u.CacheWriteInputTokens))
				canonical.PromptTokens = int(aws.ToInt32(u.InputTokens)) + cacheRead + cacheWrite
				canonical.CachedTokens = cacheRead
				canonical.CompletionTokens = int(aws.ToInt32(u.OutputTokens))
				canonical.TotalTokens = canonical.PromptTokens + canonical.CompletionTokens
				usage := canonical.Usage()
				finalUsage = &usage
			}
		}
	}
	if err := stream.Err(); err != nil {
		lg.Error("bedrock stream error", zap.Error(errors.Wrap(err, "converse stream")))
	}

	for _, idx := range toolOrder {
		canonical.ToolCalls = append(canonical.ToolCalls, *toolArgs[idx])
	}
	finish := canonical.FinishReason
	emit(relaymodel.Delta{}, &finish, finalUsage)
	render.Done(c)
	return canonical, nil
}
