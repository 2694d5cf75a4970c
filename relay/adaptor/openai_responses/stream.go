package openai_responses

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/common"
	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/common/helper"
	"github.com/llmgateway/llmgateway/common/render"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
	"github.com/llmgateway/llmgateway/relay/streaming"
)

// StreamHandler relays a streamed Responses API exchange as canonical OpenAI
// chunks. Function-call items open a tool call when added; argument deltas
// follow under the same index.
func StreamHandler(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode) {
	lg := gmw.GetLogger(c)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	helper.ConfigureScannerBuffer(scanner)
	scanner.Split(bufio.ScanLines)

	common.SetEventStreamHeaders(c)

	chunkID := helper.GenerateChatCompletionID()
	created := helper.GetTimestamp()
	canonical := &relaymodel.CanonicalResponse{FinishReason: relaymodel.FinishStop}
	// itemToolIndex maps a function_call item id to its tool-call index.
	itemToolIndex := make(map[string]int)
	toolCount := 0
	finishSent := false

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

	terminal := func(status string, resp *Response) {
		canonical.FinishReason = finishFromStatus(status, len(canonical.ToolCalls) > 0)
		var usage *relaymodel.Usage
		if resp != nil && resp.Usage != nil {
			canonical.PromptTokens = resp.Usage.InputTokens
			canonical.CompletionTokens = resp.Usage.OutputTokens
			canonical.TotalTokens = resp.Usage.TotalTokens
			if canonical.TotalTokens == 0 {
				canonical.TotalTokens = resp.Usage.InputTokens + resp.Usage.OutputTokens
			}
			if resp.Usage.InputTokensDetails != nil {
				canonical.CachedTokens = resp.Usage.InputTokensDetails.CachedTokens
			}
			if resp.Usage.OutputTokensDetails != nil {
				canonical.ReasoningTokens = resp.Usage.OutputTokensDetails.ReasoningTokens
			}
			u := canonical.Usage()
			usage = &u
		}
		finish := canonical.FinishReason
		emit(relaymodel.Delta{}, &finish, usage)
		finishSent = true
	}

	lines := streaming.PumpLines(c.Request.Context(), scanner)
	interval := config.StreamKeepaliveInterval
	for {
		line, ok := streaming.Next(c.Request.Context(), lines, interval, func() {
			render.Ping(c)
		})
		if !ok {
			break
		}
		if line.Err != nil {
			lg.Error("read upstream stream", zap.Error(errors.Wrap(line.Err, "scanner stream")))
			break
		}
		data := strings.TrimSpace(line.Text)
		if !strings.HasPrefix(data, "data: ") {
			continue
		}
		data = strings.TrimPrefix(data, "data: ")
		if data == "[DONE]" {
			break
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			lg.Error("unmarshal stream event", zap.Error(errors.Wrap(err, "unmarshal event")))
			continue
		}

		switch event.Type {
		case "response.created":
			emit(relaymodel.Delta{Role: "assistant"}, nil, nil)

		case "response.output_item.added":
			if event.Item == nil || event.Item.Type != "function_call" {
				continue
			}
			id := event.Item.CallID
			if id == "" {
				id = event.Item.ID
			}
			idx := toolCount
			toolCount++
			itemToolIndex[event.Item.ID] = idx
			canonical.ToolCalls = append(canonical.ToolCalls, relaymodel.ToolCall{
				ID:       id,
				Type:     "function",
				Function: relaymodel.FunctionCall{Name: event.Item.Name},
			})
			emit(relaymodel.Delta{ToolCalls: []relaymodel.ToolCall{{
				Index:    &idx,
				ID:       id,
				Type:     "function",
				Function: relaymodel.FunctionCall{Name: event.Item.Name, Arguments: ""},
			}}}, nil, nil)

		case "response.output_text.delta":
			canonical.Content += event.Delta
			emit(relaymodel.Delta{Content: event.Delta}, nil, nil)

		case "response.reasoning_summary_text.delta":
			canonical.ReasoningContent += event.Delta
			emit(relaymodel.Delta{Reasoning: event.Delta}, nil, nil)

		case "response.function_call_arguments.delta":
			idx, ok := itemToolIndex[event.ItemID]
			if !ok {
				continue
			}
			canonical.ToolCalls[idx].Function.Arguments += event.Delta
			emit(relaymodel.Delta{ToolCalls: []relaymodel.ToolCall{{
				Index:    &idx,
				Function: relaymodel.FunctionCall{Arguments: event.Delta},
			}}}, nil, nil)

		case "response.function_call_arguments.done":
			if idx, ok := itemToolIndex[event.ItemID]; ok && event.Arguments != "" {
				canonical.ToolCalls[idx].Function.Arguments = event.Arguments
			}

		case "response.output_text.annotation.added":
			if event.Annotation != nil && event.Annotation.Type == "url_citation" {
				canonical.Annotations = append(canonical.Annotations, *event.Annotation)
				emit(relaymodel.Delta{Annotations: []relaymodel.Annotation{*event.Annotation}}, nil, nil)
			}

		case "response.web_search_call.completed":
			canonical.WebSearchCount++

		case "response.completed":
			terminal("completed", event.Response)

		case "response.incomplete":
			terminal("incomplete", event.Response)
		}
	}

	if !finishSent {
		finish := canonical.FinishReason
		emit(relaymodel.Delta{}, &finish, nil)
	}
	render.Done(c)
	return canonical, nil
}
