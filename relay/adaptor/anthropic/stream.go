package anthropic

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

// StreamHandler relays a streamed Messages response as canonical OpenAI
// chunks. Tool-call opening chunks always precede their argument deltas; the
// finish chunk is emitted last.
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
	var promptUsage Usage
	outputTokens := 0
	finishSent := false
	toolArgs := newStreamToolState()

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

		var event StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			lg.Error("unmarshal stream event", zap.Error(errors.Wrap(err, "unmarshal event")))
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				promptUsage = event.Message.Usage
			}
			emit(relaymodel.Delta{Role: "assistant"}, nil, nil)

		case "content_block_start":
			if event.ContentBlock == nil {
				continue
			}
			switch event.ContentBlock.Type {
			case "tool_use":
				idx := event.Index
				toolArgs.open(idx, event.ContentBlock.ID, event.ContentBlock.Name)
				emit(relaymodel.Delta{ToolCalls: []relaymodel.ToolCall{{
					Index:    &idx,
					ID:       event.ContentBlock.ID,
					Type:     "function",
					Function: relaymodel.FunctionCall{Name: event.ContentBlock.Name, Arguments: ""},
				}}}, nil, nil)
			case "web_search_tool_result":
				canonical.WebSearchCount++
				var annotations []relaymodel.Annotation
				for _, result := range event.ContentBlock.Content {
					annotations = append(annotations, relaymodel.Annotation{
						Type:        "url_citation",
						URLCitation: &relaymodel.URLCitation{URL: result.URL, Title: result.Title},
					})
				}
				if len(annotations) > 0 {
					canonical.Annotations = append(canonical.Annotations, annotations...)
					emit(relaymodel.Delta{Annotations: annotations}, nil, nil)
				}
			}

		case "content_block_delta":
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				canonical.Content += event.Delta.Text
				emit(relaymodel.Delta{Content: event.Delta.Text}, nil, nil)
			case "thinking_delta":
				canonical.ReasoningContent += event.Delta.Thinking
				emit(relaymodel.Delta{Reasoning: event.Delta.Thinking}, nil, nil)
			case "input_json_delta":
				idx := event.Index
				toolArgs.appendArgs(idx, event.Delta.PartialJSON)
				emit(relaymodel.Delta{ToolCalls: []relaymodel.ToolCall{{
					Index:    &idx,
					Function: relaymodel.FunctionCall{Arguments: event.Delta.PartialJSON},
				}}}, nil, nil)
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				canonical.FinishReason = relaymodel.NormalizeFinishReason(event.Delta.StopReason)
			}
			if event.Usage != nil {
				outputTokens = event.Usage.OutputTokens
			}

		case "message_stop":
			canonical.ToolCalls = toolArgs.finalize()
			canonical.PromptTokens = promptUsage.InputTokens + promptUsage.CacheCreationInputTokens + promptUsage.CacheReadInputTokens
			canonical.CachedTokens = promptUsage.CacheReadInputTokens
			canonical.CompletionTokens = outputTokens
			canonical.TotalTokens = canonical.PromptTokens + canonical.CompletionTokens
			usage := canonical.Usage()
			finish := canonical.FinishReason
			emit(relaymodel.Delta{}, &finish, &usage)
			finishSent = true

		case "error":
			if event.Error != nil {
				lg.Error("upstream stream error", zap.String("message", event.Error.Message))
			}
		}
	}

	if !finishSent {
		canonical.ToolCalls = toolArgs.finalize()
		finish := canonical.FinishReason
		emit(relaymodel.Delta{}, &finish, nil)
	}
	render.Done(c)
	return canonical, nil
}

// streamToolState accumulates streamed tool_use blocks keyed by their block
// index so the canonical response carries complete calls.
type streamToolState struct {
	order []int
	calls map[int]*relaymodel.ToolCall
}

func newStreamToolState() *streamToolState {
	return &streamToolState{calls: make(map[int]*relaymodel.ToolCall)}
}

func (s *streamToolState) open(idx int, id, name string) {
	if _, ok := s.calls[idx]; ok {
		return
	}
	s.calls[idx] = &relaymodel.ToolCall{
		ID:       id,
		Type:     "function",
		Function: relaymodel.FunctionCall{Name: name},
	}
	s.order = append(s.order, idx)
}

func (s *streamToolState) appendArgs(idx int, fragment string) {
	if call, ok := s.calls[idx]; ok {
		call.Function.Arguments += fragment
	}
}

func (s *streamToolState) finalize() []relaymodel.ToolCall {
	if len(s.order) == 0 {
		return nil
	}
	out := make([]relaymodel.ToolCall, 0, len(s.order))
	for _, idx := range s.order {
		out = append(out, *s.calls[idx])
	}
	return out
}
