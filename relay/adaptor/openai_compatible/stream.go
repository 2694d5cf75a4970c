package openai_compatible

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

const dataPrefix = "data: "
const done = "[DONE]"

type upstreamDelta struct {
	Role             string                  `json:"role,omitempty"`
	Content          any                     `json:"content,omitempty"`
	Reasoning        string                  `json:"reasoning,omitempty"`
	ReasoningContent string                  `json:"reasoning_content,omitempty"`
	ToolCalls        []relaymodel.ToolCall   `json:"tool_calls,omitempty"`
	Annotations      []relaymodel.Annotation `json:"annotations,omitempty"`
}

type upstreamStreamChoice struct {
	Index        int           `json:"index"`
	Delta        upstreamDelta `json:"delta"`
	FinishReason *string       `json:"finish_reason,omitempty"`
}

type upstreamChunk struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []upstreamStreamChoice `json:"choices"`
	Usage   *upstreamUsage         `json:"usage,omitempty"`
}

// StreamHandler relays a chat-completions SSE stream, normalizing every chunk
// and accumulating the canonical result for billing.
func StreamHandler(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode) {
	lg := gmw.GetLogger(c)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	helper.ConfigureScannerBuffer(scanner)
	scanner.Split(bufio.ScanLines)

	common.SetEventStreamHeaders(c)

	canonical := &relaymodel.CanonicalResponse{FinishReason: relaymodel.FinishStop}
	var usage *relaymodel.Usage
	toolArgs := newToolCallAccumulator()

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
		if !strings.HasPrefix(data, dataPrefix) {
			continue
		}
		data = strings.TrimPrefix(data, dataPrefix)
		if data == done {
			break
		}

		var chunk upstreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			lg.Error("unmarshal stream chunk", zap.Error(errors.Wrap(err, "unmarshal chunk")))
			continue
		}

		out := normalizeChunk(&chunk, m.OriginModelName)
		if chunk.Usage != nil {
			usage = sanitizeUsage(chunk.Usage)
			out.Usage = usage
		}
		accumulateChunk(canonical, out, toolArgs)

		m.MarkFirstChunk()
		if err := render.ObjectData(c, out); err != nil {
			lg.Error("render stream chunk", zap.Error(err))
		}
	}

	render.Done(c)

	canonical.ToolCalls = toolArgs.finalize()
	if usage != nil {
		canonical.PromptTokens = usage.PromptTokens
		canonical.CompletionTokens = usage.CompletionTokens
		canonical.TotalTokens = usage.TotalTokens
		if usage.PromptTokensDetails != nil {
			canonical.CachedTokens = usage.PromptTokensDetails.CachedTokens
		}
		if usage.CompletionTokensDetails != nil {
			canonical.ReasoningTokens = usage.CompletionTokensDetails.ReasoningTokens
		}
	}
	return canonical, nil
}

// normalizeChunk rewrites one upstream chunk into the canonical chunk shape:
// object fixed, reasoning_content renamed, finish reasons mapped.
func normalizeChunk(chunk *upstreamChunk, modelName string) *relaymodel.ChatCompletionsStreamResponse {
	out := &relaymodel.ChatCompletionsStreamResponse{
		ID:      chunk.ID,
		Object:  "chat.completion.chunk",
		Created: chunk.Created,
		Model:   modelName,
	}
	if out.ID == "" {
		out.ID = helper.GenerateChatCompletionID()
	}
	if out.Created == 0 {
		out.Created = helper.GetTimestamp()
	}
	for _, ch := range chunk.Choices {
		choice := relaymodel.StreamChoice{
			Index: ch.Index,
			Delta: relaymodel.Delta{
				Role:        ch.Delta.Role,
				Content:     ch.Delta.Content,
				Reasoning:   ch.Delta.Reasoning,
				ToolCalls:   ch.Delta.ToolCalls,
				Annotations: ch.Delta.Annotations,
			},
		}
		if choice.Delta.Reasoning == "" {
			choice.Delta.Reasoning = ch.Delta.ReasoningContent
		}
		if ch.FinishReason != nil && *ch.FinishReason != "" {
			mapped := relaymodel.NormalizeFinishReason(*ch.FinishReason)
			choice.FinishReason = &mapped
		}
		out.Choices = append(out.Choices, choice)
	}
	return out
}

func accumulateChunk(canonical *relaymodel.CanonicalResponse, chunk *relaymodel.ChatCompletionsStreamResponse, toolArgs *toolCallAccumulator) {
	for i := range chunk.Choices {
		ch := &chunk.Choices[i]
		if ch.Index != 0 {
			continue
		}
		canonical.Content += ch.Delta.StringContent()
		canonical.ReasoningContent += ch.Delta.Reasoning
		canonical.Annotations = append(canonical.Annotations, ch.Delta.Annotations...)
		toolArgs.add(ch.Delta.ToolCalls)
		if ch.FinishReason != nil && *ch.FinishReason != "" {
			canonical.FinishReason = *ch.FinishReason
		}
	}
}

// toolCallAccumulator assembles streamed tool-call fragments keyed by their
// tool-call index. Opening chunks carry id/type/name; follow-ups only append
// argument text.
type toolCallAccumulator struct {
	order []int
	calls map[int]*relaymodel.ToolCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[int]*relaymodel.ToolCall)}
}

func (a *toolCallAccumulator) add(fragments []relaymodel.ToolCall) {
	for _, f := range fragments {
		idx := 0
		if f.Index != nil {
			idx = *f.Index
		}
		call, ok := a.calls[idx]
		if !ok {
			copied := f
			a.calls[idx] = &copied
			a.order = append(a.order, idx)
			continue
		}
		if f.ID != "" {
			call.ID = f.ID
		}
		if f.Function.Name != "" {
			call.Function.Name = f.Function.Name
		}
		call.Function.Arguments += f.Function.Arguments
	}
}

func (a *toolCallAccumulator) finalize() []relaymodel.ToolCall {
	if len(a.order) == 0 {
		return nil
	}
	out := make([]relaymodel.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, *a.calls[idx])
	}
	return out
}
