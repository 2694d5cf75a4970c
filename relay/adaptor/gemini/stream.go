package gemini

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/common"
	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/common/helper"
	"github.com/llmgateway/llmgateway/common/rdb"
	"github.com/llmgateway/llmgateway/common/render"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
	"github.com/llmgateway/llmgateway/relay/streaming"
)

// StreamHandler relays a streamGenerateContent SSE stream. Google does not
// align SSE events with JSON boundaries on large frames (base64 images), so
// fragments accumulate in an assembler until they parse.
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
	var usageMeta *UsageMetadata
	toolCallCount := 0
	var assembler streaming.Assembler

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

	handleFrame := func(frame []byte) {
		var gemResp ChatResponse
		if err := json.Unmarshal(frame, &gemResp); err != nil {
			lg.Error("unmarshal stream frame", zap.Error(errors.Wrap(err, "unmarshal frame")))
			return
		}
		if gemResp.UsageMetadata != nil {
			usageMeta = gemResp.UsageMetadata
		}

		if gemResp.PromptFeedback != nil && gemResp.PromptFeedback.BlockReason != "" {
			canonical.FinishReason = relaymodel.FinishContentFilter
			return
		}
		if len(gemResp.Candidates) == 0 {
			return
		}
		candidate := gemResp.Candidates[0]

		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					lg.Error("marshal function args", zap.Error(err))
					continue
				}
				idx := toolCallCount
				toolCallCount++
				call := relaymodel.ToolCall{
					Index: &idx,
					ID:    fmt.Sprintf("%s_%d_%d", part.FunctionCall.Name, helper.GetTimestamp(), idx),
					Type:  "function",
					Function: relaymodel.FunctionCall{
						Name:      part.FunctionCall.Name,
						Arguments: string(args),
					},
				}
				if part.ThoughtSignature != "" {
					call.Extra = map[string]any{"thought_signature": part.ThoughtSignature}
					rdb.CacheThoughtSignature(c.Request.Context(), call.ID, part.ThoughtSignature)
				}
				canonical.ToolCalls = append(canonical.ToolCalls, call)
				emit(relaymodel.Delta{ToolCalls: []relaymodel.ToolCall{call}}, nil, nil)
			case part.InlineData != nil:
				img := fmt.Sprintf("data:%s;base64,%s", part.InlineData.MimeType, part.InlineData.Data)
				canonical.Images = append(canonical.Images, img)
				emit(relaymodel.Delta{Images: []string{img}}, nil, nil)
			case part.Thought:
				canonical.ReasoningContent += part.Text
				emit(relaymodel.Delta{Reasoning: part.Text}, nil, nil)
			default:
				if part.Text != "" {
					canonical.Content += part.Text
					emit(relaymodel.Delta{Content: part.Text}, nil, nil)
				}
			}
		}

		if candidate.FinishReason != "" && canonical.FinishReason == relaymodel.FinishStop {
			canonical.FinishReason = relaymodel.NormalizeFinishReason(candidate.FinishReason)
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
		assembler.Append([]byte(strings.TrimPrefix(data, "data: ")))
		if !assembler.Ready() {
			continue
		}
		frame := assembler.Bytes()
		if !json.Valid(frame) {
			continue
		}
		handleFrame(frame)
		assembler.Reset()
	}

	if len(canonical.ToolCalls) > 0 && canonical.FinishReason == relaymodel.FinishStop {
		canonical.FinishReason = relaymodel.FinishToolCalls
	}
	if usageMeta != nil {
		canonical.PromptTokens = usageMeta.PromptTokenCount
		canonical.CompletionTokens = usageMeta.CandidatesTokenCount
		canonical.ReasoningTokens = usageMeta.ThoughtsTokenCount
	}
	canonical.TotalTokens = canonical.PromptTokens + canonical.CompletionTokens + canonical.ReasoningTokens

	usage := canonical.Usage()
	finish := canonical.FinishReason
	emit(relaymodel.Delta{}, &finish, &usage)
	render.Done(c)
	return canonical, nil
}
