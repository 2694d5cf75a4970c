package controller

import (
	"encoding/json"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/common/ctxkey"
	"github.com/llmgateway/llmgateway/model"
	"github.com/llmgateway/llmgateway/monitor"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
	"github.com/llmgateway/llmgateway/relay/pricing"
	"github.com/llmgateway/llmgateway/relay/scorer"
	"github.com/llmgateway/llmgateway/worker/logconsumer"
)

// logRecordInput collects everything one request leaves behind for its log
// record. canonical, cost, routing and relayErr may each be nil.
type logRecordInput struct {
	meta              *meta.Meta
	req               *relaymodel.GeneralOpenAIRequest
	requestedProvider string
	canonical         *relaymodel.CanonicalResponse
	cost              *pricing.Cost
	routing           *scorer.RoutingMetadata
	relayErr          *relaymodel.ErrorWithStatusCode
	unified           string
	canceled          bool
}

// computeCost prices the finished request. Returns nil when the model is not
// in the catalog (custom upstreams) or no token count could be established.
func computeCost(m *meta.Meta, req *relaymodel.GeneralOpenAIRequest, canonical *relaymodel.CanonicalResponse) *pricing.Cost {
	in := pricing.Input{
		ModelID:          m.ActualModelName,
		ProviderID:       mappingProvider(m),
		OutputImageCount: len(canonical.Images),
		WebSearchCount:   canonical.WebSearchCount,
	}
	if m.Model != nil {
		in.ModelID = m.Model.ID
	}
	if req.ImageConfig != nil {
		in.ImageSize = req.ImageConfig.Size
	}
	for i := range req.Messages {
		for _, part := range req.Messages[i].ParseContent() {
			if part.Type == relaymodel.ContentTypeImageURL {
				in.InputImageCount++
			}
		}
	}

	if canonical.PromptTokens > 0 || canonical.TotalTokens > 0 {
		pt := canonical.PromptTokens
		in.PromptTokens = &pt
	} else {
		var text string
		for i := range req.Messages {
			text += req.Messages[i].StringContent()
		}
		in.EstimationText = text + canonical.Content
	}
	ct := canonical.CompletionTokens
	in.CompletionTokens = &ct
	if canonical.CachedTokens > 0 {
		cached := canonical.CachedTokens
		in.CachedTokens = &cached
	}
	if canonical.ReasoningTokens > 0 {
		reasoning := canonical.ReasoningTokens
		in.ReasoningTokens = &reasoning
	}
	return pricing.Calculate(registry, in)
}

func mappingProvider(m *meta.Meta) string {
	if m.Mapping != nil {
		return m.Mapping.ProviderID
	}
	return ""
}

// emitLog assembles the request's log record and pushes it to the Redis queue
// without blocking the response path.
func emitLog(c *gin.Context, in logRecordInput) {
	l := buildLog(c, in)
	logconsumer.EnqueueLog(l)
	monitor.RecordRelay(l.UsedProvider, l.UsedModel, l.UnifiedFinishReason,
		time.Duration(l.Duration)*time.Millisecond,
		l.PromptTokens, l.CompletionTokens, l.Cost.InexactFloat64())
	gmw.GetLogger(c).Info("relay finished",
		zap.String("requestId", l.RequestID),
		zap.String("model", l.RequestedModel),
		zap.String("provider", l.UsedProvider),
		zap.String("finish", l.UnifiedFinishReason),
		zap.Int64("durationMs", l.Duration),
		zap.Bool("hasError", l.HasError))
}

func buildLog(c *gin.Context, in logRecordInput) *model.Log {
	m := in.meta
	l := &model.Log{
		RequestID:         m.RequestID,
		OrganizationID:    m.OrganizationID,
		ProjectID:         m.ProjectID,
		ApiKeyID:          m.APIKeyID,
		CreatedAt:         time.Now().UTC(),
		Duration:          time.Since(m.StartTime).Milliseconds(),
		RequestedModel:    m.OriginModelName,
		RequestedProvider: in.requestedProvider,
		UsedModelMapping:  m.ActualModelName,
		UsedModel:         m.ActualModelName,
		Streamed:          m.IsStream,
		Canceled:          in.canceled,
		Mode:              c.GetString(ctxkey.Mode),
		Source:            c.GetString(ctxkey.Source),
	}
	if l.RequestedModel == "" && in.req != nil {
		l.RequestedModel = in.req.Model
	}
	if m.Model != nil {
		l.UsedModel = m.Model.ID
	}
	if m.Provider != nil {
		l.UsedProvider = m.Provider.ID
	}
	if !m.FirstChunkAt.IsZero() {
		ttft := m.FirstChunkAt.Sub(m.StartTime).Milliseconds()
		l.TimeToFirstToken = &ttft
	}
	l.UsedMode = resolveUsedMode(l.Mode, m)

	if in.req != nil {
		l.Messages = jsonText(in.req.Messages)
		l.Tools = jsonText(in.req.Tools)
		if in.req.ToolChoice != nil {
			l.ToolChoice = jsonText(in.req.ToolChoice)
		}
		var toolResults []relaymodel.Message
		for i := range in.req.Messages {
			if in.req.Messages[i].Role == "tool" {
				toolResults = append(toolResults, in.req.Messages[i])
			}
		}
		l.ToolResults = jsonText(toolResults)
	}

	if in.canonical != nil {
		l.Content = textPtr(in.canonical.Content)
		l.ReasoningContent = textPtr(in.canonical.ReasoningContent)
		l.ResponseSize = len(in.canonical.Content)
		l.FinishReason = relaymodel.NormalizeFinishReason(in.canonical.FinishReason)
		l.PromptTokens = in.canonical.PromptTokens
		l.CompletionTokens = in.canonical.CompletionTokens
		l.ReasoningTokens = in.canonical.ReasoningTokens
		l.CachedTokens = in.canonical.CachedTokens
		l.TotalTokens = in.canonical.TotalTokens
		if l.TotalTokens == 0 {
			l.TotalTokens = l.PromptTokens + l.CompletionTokens
		}
	}
	l.UnifiedFinishReason = in.unified

	if in.cost != nil {
		l.Cost = in.cost.Total
		l.InputCost = in.cost.Input
		l.OutputCost = in.cost.Output
		l.CachedInputCost = in.cost.CachedInput
		l.RequestCost = in.cost.Request
		l.ImageInputCost = in.cost.ImageInput
		l.ImageOutputCost = in.cost.ImageOutput
		l.WebSearchCost = in.cost.WebSearch
		l.EstimatedCost = in.cost.Estimated
		l.Discount = in.cost.Discount
		l.PricingTier = in.cost.PricingTier
		// Cost tracks the billed prompt total, which folds in image tokens.
		l.PromptTokens = in.cost.PromptTokens
	}

	if in.relayErr != nil {
		l.HasError = true
		l.ErrorDetails = jsonText(in.relayErr.Error)
	}
	if in.routing != nil {
		l.RoutingMetadata = jsonText(in.routing)
	}
	return l
}

// resolveUsedMode settles hybrid accounting: a caller-supplied upstream key
// (key index -1) bills as BYOK, everything else as credits.
func resolveUsedMode(mode string, m *meta.Meta) string {
	if mode != model.ModeHybrid {
		return mode
	}
	if m.KeyIndex < 0 && m.APIKey != "" {
		return model.ModeAPIKeys
	}
	return model.ModeCredits
}

func jsonText(v any) *string {
	raw, err := json.Marshal(v)
	if err != nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	s := string(raw)
	return &s
}

func textPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
