// Package controller routes chat completion requests: it resolves the model,
// scores candidate providers, selects an upstream credential, relays through
// the provider adaptor and emits the request log record.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/llmgateway/llmgateway/catalog"
	"github.com/llmgateway/llmgateway/common"
	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/common/ctxkey"
	"github.com/llmgateway/llmgateway/common/helper"
	"github.com/llmgateway/llmgateway/relay"
	"github.com/llmgateway/llmgateway/relay/keyhealth"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
	"github.com/llmgateway/llmgateway/relay/resolver"
	"github.com/llmgateway/llmgateway/relay/scorer"
)

var (
	registry = catalog.Default()
	health   = keyhealth.NewTracker()
	perf     = newPerfTracker()
)

// SetRegistry replaces the routing catalog, e.g. when CATALOG_FILE points at
// an external definition. Call before serving traffic.
func SetRegistry(r *catalog.Registry) {
	registry = r
}

// HealthTracker exposes the process-wide upstream key health map.
func HealthTracker() *keyhealth.Tracker {
	return health
}

type errorKind int

const (
	kindGateway errorKind = iota
	kindClient
	kindUpstream4xx
	kindUpstreamRetryable
	kindCanceled
)

// RelayChatCompletions handles POST /v1/chat/completions end to end.
func RelayChatCompletions(c *gin.Context) {
	lg := gmw.GetLogger(c)
	m := meta.GetByContext(c)
	if m.RequestID == "" {
		m.RequestID = helper.GenerateRequestID()
	}

	req := &relaymodel.GeneralOpenAIRequest{}
	if err := common.UnmarshalBodyReusable(c, req); err != nil {
		abortWith(c, m, req, relaymodel.BadRequestError("invalid request body: %s", err.Error()))
		return
	}
	if bizErr := validateRequest(req); bizErr != nil {
		abortWith(c, m, req, bizErr)
		return
	}
	m.OriginModelName = req.Model
	m.IsStream = req.Stream

	res, bizErr := resolver.ParseModelInput(registry, req.Model)
	if bizErr != nil {
		abortWith(c, m, req, bizErr)
		return
	}

	noFallback := c.GetBool(ctxkey.NoFallback) ||
		strings.EqualFold(c.GetHeader("X-No-Fallback"), "true")

	if res.RequestedProvider == catalog.GatewayProviderID {
		if res.RequestedModel == catalog.CustomProviderID {
			abortWith(c, m, req, relaymodel.BadRequestError(
				"custom upstreams need an explicit model, use custom/<model>"))
			return
		}
		// "auto" routes to the configured default model with free provider choice.
		res = &resolver.Result{RequestedModel: config.AutoModel}
	}

	if res.RequestedProvider == catalog.CustomProviderID || res.CustomProviderName != "" {
		dispatchCustom(c, m, req, res, noFallback)
		return
	}

	mdl, candidates, bizErr := buildCandidates(registry, res)
	if bizErr != nil {
		abortWith(c, m, req, bizErr)
		return
	}

	sc := scorer.New(registry)
	remaining := candidates
	var lastErr *relaymodel.ErrorWithStatusCode
	lastKind := kindGateway
	var routing *scorer.RoutingMetadata

	for len(remaining) > 0 {
		mapping, md := sc.Select(remaining, healthMetrics(remaining), req.Stream)
		md.NoFallback = noFallback

		if !noFallback && len(remaining) > 1 {
			if uptime, ok := providerUptime(mapping.ProviderID); ok && uptime < config.UptimeFallbackThreshold {
				rest := without(remaining, mapping)
				if alt, altMD := sc.Select(rest, healthMetrics(rest), req.Stream); alt != nil {
					altMD.OriginalProvider = mapping.ProviderID
					altMD.OriginalProviderUptime = &uptime
					altMD.NoFallback = noFallback
					lg.Info("provider uptime below threshold, rerouting",
						zap.String("provider", mapping.ProviderID),
						zap.Float64("uptime", uptime),
						zap.String("fallback", alt.ProviderID))
					mapping, md = alt, altMD
				}
			}
		}
		routing = md

		provider := registry.Provider(mapping.ProviderID)
		canonical, bizErr, fromUpstream := relayOnce(c, m, provider, mdl, mapping, req)
		if bizErr == nil {
			finishSuccess(c, m, req, res.RequestedProvider, canonical, routing)
			return
		}

		lastErr = bizErr
		lastKind = classify(c, bizErr, fromUpstream)
		if lastKind == kindCanceled {
			emitLog(c, logRecordInput{
				meta: m, req: req, requestedProvider: res.RequestedProvider,
				routing: routing, relayErr: bizErr,
				unified: relaymodel.UnifiedCanceled, canceled: true,
			})
			return
		}
		if lastKind != kindUpstreamRetryable || noFallback || c.Writer.Written() {
			break
		}
		remaining = without(remaining, mapping)
		if len(remaining) > 0 {
			lg.Warn("upstream failed, retrying next candidate",
				zap.String("provider", mapping.ProviderID),
				zap.Int("status", bizErr.StatusCode),
				zap.Int("candidatesLeft", len(remaining)))
		}
	}

	emitLog(c, logRecordInput{
		meta: m, req: req, requestedProvider: res.RequestedProvider,
		routing: routing, relayErr: lastErr, unified: unifiedFor(lastKind),
	})
	respondError(c, lastErr)
}

// relayOnce performs a single upstream attempt against one mapping. The bool
// result reports whether a returned error was produced by the upstream rather
// than the gateway itself.
func relayOnce(c *gin.Context, m *meta.Meta, provider *catalog.Provider, mdl *catalog.Model, mapping *catalog.Mapping, req *relaymodel.GeneralOpenAIRequest) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode, bool) {
	if provider == nil {
		return nil, relaymodel.ErrorWrapper(
			errors.Errorf("unknown provider %s", mapping.ProviderID),
			"unknown_provider", http.StatusInternalServerError), false
	}

	m.Provider = provider
	m.Model = mdl
	m.Mapping = mapping
	m.ActualModelName = mapping.ModelName
	m.BaseURL = provider.BaseURL
	m.IsStream = req.Stream && mapping.Streaming && provider.Streaming

	if bizErr := selectCredential(c, m, provider.ID); bizErr != nil {
		return nil, bizErr, false
	}

	a := relay.GetAdaptor(provider)
	if a == nil {
		return nil, relaymodel.ErrorWrapper(
			errors.Errorf("no adaptor for wire format %s", provider.Format),
			"unsupported_wire_format", http.StatusInternalServerError), false
	}

	// Adaptors may rewrite the request in place; convert a deep copy so the
	// logged payload and later retries see the caller's original.
	var reqCopy relaymodel.GeneralOpenAIRequest
	if err := copier.CopyWithOption(&reqCopy, req, copier.Option{DeepCopy: true}); err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "copy request"),
			"copy_request_failed", http.StatusInternalServerError), false
	}
	reqCopy.Model = m.ActualModelName
	reqCopy.Stream = m.IsStream
	converted, err := a.ConvertRequest(c, m, &reqCopy)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "convert request"),
			"convert_request_failed", http.StatusBadRequest), false
	}
	body, err := json.Marshal(converted)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "marshal upstream request"),
			"marshal_request_failed", http.StatusInternalServerError), false
	}

	resp, err := a.DoRequest(c, m, bytes.NewReader(body))
	if err != nil {
		reportError(m, 0, err.Error())
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "call upstream"),
			"upstream_unreachable", http.StatusBadGateway), true
	}
	canonical, bizErr := a.DoResponse(c, resp, m)
	if bizErr != nil {
		reportError(m, bizErr.StatusCode, bizErr.Error.Message)
		return nil, bizErr, true
	}
	reportSuccess(m, canonical)
	return canonical, nil, false
}

// selectCredential fills the meta's upstream key fields. The X-LLMGateway-Key
// header overrides the configured key pool; key index -1 marks an override so
// health reporting skips it.
func selectCredential(c *gin.Context, m *meta.Meta, providerID string) *relaymodel.ErrorWithStatusCode {
	if override := c.GetHeader("X-LLMGateway-Key"); override != "" {
		m.APIKey = override
		m.KeyEnvVar = config.ProviderKeyEnvVar(providerID)
		m.KeyIndex = -1
		return nil
	}
	envVar, keys := config.ProviderKeys(providerID)
	idx, key, ok := selectKey(envVar, keys)
	if !ok {
		return relaymodel.ErrorWrapper(
			errors.Errorf("no upstream key configured for provider %s, set %s", providerID, envVar),
			"missing_upstream_key", http.StatusInternalServerError)
	}
	m.KeyEnvVar, m.KeyIndex, m.APIKey = envVar, idx, key
	return nil
}

func reportSuccess(m *meta.Meta, canonical *relaymodel.CanonicalResponse) {
	if m.KeyIndex >= 0 {
		health.ReportSuccess(m.KeyEnvVar, m.KeyIndex)
	}
	elapsed := time.Since(m.StartTime)
	throughput := 0.0
	if secs := elapsed.Seconds(); secs > 0 && canonical.CompletionTokens > 0 {
		throughput = float64(canonical.CompletionTokens) / secs
	}
	perf.record(m.Provider.ID, float64(elapsed.Milliseconds()), throughput)
}

func reportError(m *meta.Meta, statusCode int, text string) {
	if m.KeyIndex >= 0 {
		health.ReportError(m.KeyEnvVar, m.KeyIndex, statusCode, text)
	}
}

func classify(c *gin.Context, e *relaymodel.ErrorWithStatusCode, fromUpstream bool) errorKind {
	if err := c.Request.Context().Err(); errors.Is(err, context.Canceled) {
		return kindCanceled
	}
	if e == nil {
		return kindGateway
	}
	if !fromUpstream {
		if e.StatusCode == http.StatusBadRequest {
			return kindClient
		}
		return kindGateway
	}
	if e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusBadGateway {
		return kindUpstreamRetryable
	}
	return kindUpstream4xx
}

func unifiedFor(kind errorKind) string {
	switch kind {
	case kindClient, kindUpstream4xx:
		return relaymodel.UnifiedClientError
	case kindUpstreamRetryable:
		return relaymodel.UnifiedUpstreamError
	case kindCanceled:
		return relaymodel.UnifiedCanceled
	default:
		return relaymodel.UnifiedGatewayError
	}
}

func finishSuccess(c *gin.Context, m *meta.Meta, req *relaymodel.GeneralOpenAIRequest, requestedProvider string, canonical *relaymodel.CanonicalResponse, routing *scorer.RoutingMetadata) {
	emitLog(c, logRecordInput{
		meta: m, req: req, requestedProvider: requestedProvider,
		canonical: canonical,
		cost:      computeCost(m, req, canonical),
		routing:   routing,
		unified:   relaymodel.UnifyFinishReason(canonical.FinishReason),
	})
}

// abortWith rejects the request before any upstream attempt, still emitting a
// log record for the failure.
func abortWith(c *gin.Context, m *meta.Meta, req *relaymodel.GeneralOpenAIRequest, bizErr *relaymodel.ErrorWithStatusCode) {
	kind := kindGateway
	if bizErr.StatusCode == http.StatusBadRequest {
		kind = kindClient
	}
	emitLog(c, logRecordInput{meta: m, req: req, relayErr: bizErr, unified: unifiedFor(kind)})
	respondError(c, bizErr)
}

func respondError(c *gin.Context, bizErr *relaymodel.ErrorWithStatusCode) {
	if bizErr == nil {
		bizErr = relaymodel.ErrorWrapper(errors.New("no candidate provider available"),
			"no_candidates", http.StatusInternalServerError)
	}
	if c.Writer.Written() {
		return
	}
	c.JSON(bizErr.StatusCode, bizErr)
}
