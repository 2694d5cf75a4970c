package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/llmgateway/llmgateway/catalog"
	"github.com/llmgateway/llmgateway/common/client"
	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/common/ctxkey"
	"github.com/llmgateway/llmgateway/common/rdb"
	"github.com/llmgateway/llmgateway/model"
	"github.com/llmgateway/llmgateway/relay/keyhealth"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
	"github.com/llmgateway/llmgateway/relay/scorer"
)

type upstream struct {
	mu        sync.Mutex
	hits      int
	lastModel string
	lastAuth  string

	status int
	body   string
}

func (u *upstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		u.mu.Lock()
		u.hits++
		u.lastModel = req.Model
		u.lastAuth = r.Header.Get("Authorization")
		u.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(u.status)
		_, _ = w.Write([]byte(u.body))
	}
}

func (u *upstream) hitCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits
}

func chatCompletionBody(content string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","model":"whatever","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`, content)
}

const upstreamErrorBody = `{"error":{"message":"upstream exploded","type":"server_error"}}`

func newUpstream(t *testing.T, status int, body string) (*upstream, *httptest.Server) {
	t.Helper()
	u := &upstream{status: status, body: body}
	srv := httptest.NewServer(u.handler())
	t.Cleanup(srv.Close)
	return u, srv
}

// setupGateway swaps the routing globals for the test and captures emitted
// logs through a throwaway Redis.
func setupGateway(t *testing.T, providers []catalog.Provider, models []catalog.Model) {
	t.Helper()
	prevReg, prevHealth, prevPerf := registry, health, perf
	registry = catalog.NewRegistry(providers, models)
	health = keyhealth.NewTracker()
	perf = newPerfTracker()
	t.Cleanup(func() {
		registry, health, perf = prevReg, prevHealth, prevPerf
	})

	mr := miniredis.RunT(t)
	rdb.RDB = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.RDB = nil })

	if client.HTTPClient == nil {
		client.Init()
	}
}

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/chat/completions", func(c *gin.Context) {
		c.Set(ctxkey.RequestId, "req_test")
		c.Set(ctxkey.OrganizationId, "org1")
		c.Set(ctxkey.ProjectId, "p1")
		c.Set(ctxkey.ApiKeyId, "k1")
		c.Set(ctxkey.Mode, model.ModeCredits)
		c.Set(ctxkey.Source, "test-suite")
	}, RelayChatCompletions)
	return r
}

func post(r *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func waitForLog(t *testing.T) *model.Log {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	payload, err := rdb.PopLog(ctx, 2*time.Second)
	require.NoError(t, err)
	var l model.Log
	require.NoError(t, json.Unmarshal(payload, &l))
	return &l
}

// twoProviderCatalog wires "alpha" (cheap) and "beta" against the given
// servers under one model so price-only selection tries alpha first.
func twoProviderCatalog(alphaURL, betaURL string) ([]catalog.Provider, []catalog.Model) {
	providers := []catalog.Provider{
		{ID: "alpha", Name: "Alpha", BaseURL: alphaURL, Format: catalog.FormatOpenAI, Streaming: true},
		{ID: "beta", Name: "Beta", BaseURL: betaURL, Format: catalog.FormatOpenAI, Streaming: true},
	}
	models := []catalog.Model{{
		ID:     "test-model",
		Family: "test",
		Providers: []catalog.Mapping{
			{ProviderID: "alpha", ModelName: "alpha-model", InputPrice: 1e-6, OutputPrice: 1e-6, Streaming: true},
			{ProviderID: "beta", ModelName: "beta-model", InputPrice: 2e-6, OutputPrice: 2e-6, Streaming: true},
		},
	}}
	return providers, models
}

func TestRelay_Success(t *testing.T) {
	alpha, alphaSrv := newUpstream(t, http.StatusOK, chatCompletionBody("Hello!"))
	providers, models := twoProviderCatalog(alphaSrv.URL, "http://beta.invalid")
	setupGateway(t, providers, models)
	t.Setenv("ALPHA_API_KEY", "ka")
	t.Setenv("BETA_API_KEY", "kb")

	w := post(testRouter(), `{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp relaymodel.TextResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "Hello!", resp.Choices[0].Message.Content)
	require.Equal(t, "stop", resp.Choices[0].FinishReason)
	require.Equal(t, 15, resp.Usage.TotalTokens)
	require.Equal(t, "test-model", resp.Model)

	require.Equal(t, 1, alpha.hitCount())
	require.Equal(t, "Bearer ka", alpha.lastAuth)
	require.Equal(t, "alpha-model", alpha.lastModel)

	l := waitForLog(t)
	require.Equal(t, relaymodel.UnifiedCompleted, l.UnifiedFinishReason)
	require.Equal(t, "alpha", l.UsedProvider)
	require.Equal(t, "test-model", l.UsedModel)
	require.Equal(t, "alpha-model", l.UsedModelMapping)
	require.Equal(t, model.ModeCredits, l.Mode)
	require.Equal(t, model.ModeCredits, l.UsedMode)
	require.Equal(t, "test-suite", l.Source)
	require.False(t, l.HasError)
	require.False(t, l.Streamed)
	// 10 prompt + 5 completion tokens at 1e-6 each.
	require.True(t, l.Cost.Equal(decimal.RequireFromString("0.000015")), l.Cost.String())
	require.Equal(t, 10, l.PromptTokens)
	require.Equal(t, 5, l.CompletionTokens)

	m := health.GetMetrics("ALPHA_API_KEY", 0)
	require.Equal(t, 1, m.Successes)
}

func TestRelay_RetriesNextCandidateOn5xx(t *testing.T) {
	alpha, alphaSrv := newUpstream(t, http.StatusInternalServerError, upstreamErrorBody)
	beta, betaSrv := newUpstream(t, http.StatusOK, chatCompletionBody("from beta"))
	providers, models := twoProviderCatalog(alphaSrv.URL, betaSrv.URL)
	setupGateway(t, providers, models)
	t.Setenv("ALPHA_API_KEY", "ka")
	t.Setenv("BETA_API_KEY", "kb")

	w := post(testRouter(), `{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "from beta")
	require.Equal(t, 1, alpha.hitCount())
	require.Equal(t, 1, beta.hitCount())

	l := waitForLog(t)
	require.Equal(t, "beta", l.UsedProvider)
	require.False(t, l.HasError)

	m := health.GetMetrics("ALPHA_API_KEY", 0)
	require.Equal(t, 1, m.Errors)
}

func TestRelay_NoFallbackHeaderStopsRetry(t *testing.T) {
	alpha, alphaSrv := newUpstream(t, http.StatusInternalServerError, upstreamErrorBody)
	beta, betaSrv := newUpstream(t, http.StatusOK, chatCompletionBody("from beta"))
	providers, models := twoProviderCatalog(alphaSrv.URL, betaSrv.URL)
	setupGateway(t, providers, models)
	t.Setenv("ALPHA_API_KEY", "ka")
	t.Setenv("BETA_API_KEY", "kb")

	w := post(testRouter(), `{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`,
		map[string]string{"X-No-Fallback": "true"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "upstream exploded")
	require.Equal(t, 1, alpha.hitCount())
	require.Zero(t, beta.hitCount())

	l := waitForLog(t)
	require.True(t, l.HasError)
	require.Equal(t, relaymodel.UnifiedUpstreamError, l.UnifiedFinishReason)

	require.NotNil(t, l.RoutingMetadata)
	var md scorer.RoutingMetadata
	require.NoError(t, json.Unmarshal([]byte(*l.RoutingMetadata), &md))
	require.True(t, md.NoFallback)
}

func TestRelay_Upstream4xxSurfacedWithoutRetry(t *testing.T) {
	alpha, alphaSrv := newUpstream(t, http.StatusTooManyRequests,
		`{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
	beta, betaSrv := newUpstream(t, http.StatusOK, chatCompletionBody("from beta"))
	providers, models := twoProviderCatalog(alphaSrv.URL, betaSrv.URL)
	setupGateway(t, providers, models)
	t.Setenv("ALPHA_API_KEY", "ka")
	t.Setenv("BETA_API_KEY", "kb")

	w := post(testRouter(), `{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), "rate limited")
	require.Equal(t, 1, alpha.hitCount())
	require.Zero(t, beta.hitCount())

	l := waitForLog(t)
	require.Equal(t, relaymodel.UnifiedClientError, l.UnifiedFinishReason)
}

func TestRelay_Upstream401BlacklistsKey(t *testing.T) {
	_, alphaSrv := newUpstream(t, http.StatusUnauthorized,
		`{"error":{"message":"invalid api key","type":"authentication_error"}}`)
	providers, models := twoProviderCatalog(alphaSrv.URL, "http://beta.invalid")
	setupGateway(t, providers, models)
	t.Setenv("ALPHA_API_KEY", "ka")
	t.Setenv("BETA_API_KEY", "kb")

	w := post(testRouter(), `{"model":"alpha/test-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	require.False(t, health.IsHealthy("ALPHA_API_KEY", 0))
	m := health.GetMetrics("ALPHA_API_KEY", 0)
	require.True(t, m.PermanentlyBlacklisted)

	l := waitForLog(t)
	require.Equal(t, relaymodel.UnifiedClientError, l.UnifiedFinishReason)
	require.Equal(t, "alpha", l.RequestedProvider)
}

func TestRelay_UnknownModelIsBadRequest(t *testing.T) {
	providers, models := twoProviderCatalog("http://alpha.invalid", "http://beta.invalid")
	setupGateway(t, providers, models)

	w := post(testRouter(), `{"model":"no-such-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "unsupported model")

	l := waitForLog(t)
	require.True(t, l.HasError)
	require.Equal(t, relaymodel.UnifiedClientError, l.UnifiedFinishReason)
}

func TestRelay_UptimeFallbackReroutes(t *testing.T) {
	alpha, alphaSrv := newUpstream(t, http.StatusOK, chatCompletionBody("from alpha"))
	beta, betaSrv := newUpstream(t, http.StatusOK, chatCompletionBody("from beta"))
	providers, models := twoProviderCatalog(alphaSrv.URL, betaSrv.URL)
	setupGateway(t, providers, models)
	t.Setenv("ALPHA_API_KEY", "ka")
	t.Setenv("BETA_API_KEY", "kb")

	// Alpha at 70% uptime, beta at 60%: the scorer still prefers alpha, but
	// 70 < UptimeFallbackThreshold so the dispatcher reroutes to beta.
	for i := 0; i < 3; i++ {
		health.ReportError("ALPHA_API_KEY", 0, 500, "boom")
	}
	for i := 0; i < 7; i++ {
		health.ReportSuccess("ALPHA_API_KEY", 0)
	}
	for i := 0; i < 4; i++ {
		health.ReportError("BETA_API_KEY", 0, 500, "boom")
	}
	for i := 0; i < 6; i++ {
		health.ReportSuccess("BETA_API_KEY", 0)
	}

	w := post(testRouter(), `{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "from beta")
	require.Zero(t, alpha.hitCount())
	require.Equal(t, 1, beta.hitCount())

	l := waitForLog(t)
	require.NotNil(t, l.RoutingMetadata)
	var md scorer.RoutingMetadata
	require.NoError(t, json.Unmarshal([]byte(*l.RoutingMetadata), &md))
	require.Equal(t, "alpha", md.OriginalProvider)
	require.NotNil(t, md.OriginalProviderUptime)
	require.InDelta(t, 70, *md.OriginalProviderUptime, 0.01)
	require.Equal(t, "beta", md.ChosenProvider)
}

func TestRelay_CustomUpstream(t *testing.T) {
	custom, customSrv := newUpstream(t, http.StatusOK, chatCompletionBody("custom says hi"))
	providers, models := twoProviderCatalog("http://alpha.invalid", "http://beta.invalid")
	setupGateway(t, providers, models)
	t.Setenv("MYPROXY_BASE_URL", customSrv.URL)
	t.Setenv("MYPROXY_API_KEY", "km")

	w := post(testRouter(), `{"model":"myproxy/some-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "custom says hi")
	require.Equal(t, 1, custom.hitCount())
	require.Equal(t, "Bearer km", custom.lastAuth)
	require.Equal(t, "some-model", custom.lastModel)

	l := waitForLog(t)
	require.Equal(t, "myproxy", l.UsedProvider)
	require.True(t, l.Cost.IsZero())

	var md scorer.RoutingMetadata
	require.NoError(t, json.Unmarshal([]byte(*l.RoutingMetadata), &md))
	require.Equal(t, reasonCustomUpstream, md.Reason)
}

func TestRelay_CustomUpstreamWithoutBaseURL(t *testing.T) {
	providers, models := twoProviderCatalog("http://alpha.invalid", "http://beta.invalid")
	setupGateway(t, providers, models)

	w := post(testRouter(), `{"model":"nowhere/some-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "no base URL")
	waitForLog(t)
}

func TestRelay_AutoAlias(t *testing.T) {
	alpha, alphaSrv := newUpstream(t, http.StatusOK, chatCompletionBody("auto routed"))
	providers, models := twoProviderCatalog(alphaSrv.URL, "http://beta.invalid")
	setupGateway(t, providers, models)
	t.Setenv("ALPHA_API_KEY", "ka")
	t.Setenv("BETA_API_KEY", "kb")

	prev := config.AutoModel
	config.AutoModel = "test-model"
	t.Cleanup(func() { config.AutoModel = prev })

	w := post(testRouter(), `{"model":"auto","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 1, alpha.hitCount())

	l := waitForLog(t)
	require.Equal(t, "auto", l.RequestedModel)
	require.Equal(t, "test-model", l.UsedModel)
}

func TestRelay_MissingUpstreamKey(t *testing.T) {
	_, alphaSrv := newUpstream(t, http.StatusOK, chatCompletionBody("unused"))
	providers, models := twoProviderCatalog(alphaSrv.URL, "http://beta.invalid")
	setupGateway(t, providers, models)
	// No ALPHA_API_KEY / BETA_API_KEY in the environment.

	w := post(testRouter(), `{"model":"alpha/test-model","messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "ALPHA_API_KEY")

	l := waitForLog(t)
	require.Equal(t, relaymodel.UnifiedGatewayError, l.UnifiedFinishReason)
}

func TestRelay_KeyOverrideHeaderSkipsHealthReporting(t *testing.T) {
	alpha, alphaSrv := newUpstream(t, http.StatusOK, chatCompletionBody("byok"))
	providers, models := twoProviderCatalog(alphaSrv.URL, "http://beta.invalid")
	setupGateway(t, providers, models)
	// No env keys: the override header must carry the credential by itself.

	w := post(testRouter(), `{"model":"alpha/test-model","messages":[{"role":"user","content":"hi"}]}`,
		map[string]string{"X-LLMGateway-Key": "sk-caller"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Bearer sk-caller", alpha.lastAuth)

	m := health.GetMetrics("ALPHA_API_KEY", 0)
	require.Zero(t, m.Successes+m.Errors)
	waitForLog(t)
}

func TestRelay_ValidationErrors(t *testing.T) {
	providers, models := twoProviderCatalog("http://alpha.invalid", "http://beta.invalid")
	setupGateway(t, providers, models)

	for name, body := range map[string]string{
		"missing model":    `{"messages":[{"role":"user","content":"hi"}]}`,
		"missing messages": `{"model":"test-model"}`,
		"bad json":         `{"model":`,
	} {
		w := post(testRouter(), body, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, name)
		waitForLog(t)
	}
}
