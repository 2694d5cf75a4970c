package controller

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/llmgateway/llmgateway/model"
	"github.com/llmgateway/llmgateway/relay/meta"
)

func TestResolveUsedMode(t *testing.T) {
	// Explicit modes pass through unchanged.
	require.Equal(t, model.ModeCredits,
		resolveUsedMode(model.ModeCredits, &meta.Meta{KeyIndex: 0, APIKey: "k"}))
	require.Equal(t, model.ModeAPIKeys,
		resolveUsedMode(model.ModeAPIKeys, &meta.Meta{KeyIndex: -1, APIKey: "k"}))

	// Hybrid settles on the actual credential source.
	require.Equal(t, model.ModeAPIKeys,
		resolveUsedMode(model.ModeHybrid, &meta.Meta{KeyIndex: -1, APIKey: "caller-key"}))
	require.Equal(t, model.ModeCredits,
		resolveUsedMode(model.ModeHybrid, &meta.Meta{KeyIndex: 1, APIKey: "pool-key"}))
}

func TestBuildLog_TimeToFirstToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	m := &meta.Meta{RequestID: "r1", StartTime: time.Now().Add(-time.Second), IsStream: true}
	m.MarkFirstChunk()
	// Only the first chunk sets the timestamp.
	first := m.FirstChunkAt
	m.MarkFirstChunk()
	require.Equal(t, first, m.FirstChunkAt)

	l := buildLog(c, logRecordInput{meta: m, unified: "stop"})
	require.NotNil(t, l.TimeToFirstToken)
	require.GreaterOrEqual(t, *l.TimeToFirstToken, int64(1000))
	require.LessOrEqual(t, *l.TimeToFirstToken, l.Duration)

	// Non-streaming requests leave the column empty.
	plain := buildLog(c, logRecordInput{meta: &meta.Meta{StartTime: time.Now()}})
	require.Nil(t, plain.TimeToFirstToken)
}

func TestJsonText(t *testing.T) {
	require.Nil(t, jsonText(nil))
	var empty []string
	require.Nil(t, jsonText(empty))

	got := jsonText(map[string]int{"a": 1})
	require.NotNil(t, got)
	require.JSONEq(t, `{"a":1}`, *got)
}

func TestPerfTracker_EWMA(t *testing.T) {
	pt := newPerfTracker()
	_, _, ok := pt.snapshot("p")
	require.False(t, ok)

	pt.record("p", 1000, 50)
	latency, throughput, ok := pt.snapshot("p")
	require.True(t, ok)
	require.InDelta(t, 1000, latency, 0.001)
	require.InDelta(t, 50, throughput, 0.001)

	pt.record("p", 500, 100)
	latency, throughput, _ = pt.snapshot("p")
	require.InDelta(t, 0.2*500+0.8*1000, latency, 0.001)
	require.InDelta(t, 0.2*100+0.8*50, throughput, 0.001)

	// Zero throughput samples (no completion tokens) do not drag the average.
	pt.record("p", 500, 0)
	_, throughput, _ = pt.snapshot("p")
	require.InDelta(t, 0.2*100+0.8*50, throughput, 0.001)
}
