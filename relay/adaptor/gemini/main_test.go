package gemini

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/llmgateway/llmgateway/common/rdb"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

func TestParseResponse_TextAndThought(t *testing.T) {
	body := `{
		"candidates": [{
			"index": 0,
			"content": {"role": "model", "parts": [
				{"text": "step one", "thought": true},
				{"text": "The answer is 42."}
			]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 8, "thoughtsTokenCount": 5, "totalTokenCount": 99}
	}`
	canonical, err := ParseResponse(context.Background(), []byte(body))
	require.NoError(t, err)
	require.Equal(t, "The answer is 42.", canonical.Content)
	require.Equal(t, "step one", canonical.ReasoningContent)
	require.Equal(t, "stop", canonical.FinishReason)
	require.Equal(t, 10, canonical.PromptTokens)
	require.Equal(t, 8, canonical.CompletionTokens)
	require.Equal(t, 5, canonical.ReasoningTokens)
	// Recomputed, not the upstream totalTokenCount.
	require.Equal(t, 23, canonical.TotalTokens)
}

func TestParseResponse_FunctionCallDeterministicID(t *testing.T) {
	body := `{
		"candidates": [{
			"index": 0,
			"content": {"parts": [
				{"functionCall": {"name": "get_weather", "args": {"city": "Paris"}}}
			]},
			"finishReason": "STOP"
		}]
	}`
	canonical, err := ParseResponse(context.Background(), []byte(body))
	require.NoError(t, err)
	require.Len(t, canonical.ToolCalls, 1)
	require.Equal(t, "get_weather_0_0", canonical.ToolCalls[0].ID)
	require.JSONEq(t, `{"city":"Paris"}`, canonical.ToolCalls[0].Function.Arguments)
}

func TestParseResponse_ThoughtSignatureCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb.RDB = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { rdb.RDB = nil }()

	body := `{
		"candidates": [{
			"index": 0,
			"content": {"parts": [
				{"functionCall": {"name": "lookup", "args": {}}, "thoughtSignature": "sig-abc"}
			]}
		}]
	}`
	canonical, err := ParseResponse(context.Background(), []byte(body))
	require.NoError(t, err)
	require.Len(t, canonical.ToolCalls, 1)
	require.Equal(t, "sig-abc", canonical.ToolCalls[0].Extra["thought_signature"])

	cached := rdb.GetThoughtSignature(context.Background(), "lookup_0_0")
	require.Equal(t, "sig-abc", cached)
	mr.CheckGet(t, "thought_signature:lookup_0_0", "sig-abc")
}

func TestParseResponse_InlineImage(t *testing.T) {
	body := `{
		"candidates": [{
			"content": {"parts": [
				{"inlineData": {"mimeType": "image/png", "data": "QUJD"}}
			]},
			"finishReason": "STOP"
		}]
	}`
	canonical, err := ParseResponse(context.Background(), []byte(body))
	require.NoError(t, err)
	require.Equal(t, []string{"data:image/png;base64,QUJD"}, canonical.Images)
}

func TestParseResponse_BlockReasonSupersedesFinish(t *testing.T) {
	body := `{
		"candidates": [{"content": {"parts": [{"text": "partial"}]}, "finishReason": "STOP"}],
		"promptFeedback": {"blockReason": "SAFETY"}
	}`
	canonical, err := ParseResponse(context.Background(), []byte(body))
	require.NoError(t, err)
	require.Equal(t, "content_filter", canonical.FinishReason)
}

func TestParseResponse_GroundingAnnotations(t *testing.T) {
	body := `{
		"candidates": [{
			"content": {"parts": [{"text": "grounded answer"}]},
			"finishReason": "STOP",
			"groundingMetadata": {"groundingChunks": [
				{"web": {"uri": "https://source.example", "title": "Source"}},
				{"web": {"uri": "https://other.example"}}
			]}
		}],
		"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 3}
	}`
	canonical, err := ParseResponse(context.Background(), []byte(body))
	require.NoError(t, err)
	require.Len(t, canonical.Annotations, 2)
	require.Equal(t, 2, canonical.WebSearchCount)
	require.Equal(t, "https://source.example", canonical.Annotations[0].URLCitation.URL)
}

func TestParseResponse_CompletionTokenFallback(t *testing.T) {
	body := `{
		"candidates": [{"content": {"parts": [{"text": "some generated text here"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 0}
	}`
	canonical, err := ParseResponse(context.Background(), []byte(body))
	require.NoError(t, err)
	require.Greater(t, canonical.CompletionTokens, 0)
	require.Equal(t, 5+canonical.CompletionTokens, canonical.TotalTokens)
}

func TestConvertRequest_RolesAndSystem(t *testing.T) {
	temp := 0.5
	req := &relaymodel.GeneralOpenAIRequest{
		Messages: []relaymodel.Message{
			{Role: "system", Content: "Be terse."},
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Hi"},
			{Role: "user", Content: "Bye"},
		},
		Temperature:    &temp,
		MaxTokens:      256,
		ResponseFormat: &relaymodel.ResponseFormat{Type: "json_object"},
	}
	out := ConvertRequest(context.Background(), req)
	require.NotNil(t, out.SystemInstruction)
	require.Equal(t, "Be terse.", out.SystemInstruction.Parts[0].Text)
	require.Len(t, out.Contents, 3)
	require.Equal(t, "user", out.Contents[0].Role)
	require.Equal(t, "model", out.Contents[1].Role)
	require.Equal(t, 256, out.GenerationConfig.MaxOutputTokens)
	require.Equal(t, "application/json", out.GenerationConfig.ResponseMimeType)
}

func TestConvertRequest_ToolReplayReinjectsSignature(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb.RDB = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { rdb.RDB = nil }()
	require.NoError(t, mr.Set("thought_signature:lookup_0_0", "sig-cached"))

	req := &relaymodel.GeneralOpenAIRequest{
		Messages: []relaymodel.Message{
			{Role: "user", Content: "What's the weather?"},
			{Role: "assistant", ToolCalls: []relaymodel.ToolCall{{
				ID:   "lookup_0_0",
				Type: "function",
				Function: relaymodel.FunctionCall{
					Name:      "lookup",
					Arguments: `{"city":"Paris"}`,
				},
			}}},
			{Role: "tool", ToolCallID: "lookup_0_0", Content: "18C and sunny"},
		},
	}
	out := ConvertRequest(context.Background(), req)
	require.Len(t, out.Contents, 3)

	replay := out.Contents[1]
	require.Equal(t, "model", replay.Role)
	require.Len(t, replay.Parts, 1)
	require.NotNil(t, replay.Parts[0].FunctionCall)
	require.Equal(t, "lookup", replay.Parts[0].FunctionCall.Name)
	require.Equal(t, map[string]any{"city": "Paris"}, replay.Parts[0].FunctionCall.Args)
	// Signature restored from the cache keyed by the tool-call id.
	require.Equal(t, "sig-cached", replay.Parts[0].ThoughtSignature)

	result := out.Contents[2]
	require.Equal(t, "user", result.Role)
	require.NotNil(t, result.Parts[0].FunctionResponse)
	require.Equal(t, "lookup", result.Parts[0].FunctionResponse.Name)
	require.Equal(t, map[string]any{"result": "18C and sunny"}, result.Parts[0].FunctionResponse.Response)
}

func TestConvertRequest_SignatureFromExtraContentWins(t *testing.T) {
	req := &relaymodel.GeneralOpenAIRequest{
		Messages: []relaymodel.Message{
			{Role: "assistant", ToolCalls: []relaymodel.ToolCall{{
				ID:       "lookup_0_0",
				Type:     "function",
				Function: relaymodel.FunctionCall{Name: "lookup", Arguments: `{}`},
				Extra:    map[string]any{"thought_signature": "sig-inline"},
			}}},
		},
	}
	out := ConvertRequest(context.Background(), req)
	require.Equal(t, "sig-inline", out.Contents[0].Parts[0].ThoughtSignature)
}
