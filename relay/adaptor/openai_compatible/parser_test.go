package openai_compatible

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResponse_Basic(t *testing.T) {
	body := `{
		"id": "chatcmpl-1",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`
	canonical, err := ParseResponse("groq", []byte(body))
	require.NoError(t, err)
	require.Equal(t, "hello", canonical.Content)
	require.Equal(t, "stop", canonical.FinishReason)
	require.Equal(t, 10, canonical.PromptTokens)
	require.Equal(t, 5, canonical.CompletionTokens)
	require.Equal(t, 15, canonical.TotalTokens)
}

func TestParseResponse_ReasoningContentNormalized(t *testing.T) {
	body := `{
		"choices": [{"message": {"role": "assistant", "content": "42", "reasoning_content": "thinking..."}, "finish_reason": "stop"}]
	}`
	canonical, err := ParseResponse("deepseek", []byte(body))
	require.NoError(t, err)
	require.Equal(t, "thinking...", canonical.ReasoningContent)
}

func TestParseResponse_ReasoningFieldWins(t *testing.T) {
	body := `{
		"choices": [{"message": {"role": "assistant", "content": "42", "reasoning": "a", "reasoning_content": "b"}, "finish_reason": "stop"}]
	}`
	canonical, err := ParseResponse("groq", []byte(body))
	require.NoError(t, err)
	require.Equal(t, "a", canonical.ReasoningContent)
}

func TestParseResponse_AnthropicStyleFinishReason(t *testing.T) {
	body := `{
		"choices": [{"message": {"role": "assistant", "content": ""}, "finish_reason": "tool_use"}]
	}`
	canonical, err := ParseResponse("groq", []byte(body))
	require.NoError(t, err)
	require.Equal(t, "tool_calls", canonical.FinishReason)
}

func TestParseResponse_CachedAndReasoningTokens(t *testing.T) {
	body := `{
		"choices": [{"message": {"role": "assistant", "content": "x"}, "finish_reason": "stop"}],
		"usage": {
			"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150,
			"prompt_tokens_details": {"cached_tokens": 40},
			"completion_tokens_details": {"reasoning_tokens": 20, "vendor_specific_field": 7}
		}
	}`
	canonical, err := ParseResponse("groq", []byte(body))
	require.NoError(t, err)
	require.Equal(t, 40, canonical.CachedTokens)
	require.Equal(t, 20, canonical.ReasoningTokens)
}

func TestParseResponse_MistralJSONFence(t *testing.T) {
	body := "{\"choices\": [{\"message\": {\"role\": \"assistant\", \"content\": \"```json\\n{\\\"answer\\\": 42}\\n```\"}, \"finish_reason\": \"stop\"}]}"
	canonical, err := ParseResponse(ProviderMistral, []byte(body))
	require.NoError(t, err)
	require.JSONEq(t, `{"answer": 42}`, canonical.Content)

	// Other providers keep the fence verbatim.
	canonical, err = ParseResponse("groq", []byte(body))
	require.NoError(t, err)
	require.Contains(t, canonical.Content, "```json")
}

func TestParseResponse_FenceWithNonJSONStaysVerbatim(t *testing.T) {
	body := "{\"choices\": [{\"message\": {\"role\": \"assistant\", \"content\": \"```json\\nnot json\\n```\"}, \"finish_reason\": \"stop\"}]}"
	canonical, err := ParseResponse(ProviderNovita, []byte(body))
	require.NoError(t, err)
	require.Contains(t, canonical.Content, "not json")
	require.Contains(t, canonical.Content, "```")
}

func TestParseResponse_ZAIWebSearch(t *testing.T) {
	body := `{
		"choices": [{"message": {
			"role": "assistant", "content": "found it",
			"web_search": [
				{"title": "Result A", "link": "https://a.example"},
				{"title": "Result B", "link": "https://b.example"}
			]
		}, "finish_reason": "stop"}]
	}`
	canonical, err := ParseResponse(ProviderZAI, []byte(body))
	require.NoError(t, err)
	require.Equal(t, 2, canonical.WebSearchCount)
	require.Len(t, canonical.Annotations, 2)
	require.Equal(t, "url_citation", canonical.Annotations[0].Type)
	require.Equal(t, "https://a.example", canonical.Annotations[0].URLCitation.URL)
}

func TestParseResponse_UpstreamError(t *testing.T) {
	body := `{"error": {"message": "model overloaded", "type": "server_error"}}`
	_, err := ParseResponse("groq", []byte(body))
	require.Error(t, err)
	require.Contains(t, err.Error(), "model overloaded")
}

func TestParseResponse_NoChoices(t *testing.T) {
	_, err := ParseResponse("groq", []byte(`{"choices": []}`))
	require.Error(t, err)
}

func TestParseResponse_Idempotent(t *testing.T) {
	body := `{
		"choices": [{"message": {"role": "assistant", "content": "same"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 2, "total_tokens": 3}
	}`
	first, err := ParseResponse("groq", []byte(body))
	require.NoError(t, err)
	second, err := ParseResponse("groq", []byte(body))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestExtractJSONFence(t *testing.T) {
	require.Equal(t, `{"a":1}`, extractJSONFence("```json\n{\"a\": 1}\n```"))
	require.Equal(t, `{"a":1}`, extractJSONFence("```\n{\"a\": 1}\n```"))
	require.Equal(t, "plain text", extractJSONFence("plain text"))
	require.Equal(t, "```python\nprint(1)\n```", extractJSONFence("```python\nprint(1)\n```"))
}
