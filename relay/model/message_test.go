package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageStringContent(t *testing.T) {
	t.Parallel()
	m := &Message{Role: "user", Content: "plain text"}
	require.Equal(t, "plain text", m.StringContent())

	m = &Message{Role: "user", Content: []any{
		map[string]any{"type": "text", "text": "part one "},
		map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://example.com/a.png"}},
		map[string]any{"type": "text", "text": "part two"},
	}}
	require.Equal(t, "part one part two", m.StringContent())

	m = &Message{Role: "user", Content: 42}
	require.Equal(t, "", m.StringContent())
}

func TestMessageParseContent(t *testing.T) {
	t.Parallel()
	m := &Message{Role: "user", Content: []any{
		map[string]any{"type": "text", "text": "describe this"},
		map[string]any{"type": "image_url", "image_url": map[string]any{"url": "data:image/png;base64,AAAA"}},
	}}
	parts := m.ParseContent()
	require.Len(t, parts, 2)
	require.Equal(t, ContentTypeText, parts[0].Type)
	require.Equal(t, "describe this", *parts[0].Text)
	require.Equal(t, ContentTypeImageURL, parts[1].Type)
	require.Equal(t, "data:image/png;base64,AAAA", parts[1].ImageURL.Url)
}

func TestCanonicalResponseUsage(t *testing.T) {
	t.Parallel()
	r := &CanonicalResponse{
		PromptTokens:     100,
		CompletionTokens: 40,
		TotalTokens:      140,
		CachedTokens:     30,
		ReasoningTokens:  12,
	}
	u := r.Usage()
	require.Equal(t, 100, u.PromptTokens)
	require.Equal(t, 40, u.CompletionTokens)
	require.Equal(t, 140, u.TotalTokens)
	require.NotNil(t, u.PromptTokensDetails)
	require.Equal(t, 30, u.PromptTokensDetails.CachedTokens)
	require.NotNil(t, u.CompletionTokensDetails)
	require.Equal(t, 12, u.CompletionTokensDetails.ReasoningTokens)

	bare := (&CanonicalResponse{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}).Usage()
	require.Nil(t, bare.PromptTokensDetails)
	require.Nil(t, bare.CompletionTokensDetails)
}
