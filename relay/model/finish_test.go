package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeFinishReason(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":                     FinishStop,
		"stop":                 FinishStop,
		"end_turn":             FinishStop,
		"stop_sequence":        FinishStop,
		"COMPLETE":             FinishStop,
		"max_tokens":           FinishLength,
		"MAX_TOKENS":           FinishLength,
		"length":               FinishLength,
		"tool_use":             FinishToolCalls,
		"function_call":        FinishToolCalls,
		"SAFETY":               FinishContentFilter,
		"guardrail_intervened": FinishContentFilter,
		"refusal":              FinishContentFilter,
		"incomplete":           FinishIncomplete,
		"something_else":       "something_else",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeFinishReason(in), in)
	}
}

func TestUnifyFinishReason(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"stop":           UnifiedCompleted,
		"end_turn":       UnifiedCompleted,
		"length":         UnifiedLengthLimit,
		"tool_calls":     UnifiedToolCalls,
		"content_filter": UnifiedContentFilter,
		"incomplete":     UnifiedContentFilter,
		"garbage":        UnifiedUnknown,
	}
	for in, want := range cases {
		require.Equal(t, want, UnifyFinishReason(in), in)
	}
}
