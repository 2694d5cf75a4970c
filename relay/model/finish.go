package model

// OpenAI finish reasons emitted by the gateway.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool_calls"
	FinishContentFilter = "content_filter"
	FinishIncomplete    = "incomplete"
)

// Unified finish reasons recorded on every log row.
const (
	UnifiedCompleted     = "completed"
	UnifiedLengthLimit   = "length_limit"
	UnifiedContentFilter = "content_filter"
	UnifiedToolCalls     = "tool_calls"
	UnifiedGatewayError  = "gateway_error"
	UnifiedUpstreamError = "upstream_error"
	UnifiedClientError   = "client_error"
	UnifiedCanceled      = "canceled"
	UnifiedUnknown       = "unknown"
)

// NormalizeFinishReason maps provider finish reasons onto the OpenAI set.
// Already-canonical values pass through; Anthropic-style reasons that leak
// out of OpenAI-compatible providers are folded in here as well.
func NormalizeFinishReason(reason string) string {
	switch reason {
	case "", FinishStop, "end_turn", "stop_sequence", "completed", "COMPLETE", "eos":
		return FinishStop
	case FinishLength, "max_tokens", "MAX_TOKENS", "length_limit", "model_length":
		return FinishLength
	case FinishToolCalls, "tool_use", "function_call", "tool_calls_present":
		return FinishToolCalls
	case FinishContentFilter, "content_filtered", "guardrail_intervened", "SAFETY",
		"PROHIBITED_CONTENT", "BLOCKLIST", "refusal":
		return FinishContentFilter
	case FinishIncomplete:
		// An upstream "incomplete" stays incomplete; remapping it to stop
		// would hide truncated output from the caller.
		return FinishIncomplete
	default:
		return reason
	}
}

// UnifyFinishReason reduces an OpenAI finish reason to the unified taxonomy.
func UnifyFinishReason(finishReason string) string {
	switch NormalizeFinishReason(finishReason) {
	case FinishStop:
		return UnifiedCompleted
	case FinishLength:
		return UnifiedLengthLimit
	case FinishToolCalls:
		return UnifiedToolCalls
	case FinishContentFilter, FinishIncomplete:
		return UnifiedContentFilter
	default:
		return UnifiedUnknown
	}
}
