// Package openai_responses relays the OpenAI Responses API.
package openai_responses

import relaymodel "github.com/llmgateway/llmgateway/relay/model"

// Request is the Responses API request body.
type Request struct {
	Model           string         `json:"model"`
	Input           []InputMessage `json:"input"`
	Instructions    string         `json:"instructions,omitempty"`
	Stream          bool           `json:"stream,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64       `json:"temperature,omitempty"`
	TopP            *float64       `json:"top_p,omitempty"`
	Tools           []Tool         `json:"tools,omitempty"`
	ToolChoice      any            `json:"tool_choice,omitempty"`
	Reasoning       *Reasoning     `json:"reasoning,omitempty"`
}

// InputMessage is one input turn.
type InputMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Tool is a Responses API tool definition; functions are flattened rather
// than nested under a "function" key.
type Tool struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// Reasoning carries the requested reasoning effort.
type Reasoning struct {
	Effort string `json:"effort,omitempty"`
}

// Response is a completed Responses API response.
type Response struct {
	ID     string            `json:"id"`
	Status string            `json:"status"`
	Output []OutputItem      `json:"output"`
	Usage  *Usage            `json:"usage,omitempty"`
	Error  *relaymodel.Error `json:"error,omitempty"`
}

// OutputItem is one entry of the output array; Type selects which fields
// are meaningful.
type OutputItem struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Status  string          `json:"status,omitempty"`
	Role    string          `json:"role,omitempty"`
	Content []OutputContent `json:"content,omitempty"` // message
	Summary []SummaryPart   `json:"summary,omitempty"` // reasoning

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// OutputContent is one content part of a message output item.
type OutputContent struct {
	Type        string                  `json:"type"`
	Text        string                  `json:"text,omitempty"`
	Annotations []relaymodel.Annotation `json:"annotations,omitempty"`
}

// SummaryPart is one part of a reasoning summary.
type SummaryPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage is the Responses API token accounting.
type Usage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	TotalTokens        int `json:"total_tokens"`
	InputTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details,omitempty"`
	OutputTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details,omitempty"`
}

// StreamEvent is one SSE event of a streamed response.
type StreamEvent struct {
	Type        string                 `json:"type"`
	Response    *Response              `json:"response,omitempty"`
	Item        *OutputItem            `json:"item,omitempty"`
	OutputIndex int                    `json:"output_index,omitempty"`
	Delta       string                 `json:"delta,omitempty"`
	Arguments   string                 `json:"arguments,omitempty"`
	ItemID      string                 `json:"item_id,omitempty"`
	Annotation  *relaymodel.Annotation `json:"annotation,omitempty"`
}
