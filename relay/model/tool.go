package model

// Tool is an OpenAI tool definition in a request.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function describes a callable function exposed to the model.
type Function struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
	Strict      *bool  `json:"strict,omitempty"`
}

// ToolCall is a model-emitted function invocation. In streaming responses the
// opening chunk carries ID/Type/Function.Name; argument delta chunks carry
// only Index and Function.Arguments.
type ToolCall struct {
	// Index ties streamed argument fragments to their opening chunk.
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
	// Extra carries provider-specific attachments (e.g. Gemini thought
	// signatures) that must survive a round trip through the client.
	Extra map[string]any `json:"extra_content,omitempty"`
}

// FunctionCall is the function slice of a tool call.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}
