// Package anthropic relays the Anthropic Messages API.
package anthropic

// Request is the Anthropic Messages request body.
type Request struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	Messages      []Message `json:"messages"`
	System        string    `json:"system,omitempty"`
	Stream        bool      `json:"stream,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Tools         []Tool    `json:"tools,omitempty"`
	ToolChoice    any       `json:"tool_choice,omitempty"`
}

// Message is one conversation turn; Content is either a plain string or a
// list of content blocks.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Tool is an Anthropic tool definition.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

// ContentBlock is one block of an assistant response.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text      string     `json:"text,omitempty"`
	Citations []Citation `json:"citations,omitempty"`

	// thinking
	Thinking string `json:"thinking,omitempty"`

	// tool_use
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	// web_search_tool_result
	Content []WebSearchResult `json:"content,omitempty"`
}

// Citation is an inline source reference on a text block.
type Citation struct {
	Type  string `json:"type"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// WebSearchResult is one hit inside a web_search_tool_result block.
type WebSearchResult struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Usage is the Anthropic token accounting.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// Error is the Anthropic error body.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Response is a completed Messages response.
type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
	Error      *Error         `json:"error,omitempty"`
}

// StreamEvent is one SSE event of a streamed Messages response. Only the
// fields relevant to the event's type are populated.
type StreamEvent struct {
	Type         string        `json:"type"`
	Index        int           `json:"index"`
	Message      *Response     `json:"message,omitempty"`       // message_start
	ContentBlock *ContentBlock `json:"content_block,omitempty"` // content_block_start
	Delta        *StreamDelta  `json:"delta,omitempty"`         // content_block_delta, message_delta
	Usage        *Usage        `json:"usage,omitempty"`         // message_delta
	Error        *Error        `json:"error,omitempty"`
}

// StreamDelta is the delta payload of a streamed event.
type StreamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}
