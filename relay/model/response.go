package model

// Usage is the OpenAI usage object, extended with the detail blocks modern
// providers emit.
type Usage struct {
	PromptTokens            int                      `json:"prompt_tokens"`
	CompletionTokens        int                      `json:"completion_tokens"`
	TotalTokens             int                      `json:"total_tokens"`
	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

// PromptTokensDetails carries the cached-token split of the prompt.
type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// CompletionTokensDetails carries the reasoning-token split of the output.
type CompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// Annotation is an OpenAI message annotation; only url_citation is produced
// by the gateway.
type Annotation struct {
	Type        string       `json:"type"`
	URLCitation *URLCitation `json:"url_citation,omitempty"`
}

// URLCitation points a content span at a web source.
type URLCitation struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	StartIndex int    `json:"start_index,omitempty"`
	EndIndex   int    `json:"end_index,omitempty"`
}

// CanonicalResponse is the provider-neutral decode of one completed upstream
// response. Parsers fill it; the response transformer wraps it into the
// OpenAI chat.completion shape.
type CanonicalResponse struct {
	Content          string
	ReasoningContent string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ReasoningTokens  int
	CachedTokens     int
	ToolCalls        []ToolCall
	Images           []string
	Annotations      []Annotation
	WebSearchCount   int
}

// Usage assembles the OpenAI usage object from the canonical token counts.
func (r *CanonicalResponse) Usage() Usage {
	u := Usage{
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
	}
	if r.CachedTokens > 0 {
		u.PromptTokensDetails = &PromptTokensDetails{CachedTokens: r.CachedTokens}
	}
	if r.ReasoningTokens > 0 {
		u.CompletionTokensDetails = &CompletionTokensDetails{ReasoningTokens: r.ReasoningTokens}
	}
	return u
}

// TextResponse is the OpenAI chat.completion response shape.
type TextResponse struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []TextResponseChoice `json:"choices"`
	Usage   Usage                `json:"usage"`
}

// TextResponseChoice is one choice of a chat.completion response.
type TextResponseChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the assistant message of a completed response.
type ResponseMessage struct {
	Role        string       `json:"role"`
	Content     any          `json:"content"`
	Reasoning   string       `json:"reasoning,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Images      []string     `json:"images,omitempty"`
}

// ChatCompletionsStreamResponse is the OpenAI chat.completion.chunk shape.
type ChatCompletionsStreamResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// StreamChoice is one choice of a streamed chunk.
type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Delta is the incremental message fragment of a streamed chunk.
type Delta struct {
	Role        string       `json:"role,omitempty"`
	Content     any          `json:"content,omitempty"`
	Reasoning   string       `json:"reasoning,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Images      []string     `json:"images,omitempty"`
}

// StringContent returns the delta content when it is plain text.
func (d *Delta) StringContent() string {
	if s, ok := d.Content.(string); ok {
		return s
	}
	return ""
}
