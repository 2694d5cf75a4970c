// Package ali relays Alibaba DashScope multimodal image generation.
package ali

// Request is the DashScope multimodal-generation request body.
type Request struct {
	Model      string     `json:"model"`
	Input      Input      `json:"input"`
	Parameters Parameters `json:"parameters,omitempty"`
}

// Input wraps the conversation sent to DashScope.
type Input struct {
	Messages []Message `json:"messages"`
}

// Message is one DashScope turn; content parts carry either text or an
// image reference.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is one part of a DashScope message.
type ContentPart struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Parameters carries generation options.
type Parameters struct {
	Size string `json:"size,omitempty"`
	N    int    `json:"n,omitempty"`
}

// Response is the DashScope multimodal-generation response body.
type Response struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Output    Output `json:"output"`
}

// Output holds the generated choices.
type Output struct {
	Choices []Choice `json:"choices"`
}

// Choice is one generated result.
type Choice struct {
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}
