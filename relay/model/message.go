package model

const (
	ContentTypeText     = "text"
	ContentTypeImageURL = "image_url"
)

// Message is an OpenAI chat message. Content is either a plain string or an
// array of typed content parts; both shapes appear in the wild.
type Message struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

// MessageContent is one element of a structured content array.
type MessageContent struct {
	Type     string    `json:"type"`
	Text     *string   `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL wraps an image reference; Url may be an https URL or a data URI.
type ImageURL struct {
	Url    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// StringContent flattens the message content to plain text. Structured parts
// contribute only their text segments.
func (m *Message) StringContent() string {
	switch content := m.Content.(type) {
	case string:
		return content
	case []any:
		var out string
		for _, part := range content {
			partMap, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if partMap["type"] == ContentTypeText {
				if text, ok := partMap["text"].(string); ok {
					out += text
				}
			}
		}
		return out
	}
	return ""
}

// ParseContent normalizes the message content into typed parts.
func (m *Message) ParseContent() []MessageContent {
	switch content := m.Content.(type) {
	case string:
		return []MessageContent{{Type: ContentTypeText, Text: &content}}
	case []any:
		var parts []MessageContent
		for _, part := range content {
			partMap, ok := part.(map[string]any)
			if !ok {
				continue
			}
			switch partMap["type"] {
			case ContentTypeText:
				if text, ok := partMap["text"].(string); ok {
					parts = append(parts, MessageContent{Type: ContentTypeText, Text: &text})
				}
			case ContentTypeImageURL:
				if urlMap, ok := partMap["image_url"].(map[string]any); ok {
					if url, ok := urlMap["url"].(string); ok {
						parts = append(parts, MessageContent{
							Type:     ContentTypeImageURL,
							ImageURL: &ImageURL{Url: url},
						})
					}
				}
			}
		}
		return parts
	}
	return nil
}
