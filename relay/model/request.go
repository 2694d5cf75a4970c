package model

import "encoding/json"

// GeneralOpenAIRequest is the OpenAI-compatible chat-completion request body
// accepted by the gateway. Unknown provider-specific knobs ride along in the
// typed optional fields; anything else is rejected by validation upstream.
type GeneralOpenAIRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
	StreamOptions    *StreamOptions  `json:"stream_options,omitempty"`
	Tools            []Tool          `json:"tools,omitempty"`
	ToolChoice       any             `json:"tool_choice,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	ReasoningEffort  string          `json:"reasoning_effort,omitempty"`
	ImageConfig      *ImageConfig    `json:"image_config,omitempty"`
	WebSearch        bool            `json:"web_search,omitempty"`
	Stop             any             `json:"stop,omitempty"`
	User             string          `json:"user,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	N                int             `json:"n,omitempty"`
}

// StreamOptions mirrors OpenAI's stream_options object.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ResponseFormat mirrors OpenAI's response_format object.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema is the schema payload of a structured-output response format.
type JSONSchema struct {
	Name   string          `json:"name,omitempty"`
	Strict *bool           `json:"strict,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// ImageConfig carries image-generation options for image-output models.
type ImageConfig struct {
	Size string `json:"size,omitempty"` // e.g. "1K", "2K", "4K"
}
