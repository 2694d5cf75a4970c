// Package zhipu relays ZAI CogView image generation.
package zhipu

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/relay/adaptor"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

// Request is the CogView images/generations request body.
type Request struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n,omitempty"`
}

// Response is the CogView images/generations response body.
type Response struct {
	Created int64             `json:"created,omitempty"`
	Data    []ImageData       `json:"data"`
	Error   *relaymodel.Error `json:"error,omitempty"`
}

// ImageData is one generated image.
type ImageData struct {
	URL string `json:"url"`
}

// ConvertRequest reduces the chat request to a CogView prompt. The prompt is
// the text of the last user message.
func ConvertRequest(request *relaymodel.GeneralOpenAIRequest, actualModel string) *Request {
	out := &Request{Model: actualModel}
	for i := len(request.Messages) - 1; i >= 0; i-- {
		if request.Messages[i].Role == "user" {
			out.Prompt = request.Messages[i].StringContent()
			break
		}
	}
	if request.ImageConfig != nil {
		out.Size = request.ImageConfig.Size
	}
	if request.N > 0 {
		out.N = request.N
	}
	return out
}

// ParseResponse decodes a CogView body; generated URLs become canonical
// images with no token accounting.
func ParseResponse(body []byte) (*relaymodel.CanonicalResponse, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "unmarshal cogview body")
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, errors.Errorf("upstream error: %s", resp.Error.Message)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("cogview response has no images")
	}

	canonical := &relaymodel.CanonicalResponse{
		Content:      "Generated image",
		FinishReason: relaymodel.FinishStop,
	}
	for _, d := range resp.Data {
		canonical.Images = append(canonical.Images, d.URL)
	}
	return canonical, nil
}

// Handler parses a CogView response and writes the canonical rendering back
// to the client.
func Handler(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "read response body"), "read_response_body_failed", http.StatusInternalServerError)
	}
	if err = resp.Body.Close(); err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "close response body"), "close_response_body_failed", http.StatusInternalServerError)
	}

	canonical, err := ParseResponse(body)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(err, "parse_response_failed", http.StatusInternalServerError)
	}
	if apiErr := adaptor.WriteTextResponse(c, m, canonical); apiErr != nil {
		return nil, apiErr
	}
	return canonical, nil
}
