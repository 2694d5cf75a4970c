package ali

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

// ConvertRequest maps the canonical chat request onto the DashScope
// multimodal shape. Image inputs ride as image parts alongside text.
func ConvertRequest(request *relaymodel.GeneralOpenAIRequest, actualModel string) *Request {
	out := &Request{Model: actualModel}
	for _, msg := range request.Messages {
		converted := Message{Role: msg.Role}
		for _, part := range msg.ParseContent() {
			switch part.Type {
			case relaymodel.ContentTypeText:
				converted.Content = append(converted.Content, ContentPart{Text: *part.Text})
			case relaymodel.ContentTypeImageURL:
				converted.Content = append(converted.Content, ContentPart{Image: part.ImageURL.Url})
			}
		}
		out.Input.Messages = append(out.Input.Messages, converted)
	}
	if request.ImageConfig != nil {
		out.Parameters.Size = request.ImageConfig.Size
	}
	if request.N > 0 {
		out.Parameters.N = request.N
	}
	return out
}

// ParseResponse decodes a DashScope image-generation body. Generated images
// become canonical image entries; image output carries no token accounting.
func ParseResponse(body []byte) (*relaymodel.CanonicalResponse, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "unmarshal dashscope body")
	}
	if resp.Code != "" {
		return nil, errors.Errorf("upstream error %s: %s", resp.Code, resp.Message)
	}
	if len(resp.Output.Choices) == 0 {
		return nil, errors.New("dashscope response has no choices")
	}

	canonical := &relaymodel.CanonicalResponse{FinishReason: relaymodel.FinishStop}
	for _, part := range resp.Output.Choices[0].Message.Content {
		if part.Image != "" {
			canonical.Images = append(canonical.Images, part.Image)
		}
	}
	if len(canonical.Images) > 0 {
		canonical.Content = "Generated image"
	} else {
		for _, part := range resp.Output.Choices[0].Message.Content {
			canonical.Content += part.Text
		}
	}
	return canonical, nil
}

// Handler parses a non-streaming DashScope response and writes the canonical
// rendering back to the client.
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
