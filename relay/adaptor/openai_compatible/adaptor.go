package openai_compatible

import (
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/relay/adaptor"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

// Adaptor relays one OpenAI-compatible provider. ProviderID selects the
// post-processing overrides in the parser.
type Adaptor struct {
	ProviderID string
}

var _ adaptor.Adaptor = (*Adaptor)(nil)

func (a *Adaptor) GetRequestURL(m *meta.Meta) (string, error) {
	if m.BaseURL == "" {
		return "", errors.New("provider base url is empty")
	}
	return m.BaseURL + "/chat/completions", nil
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, m *meta.Meta) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	if m.IsStream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return nil
}

func (a *Adaptor) ConvertRequest(c *gin.Context, m *meta.Meta, request *relaymodel.GeneralOpenAIRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	request.Model = m.ActualModelName
	return request, nil
}

func (a *Adaptor) DoRequest(c *gin.Context, m *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	return adaptor.DoRequestHelper(a, c, m, requestBody)
}

func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode) {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, adaptor.RelayErrorFromResponse(resp, body)
	}
	if m.IsStream {
		return StreamHandler(c, resp, m)
	}
	return Handler(c, resp, m)
}

func (a *Adaptor) GetChannelName() string {
	if a.ProviderID != "" {
		return a.ProviderID
	}
	return "openai_compatible"
}

// Handler parses a non-streaming chat-completions response, normalizes it,
// and writes the canonical rendering back to the client.
func Handler(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "read response body"), "read_response_body_failed", http.StatusInternalServerError)
	}
	if err = resp.Body.Close(); err != nil {
		return nil, relaymodel.ErrorWrapper(errors.Wrap(err, "close response body"), "close_response_body_failed", http.StatusInternalServerError)
	}

	providerID := ""
	if m.Provider != nil {
		providerID = m.Provider.ID
	}
	canonical, err := ParseResponse(providerID, body)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(err, "parse_response_failed", http.StatusInternalServerError)
	}
	if apiErr := adaptor.WriteTextResponse(c, m, canonical); apiErr != nil {
		return nil, apiErr
	}
	return canonical, nil
}
