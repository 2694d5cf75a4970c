package anthropic

import (
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/relay/adaptor"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

const anthropicVersion = "2023-06-01"

type Adaptor struct{}

var _ adaptor.Adaptor = (*Adaptor)(nil)

func (a *Adaptor) GetRequestURL(m *meta.Meta) (string, error) {
	if m.BaseURL == "" {
		return "", errors.New("provider base url is empty")
	}
	return m.BaseURL + "/v1/messages", nil
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, m *meta.Meta) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", m.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	if m.IsStream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return nil
}

func (a *Adaptor) ConvertRequest(c *gin.Context, m *meta.Meta, request *relaymodel.GeneralOpenAIRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	return ConvertRequest(request, m.ActualModelName), nil
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
	return "anthropic"
}
