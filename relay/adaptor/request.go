package adaptor

import (
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/common/client"
	"github.com/llmgateway/llmgateway/relay/meta"
)

// DoRequestHelper performs the standard HTTP exchange on behalf of an
// adaptor: build URL, set headers, send, hand back the raw response.
func DoRequestHelper(a Adaptor, c *gin.Context, meta *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	fullRequestURL, err := a.GetRequestURL(meta)
	if err != nil {
		return nil, errors.Wrap(err, "get request url")
	}
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, fullRequestURL, requestBody)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	if err = a.SetupRequestHeader(c, req, meta); err != nil {
		return nil, errors.Wrap(err, "setup request header")
	}
	resp, err := client.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	return resp, nil
}
