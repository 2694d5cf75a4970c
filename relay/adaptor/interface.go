// Package adaptor defines the provider adaptor contract and the registry
// that maps catalog wire formats onto concrete adaptors.
package adaptor

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

// Adaptor translates between the canonical OpenAI request shape and one
// upstream wire format. Implementations are stateless; all per-request state
// travels in meta.Meta.
type Adaptor interface {
	// GetRequestURL builds the upstream endpoint for this request.
	GetRequestURL(meta *meta.Meta) (string, error)
	// SetupRequestHeader sets auth and content headers on the upstream request.
	SetupRequestHeader(c *gin.Context, req *http.Request, meta *meta.Meta) error
	// ConvertRequest maps the canonical request into the provider's body.
	ConvertRequest(c *gin.Context, meta *meta.Meta, request *relaymodel.GeneralOpenAIRequest) (any, error)
	// DoRequest performs the upstream HTTP exchange. SDK-backed adaptors may
	// return a nil response and do their work in DoResponse instead.
	DoRequest(c *gin.Context, meta *meta.Meta, requestBody io.Reader) (*http.Response, error)
	// DoResponse parses (or streams) the upstream response to the client and
	// returns the canonical result for billing and logging.
	DoResponse(c *gin.Context, resp *http.Response, meta *meta.Meta) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode)
	// GetChannelName names the adaptor in logs.
	GetChannelName() string
}
