// Package aws relays AWS Bedrock via the Converse and ConverseStream APIs.
// Unlike the HTTP adaptors, the exchange happens through the AWS SDK inside
// DoResponse; DoRequest is a no-op.
package aws

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/common/ctxkey"
	"github.com/llmgateway/llmgateway/relay/adaptor"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

type Adaptor struct{}

var _ adaptor.Adaptor = (*Adaptor)(nil)

func (a *Adaptor) GetRequestURL(m *meta.Meta) (string, error) {
	return "", nil
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, m *meta.Meta) error {
	return nil
}

func (a *Adaptor) ConvertRequest(c *gin.Context, m *meta.Meta, request *relaymodel.GeneralOpenAIRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	converted, err := ConvertRequest(request, m.ActualModelName)
	if err != nil {
		return nil, err
	}
	c.Set(ctxkey.ConvertedRequest, converted)
	return converted, nil
}

func (a *Adaptor) DoRequest(c *gin.Context, m *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	return nil, nil
}

func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.CanonicalResponse, *relaymodel.ErrorWithStatusCode) {
	client, err := newClient(c.Request.Context(), m.APIKey)
	if err != nil {
		return nil, relaymodel.ErrorWrapper(err, "invalid_bedrock_credentials", http.StatusInternalServerError)
	}
	v, ok := c.Get(ctxkey.ConvertedRequest)
	if !ok {
		return nil, relaymodel.ErrorWrapper(errors.New("converted request not found"), "request_not_converted", http.StatusInternalServerError)
	}
	input, ok := v.(*bedrockruntime.ConverseInput)
	if !ok {
		return nil, relaymodel.ErrorWrapper(errors.New("unexpected converted request type"), "request_not_converted", http.StatusInternalServerError)
	}
	if m.IsStream {
		return StreamHandler(c, client, input, m)
	}
	return Handler(c, client, input, m)
}

func (a *Adaptor) GetChannelName() string {
	return "aws-bedrock"
}

// newClient builds a Bedrock runtime client. The credential string is either
// "accessKeyId|secretAccessKey|region" for static keys, or a bare region to
// use the SDK's default chain (env vars, shared config, instance role).
func newClient(ctx context.Context, key string) (*bedrockruntime.Client, error) {
	parts := strings.Split(key, "|")
	switch len(parts) {
	case 3:
		return bedrockruntime.New(bedrockruntime.Options{
			Region:      parts[2],
			Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(parts[0], parts[1], "")),
		}), nil
	case 1:
		if parts[0] == "" {
			return nil, errors.New("bedrock credential is empty")
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(parts[0]))
		if err != nil {
			return nil, errors.Wrap(err, "load default aws config")
		}
		return bedrockruntime.NewFromConfig(cfg), nil
	default:
		return nil, errors.New("bedrock credential must be accessKeyId|secretAccessKey|region or a bare region")
	}
}
