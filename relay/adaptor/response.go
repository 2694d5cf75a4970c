package adaptor

import (
	"encoding/json"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/common/helper"
	"github.com/llmgateway/llmgateway/relay/meta"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

// BuildTextResponse wraps a canonical result into the OpenAI chat.completion
// shape the client expects.
func BuildTextResponse(m *meta.Meta, canonical *relaymodel.CanonicalResponse) *relaymodel.TextResponse {
	msg := relaymodel.ResponseMessage{
		Role:        "assistant",
		Content:     canonical.Content,
		Reasoning:   canonical.ReasoningContent,
		ToolCalls:   canonical.ToolCalls,
		Annotations: canonical.Annotations,
		Images:      canonical.Images,
	}
	return &relaymodel.TextResponse{
		ID:      helper.GenerateChatCompletionID(),
		Object:  "chat.completion",
		Created: helper.GetTimestamp(),
		Model:   m.OriginModelName,
		Choices: []relaymodel.TextResponseChoice{{
			Message:      msg,
			FinishReason: relaymodel.NormalizeFinishReason(canonical.FinishReason),
		}},
		Usage: canonical.Usage(),
	}
}

// WriteTextResponse serializes the canonical result as a chat.completion and
// writes it to the client.
func WriteTextResponse(c *gin.Context, m *meta.Meta, canonical *relaymodel.CanonicalResponse) *relaymodel.ErrorWithStatusCode {
	body, err := json.Marshal(BuildTextResponse(m, canonical))
	if err != nil {
		return relaymodel.ErrorWrapper(errors.Wrap(err, "marshal response"), "marshal_response_body_failed", http.StatusInternalServerError)
	}
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.WriteHeader(http.StatusOK)
	if _, err = c.Writer.Write(body); err != nil {
		return relaymodel.ErrorWrapper(errors.Wrap(err, "write response"), "write_response_body_failed", http.StatusInternalServerError)
	}
	return nil
}

// RelayErrorFromResponse turns a non-2xx upstream response into the error the
// gateway surfaces, preserving the upstream message when it parses.
func RelayErrorFromResponse(resp *http.Response, body []byte) *relaymodel.ErrorWithStatusCode {
	var wrapped struct {
		Error *relaymodel.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
		return &relaymodel.ErrorWithStatusCode{Error: *wrapped.Error, StatusCode: resp.StatusCode}
	}
	return &relaymodel.ErrorWithStatusCode{
		Error: relaymodel.Error{
			Message: string(body),
			Type:    relaymodel.ErrorTypeUpstream,
			Code:    "upstream_error",
		},
		StatusCode: resp.StatusCode,
	}
}
