package controller

import (
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

// validateRequest rejects requests no upstream could serve. Parameter values
// outside a specific provider's range are left to the upstream to report.
func validateRequest(req *relaymodel.GeneralOpenAIRequest) *relaymodel.ErrorWithStatusCode {
	if req.Model == "" {
		return relaymodel.BadRequestError("model is required")
	}
	if len(req.Messages) == 0 {
		return relaymodel.BadRequestError("messages is required")
	}
	if req.MaxTokens < 0 {
		return relaymodel.BadRequestError("max_tokens must not be negative")
	}
	for i := range req.Messages {
		if req.Messages[i].Role == "" {
			return relaymodel.BadRequestError("messages[%d] is missing a role", i)
		}
	}
	return nil
}
