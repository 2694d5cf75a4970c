package ctxkey

const (
	KeyRequestBody = "key_request_body"

	RequestId      = "request_id"
	OrganizationId = "organization_id"
	ProjectId      = "project_id"
	ApiKeyId       = "api_key_id"
	Mode           = "mode"
	Source         = "source"
	NoFallback     = "no_fallback"

	ClientRequestPayloadLogged = "client_request_payload_logged"

	ConvertedRequest = "converted_request"
)
