package model

import (
	"fmt"
	"net/http"
)

// Error is the JSON error body surfaced to callers.
type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    any    `json:"code,omitempty"`
	// RawError keeps the original error for logs; never serialized.
	RawError error `json:"-"`
}

// ErrorWithStatusCode couples an API error with the HTTP status to write.
type ErrorWithStatusCode struct {
	Error      Error `json:"error"`
	StatusCode int   `json:"-"`
}

const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypeUpstream       = "upstream_error"
	ErrorTypeServer         = "api_error"
)

// ErrorWrapper builds an ErrorWithStatusCode from a Go error.
func ErrorWrapper(err error, code string, statusCode int) *ErrorWithStatusCode {
	errType := ErrorTypeServer
	switch {
	case statusCode == http.StatusBadRequest:
		errType = ErrorTypeInvalidRequest
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		errType = ErrorTypeAuthentication
	case statusCode >= http.StatusInternalServerError:
		errType = ErrorTypeServer
	}
	return &ErrorWithStatusCode{
		Error: Error{
			Message:  err.Error(),
			Type:     errType,
			Code:     code,
			RawError: err,
		},
		StatusCode: statusCode,
	}
}

// BadRequestError builds a 400 error with a formatted message.
func BadRequestError(format string, args ...any) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{
		Error: Error{
			Message: fmt.Sprintf(format, args...),
			Type:    ErrorTypeInvalidRequest,
			Code:    "bad_request",
		},
		StatusCode: http.StatusBadRequest,
	}
}
