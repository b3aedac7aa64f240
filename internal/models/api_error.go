package models

import "fmt"

// ErrorCode is the machine-readable part of an API error body.
type ErrorCode string

const (
	ErrorCodeInternalServerError ErrorCode = "internal_server_error"
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeUnauthorized        ErrorCode = "unauthorized"

	// Request validation
	ErrorCodeValidationFailed        ErrorCode = "validation_failed"
	ErrorCodeMissingParameter        ErrorCode = "missing_parameter"
	ErrorCodeInvalidFormat           ErrorCode = "invalid_format"
	ErrorCodeInvalidRegistrationCode ErrorCode = "invalid_registration_code"

	// Gateways and devices
	ErrorCodeResourceNotFound  ErrorCode = "resource_not_found"
	ErrorCodeDuplicateResource ErrorCode = "duplicate_resource"

	// Time-series store, document store, code store
	ErrorCodeUpstreamUnavailable      ErrorCode = "upstream_unavailable"
	ErrorCodeUpstreamTimeout          ErrorCode = "upstream_timeout"
	ErrorCodeUpstreamPermissionDenied ErrorCode = "upstream_permission_denied"
)

// APIError is the JSON body of every non-2xx response outside the
// registration endpoints. StatusCode is not serialized.
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	StatusCode int       `json:"-"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details any, statusCode int) APIError {
	return APIError{Code: code, Message: message, Details: details, StatusCode: statusCode}
}
