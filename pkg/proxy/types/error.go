package types

import "net/http"

// ErrorResponse is the body of every error the proxy answers on its own
// behalf, as opposed to a relayed backend response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error.
	Type string `json:"type"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// CorrelationID ties the error to the analysis recorded for the request.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Error type constants.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeConflict           = "conflict"
	ErrorTypeRequestTooLarge    = "request_too_large"
	ErrorTypeLoopDetected       = "loop_detected"
	ErrorTypeServerError        = "server_error"
	ErrorTypeBadGateway         = "bad_gateway"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeMethodNotAllowed   = "method_not_allowed"
)

// Error code constants.
const (
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeBodyTooLarge        = "body_too_large"
	CodeForwardingLoop      = "forwarding_loop"
	CodeInvalidValue        = "invalid_value"
	CodeInvalidJSON         = "invalid_json"
	CodeAnalysisNotFound    = "analysis_not_found"
	CodeMaintenanceRunning  = "maintenance_running"
	CodeSnapshotUnavailable = "snapshot_unavailable"
	CodeInternalError       = "internal_error"
	CodeMethodNotAllowed    = "method_not_allowed"
	CodeMaintenanceDisabled = "maintenance_disabled"
)

// NewErrorResponse creates a new error response with the given details.
func NewErrorResponse(message, errorType, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Code:    code,
		},
	}
}

// WithCorrelationID returns e annotated with a correlation id.
func (e *ErrorResponse) WithCorrelationID(id string) *ErrorResponse {
	e.Error.CorrelationID = id
	return e
}

// NewInvalidRequestError creates an error response for invalid requests (400).
func NewInvalidRequestError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, code)
}

// NewNotFoundError creates an error response for a missing resource (404).
func NewNotFoundError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeNotFound, code)
}

// NewConflictError creates an error response for a conflicting state (409).
func NewConflictError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeConflict, code)
}

// NewRequestTooLargeError creates an error response for an oversized body (413).
func NewRequestTooLargeError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeRequestTooLarge, CodeBodyTooLarge)
}

// NewLoopDetectedError creates an error response for a request the proxy
// forwarded to itself (508).
func NewLoopDetectedError() *ErrorResponse {
	return NewErrorResponse("request was already forwarded by this proxy", ErrorTypeLoopDetected, CodeForwardingLoop)
}

// NewUpstreamUnavailableError creates an error response for both targets
// failing (502).
func NewUpstreamUnavailableError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeBadGateway, CodeUpstreamUnavailable)
}

// NewServiceUnavailableError creates an error response for a disabled or
// not yet ready feature (503).
func NewServiceUnavailableError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServiceUnavailable, code)
}

// NewMethodNotAllowedError creates an error response for a wrong method (405).
func NewMethodNotAllowedError(method string) *ErrorResponse {
	return NewErrorResponse("method "+method+" not allowed", ErrorTypeMethodNotAllowed, CodeMethodNotAllowed)
}

// NewServerError creates an error response for internal server errors (500).
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, CodeInternalError)
}

// HTTPStatusCode returns the HTTP status code for the error type.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorTypeLoopDetected:
		return http.StatusLoopDetected
	case ErrorTypeBadGateway:
		return http.StatusBadGateway
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
