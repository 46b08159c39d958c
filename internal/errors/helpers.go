package errors

import (
	"fmt"
	"net/http"
)

// Common error creators for the connection and message taxonomy

// NewTransportOpenError wraps a socket or handshake failure. Always retryable.
func NewTransportOpenError(endpoint string, err error) *AppError {
	return WrapRetryable(err, ErrCodeTransportOpen, "transport could not be opened").
		WithContext("endpoint", endpoint).
		WithUserMessage("Connection to chat server failed")
}

// NewProtocolDecodeError reports an inbound frame that does not match the wire contract
func NewProtocolDecodeError(reason string, err error) *AppError {
	return Wrap(err, ErrCodeProtocolDecode, "inbound payload rejected").
		WithContext("reason", reason)
}

// NewRetryBudgetExhaustedError reports that automatic reconnection gave up
func NewRetryBudgetExhaustedError(attempts int, last error) *AppError {
	return Wrap(last, ErrCodeRetryBudgetExhausted, fmt.Sprintf("gave up after %d reconnection attempts", attempts)).
		WithContext("attempts", attempts).
		WithUserMessage("Cannot connect to chat server. Retry manually.")
}

// NewPublishWhileDisconnectedError reports a publish skipped because the connection is down
func NewPublishWhileDisconnectedError(destination, state string) *AppError {
	return New(ErrCodePublishWhileDisconnected, "publish skipped while not connected").
		WithContext("destination", destination).
		WithContext("state", state).
		WithUserMessage("Not connected: message kept locally")
}

// NewPermissionDeniedError reports a collaborator refusing access to a resource
func NewPermissionDeniedError(resource string, err error) *AppError {
	return Wrap(err, ErrCodePermissionDenied, fmt.Sprintf("access to %s denied", resource)).
		WithContext("resource", resource).
		WithUserMessage(fmt.Sprintf("Access to %s denied or not available", resource))
}

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource string, identifier interface{}) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeTransportOpen, ErrCodePublishWhileDisconnected, ErrCodeRetryBudgetExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body written for failed status server requests
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}
	response.Error.Code = GetCode(err)
	response.Error.Message = GetUserMessage(err)
	return response
}
