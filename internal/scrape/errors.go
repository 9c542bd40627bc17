package scrape

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// Machine-readable error codes carried in the client-facing envelope.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	CodeNotFound       = "RESOURCE_NOT_FOUND"
	CodeInternal       = "INTERNAL_ERROR"
)

// APIError is the uniform client-facing error. Every error that escapes a
// handler is shaped into one; unexpected failures become a sanitized
// CodeInternal in non-development deployments.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsAPIError unwraps err into an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// NewValidationError reports bad client input. No side effects may have
// occurred when this is returned.
func NewValidationError(msg string, details map[string]any) *APIError {
	return &APIError{Code: CodeValidation, Message: msg, Status: http.StatusUnprocessableEntity, Details: details}
}

// NewAuthError reports a missing, invalid or expired credential. The message
// is deliberately generic; the specific cause is logged server-side only.
func NewAuthError(msg string) *APIError {
	if msg == "" {
		msg = "could not validate credentials"
	}
	return &APIError{Code: CodeAuthentication, Message: msg, Status: http.StatusUnauthorized}
}

// NewRateLimitError reports an exhausted fixed-window quota.
func NewRateLimitError() *APIError {
	return &APIError{Code: CodeRateLimited, Message: "rate limit exceeded", Status: http.StatusTooManyRequests}
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// NewInternalError reports a server-side failure.
func NewInternalError(msg string) *APIError {
	if msg == "" {
		msg = "internal server error"
	}
	return &APIError{Code: CodeInternal, Message: msg, Status: http.StatusInternalServerError}
}
