package api

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the orchestration core.
var (
	// ErrPlanInvalid indicates the planner output cannot be executed:
	// unparsable, empty, duplicate step indices, or unknown agents.
	ErrPlanInvalid = errors.New("plan invalid")

	// ErrSynthesisFailed indicates the reporter could not produce a final answer.
	ErrSynthesisFailed = errors.New("synthesis failed")

	// ErrAgentNotFound indicates a step names an agent that is not in the roster.
	ErrAgentNotFound = errors.New("agent not found")
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeModelError      ErrorType = "model_error"
	ErrorTypeUnavailable     ErrorType = "service_unavailable"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

// APIError represents a structured API error with type, code, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewModelError creates an APIError for LLM backend failures.
func NewModelError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeModelError,
		Message: message,
	}
}

// NewUnavailableError creates an APIError for an unreachable upstream.
func NewUnavailableError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeUnavailable,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}
