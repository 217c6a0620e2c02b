// Package models defines API payloads and shared error values for the intake service.
package models

import "errors"

// Validation constants for input validation
const (
	// MaxAnswerValueLength defines the maximum allowed length for a single string answer
	MaxAnswerValueLength = 4096
	// MaxFieldNameLength defines the maximum allowed length for an answer field name
	MaxFieldNameLength = 128
)

// Error variables for better error handling and testability
var (
	ErrEmptyFieldName     = errors.New("field name cannot be empty")
	ErrFieldNameTooLong   = errors.New("field name exceeds maximum length")
	ErrAnswerTooLong      = errors.New("answer value exceeds maximum length")
	ErrUnknownForm        = errors.New("unknown form")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionTerminal    = errors.New("session has reached a terminal state")
	ErrAlreadyAtFirst     = errors.New("already at the first segment")
	ErrSubmitInFlight     = errors.New("a submission is already in progress")
	ErrSubmissionFailed   = errors.New("submission failed, please try again")
)

// UpdateAnswerRequest represents the payload for updating a single answer.
type UpdateAnswerRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Validate performs validation on an UpdateAnswerRequest.
func (r *UpdateAnswerRequest) Validate() error {
	if r.Field == "" {
		return ErrEmptyFieldName
	}
	if len(r.Field) > MaxFieldNameLength {
		return ErrFieldNameTooLong
	}
	if s, ok := r.Value.(string); ok && len(s) > MaxAnswerValueLength {
		return ErrAnswerTooLong
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusInvalid indicates a request was rejected by field validation.
	APIStatusInvalid APIStatus = "invalid"
	// APIStatusIneligible indicates a session ended at an eligibility gate.
	APIStatusIneligible APIStatus = "ineligible"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status      string            `json:"status"`                 // status of the API response
	Message     string            `json:"message,omitempty"`      // optional message for error responses or additional info
	Result      interface{}       `json:"result,omitempty"`       // optional result data for successful responses
	FieldErrors map[string]string `json:"field_errors,omitempty"` // per-field validation messages for inline display
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{response: APIResponse{}}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// WithFieldErrors sets the per-field validation messages of the API response.
func (b *APIResponseBuilder) WithFieldErrors(fieldErrors map[string]string) *APIResponseBuilder {
	b.response.FieldErrors = fieldErrors
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Convenience functions for common response patterns

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Invalid creates a validation-failure API response carrying per-field messages.
func Invalid(fieldErrors map[string]string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusInvalid).
		WithMessage("validation failed").
		WithFieldErrors(fieldErrors).
		Build()
}

// Ineligible creates an API response for sessions screened out at a gate.
func Ineligible(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusIneligible).
		WithMessage("patient is not eligible for this intake flow").
		WithResult(result).
		Build()
}
