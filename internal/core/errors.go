// Package core provides core types and interfaces for the chat backend.
package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnsupportedProvider is returned when a provider identifier is not one of the known four.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// ErrEmptyConversation is returned when a chat carries no messages to send.
var ErrEmptyConversation = errors.New("messages must contain at least 1 items")

// NewUnsupportedProviderError wraps ErrUnsupportedProvider with the offending token.
func NewUnsupportedProviderError(provider string) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
}

// UpstreamKind distinguishes why an upstream call is unusable.
type UpstreamKind string

const (
	// UpstreamHTTP means the call itself failed: transport error or non-2xx status.
	UpstreamHTTP UpstreamKind = "http"
	// UpstreamEmpty means the call succeeded but carried no usable completion.
	UpstreamEmpty UpstreamKind = "empty"
)

// UpstreamError carries the raw provider status and body of a failed chat call.
type UpstreamError struct {
	Provider   Provider
	Kind       UpstreamKind
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	switch {
	case e.Kind == UpstreamEmpty:
		return fmt.Sprintf("[%s] upstream returned no completion content", e.Provider)
	case e.StatusCode != 0:
		return fmt.Sprintf("[%s] upstream error (status %d): %s", e.Provider, e.StatusCode, e.Message())
	case e.Err != nil:
		return fmt.Sprintf("[%s] upstream request failed: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("[%s] upstream request failed", e.Provider)
	}
}

// Unwrap implements the error unwrapping interface
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Message extracts the human-readable provider message from Body.
// OpenAI, Anthropic and Google all nest it under error.message.
func (e *UpstreamError) Message() string {
	if e.Body == "" {
		return ""
	}
	if msg := gjson.Get(e.Body, "error.message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	return e.Body
}

// IsRateLimited reports whether the provider rejected the call for rate limiting.
func (e *UpstreamError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsTokenLimit reports whether the provider message points at an input size problem.
func (e *UpstreamError) IsTokenLimit() bool {
	msg := strings.ToLower(e.Message())
	return strings.Contains(msg, "token") || strings.Contains(msg, "context length") ||
		strings.Contains(msg, "too long")
}

// NewUpstreamHTTPError creates an UpstreamError for a failed call.
func NewUpstreamHTTPError(provider Provider, statusCode int, body []byte, err error) *UpstreamError {
	return &UpstreamError{
		Provider:   provider,
		Kind:       UpstreamHTTP,
		StatusCode: statusCode,
		Body:       string(body),
		Err:        err,
	}
}

// NewUpstreamEmptyError creates an UpstreamError for a successful call with no content.
func NewUpstreamEmptyError(provider Provider, body []byte) *UpstreamError {
	return &UpstreamError{
		Provider:   provider,
		Kind:       UpstreamEmpty,
		StatusCode: http.StatusOK,
		Body:       string(body),
	}
}

// InvalidCredentialError reports a key that failed its validation probe.
type InvalidCredentialError struct {
	Provider Provider
	Err      error
}

// Error implements the error interface
func (e *InvalidCredentialError) Error() string {
	if e.Err == nil {
		return "Invalid API key"
	}
	return "Invalid API key: " + causeMessage(e.Err)
}

// Unwrap implements the error unwrapping interface
func (e *InvalidCredentialError) Unwrap() error {
	return e.Err
}

// NewInvalidCredentialError wraps a probe failure.
func NewInvalidCredentialError(provider Provider, err error) *InvalidCredentialError {
	return &InvalidCredentialError{Provider: provider, Err: err}
}

func causeMessage(err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		if msg := upstream.Message(); msg != "" {
			return msg
		}
	}
	return err.Error()
}

// ErrorType represents the type of error returned to API clients
type ErrorType string

const (
	// ErrorTypeProvider indicates an upstream provider error (5xx)
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeRateLimit indicates a rate limit error (429)
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates a not found error (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeConflict indicates a uniqueness violation (409)
	ErrorTypeConflict ErrorType = "conflict_error"
	// ErrorTypeInternal indicates an unexpected server-side failure (500)
	ErrorTypeInternal ErrorType = "internal_error"
)

// GatewayError is the error envelope returned to API clients
type GatewayError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Details    []string  `json:"details,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *GatewayError) ToJSON() map[string]interface{} {
	body := map[string]interface{}{
		"type":    e.Type,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return map[string]interface{}{"error": body}
}

// NewProviderError creates a new provider error (upstream failure)
func NewProviderError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeProvider,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// NewRateLimitError creates a new rate limit error (429)
func NewRateLimitError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewValidationError creates a 400 carrying one entry per failed field rule
func NewValidationError(details []string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Message:    "Validation error",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewConflictError creates a new conflict error (409)
func NewConflictError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInternalError creates an opaque 500 that keeps the cause for logging
func NewInternalError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
