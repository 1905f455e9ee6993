package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoChoices indicates a 2xx response whose choices list was empty.
// Callers that consume the first choice must surface this instead of
// printing nothing.
var ErrNoChoices = errors.New("response contained no choices")

// ErrorType classifies a client error
type ErrorType string

const (
	// ErrorTypeConnection indicates the endpoint could not be reached
	ErrorTypeConnection ErrorType = "connection_error"
	// ErrorTypeAuthentication indicates the bearer token was rejected (401/403)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeInvalidRequest indicates the server rejected the request (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeNotFound indicates an unknown route or model (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeRateLimit indicates the server is shedding load (429)
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeServer indicates an upstream server failure (5xx)
	ErrorTypeServer ErrorType = "server_error"
	// ErrorTypeInvalidResponse indicates a 2xx response the client could not use
	ErrorTypeInvalidResponse ErrorType = "invalid_response_error"
)

// ClientError is the error type returned for failed endpoint interactions
type ClientError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	// Original error for debugging (not part of the JSON shape)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *ClientError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Endpoint, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ClientError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status associated with this error,
// falling back to a default per error type when none was recorded.
func (e *ClientError) HTTPStatusCode() int {
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
	case ErrorTypeServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewConnectionError creates an error for an unreachable endpoint
func NewConnectionError(endpoint string, err error) *ClientError {
	return &ClientError{
		Type:     ErrorTypeConnection,
		Message:  err.Error(),
		Endpoint: endpoint,
		Err:      err,
	}
}

// NewAuthenticationError creates an authentication error (401/403)
func NewAuthenticationError(endpoint string, message string) *ClientError {
	return &ClientError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Endpoint:   endpoint,
	}
}

// NewInvalidRequestError creates an invalid request error (400)
func NewInvalidRequestError(message string, err error) *ClientError {
	return &ClientError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewRateLimitError creates a rate limit error (429)
func NewRateLimitError(endpoint string, message string) *ClientError {
	return &ClientError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Endpoint:   endpoint,
	}
}

// NewNotFoundError creates a not found error (404)
func NewNotFoundError(message string) *ClientError {
	return &ClientError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewServerError creates an upstream server error (5xx)
func NewServerError(endpoint string, statusCode int, message string, err error) *ClientError {
	return &ClientError{
		Type:       ErrorTypeServer,
		Message:    message,
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Err:        err,
	}
}

// NewInvalidResponseError creates an error for a 2xx response the client
// could not use (malformed JSON, empty choices).
func NewInvalidResponseError(endpoint string, message string, err error) *ClientError {
	return &ClientError{
		Type:     ErrorTypeInvalidResponse,
		Message:  message,
		Endpoint: endpoint,
		Err:      err,
	}
}

// maxErrorBodyBytes bounds how much of an error response body is inspected
// when extracting a message.
const maxErrorBodyBytes = 4096

// ExtractErrorMessage pulls the message out of an OpenAI-style error body
// {"error":{"message":...}}. Falls back to the raw body, truncated.
func ExtractErrorMessage(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}

	var errorResponse struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		return errorResponse.Error.Message
	}
	return string(body)
}

// ParseServerError converts a non-2xx endpoint response into a ClientError.
// The body is inspected for an OpenAI-style error message; classification
// follows the status code.
func ParseServerError(endpoint string, statusCode int, body []byte, originalErr error) *ClientError {
	message := ExtractErrorMessage(body)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewAuthenticationError(endpoint, message)
	case statusCode == http.StatusNotFound:
		e := NewNotFoundError(message)
		e.Endpoint = endpoint
		return e
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(endpoint, message)
	case statusCode >= 400 && statusCode < 500:
		e := &ClientError{
			Type:       ErrorTypeInvalidRequest,
			Message:    message,
			StatusCode: statusCode,
			Endpoint:   endpoint,
			Err:        originalErr,
		}
		return e
	default:
		return NewServerError(endpoint, statusCode, message, originalErr)
	}
}
