package authclient

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse marks a reply the client could not interpret: a
// non-JSON body on success, or a success body without a token.
var ErrMalformedResponse = errors.New("authclient: malformed response")

// RejectedError is returned for any non-2xx reply.
type RejectedError struct {
	Status int
	// Message is the sanitized server message; empty when absent.
	Message string
	// Malformed is set when the body was not a JSON object.
	Malformed bool
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authclient: credentials rejected (status %d)", e.Status)
	}
	return fmt.Sprintf("authclient: credentials rejected (status %d): %s", e.Status, e.Message)
}

// TransportError wraps failures to complete the HTTP exchange.
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err == nil {
		return "authclient: transport failure"
	}
	return "authclient: transport failure: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var rejected *RejectedError
	var transport *TransportError
	switch {
	case errors.As(err, &rejected):
		return "rejected"
	case errors.As(err, &transport):
		return "transport_error"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	default:
		return "error"
	}
}
