package domain

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted marks a failure that survived an entire retry budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

// AuthError represents a credential acquisition or refresh failure.
// It is never retried by the credential manager itself.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError is raised when the request executor exhausts its attempt
// budget against an endpoint.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf(
		"fetch failed for %s after %d attempts (last status %d): %v",
		e.Endpoint, e.Attempts, e.StatusCode, e.Err,
	)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClientError represents a non-retryable 4xx response (excluding 401/429).
type ClientError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client error %d from %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// AttachmentError is raised when listing or decoding attachments fails.
type AttachmentError struct {
	MessageID string
	Err       error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment handling failed for message %s: %v", e.MessageID, e.Err)
}

func (e *AttachmentError) Unwrap() error { return e.Err }
