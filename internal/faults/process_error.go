package faults

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/inboxd/internal/core/domain"
)

// Category groups process errors by failure domain.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryAuth       Category = "auth"
	CategoryValidation Category = "validation"
	CategoryProcessing Category = "processing"
	CategorySystem     Category = "system"
	CategoryExternal   Category = "external"
	CategoryDatabase   Category = "database"
)

// Severity controls whether a failure is absorbed locally or escalated.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
	SeverityFatal  Severity = "fatal"
)

// ProcessError is a classified failure record. Immutable after construction.
type ProcessError struct {
	Err           error
	ProcessID     string
	Stage         string
	Category      Category
	Severity      Severity
	Context       map[string]any
	Timestamp     time.Time
	CorrelationID string
}

// New creates a ProcessError for a failure site. The process ID is
// passed explicitly by the caller; it is never inferred.
func New(
	err error,
	processID, stage string,
	category Category,
	severity Severity,
	context map[string]any,
) *ProcessError {
	if context == nil {
		context = map[string]any{}
	}
	return &ProcessError{
		Err:           err,
		ProcessID:     processID,
		Stage:         stage,
		Category:      category,
		Severity:      severity,
		Context:       context,
		Timestamp:     time.Now(),
		CorrelationID: uuid.NewString(),
	}
}

// Kind names the failure taxonomy entry for the underlying error.
func (e *ProcessError) Kind() string {
	var (
		authErr       *domain.AuthError
		fetchErr      *domain.FetchError
		clientErr     *domain.ClientError
		attachmentErr *domain.AttachmentError
	)
	switch {
	case e.Err == nil:
		return "none"
	case errors.As(e.Err, &authErr):
		return "auth_failure"
	case errors.As(e.Err, &fetchErr):
		return "fetch_failure"
	case errors.As(e.Err, &clientErr):
		return "client_request_failure"
	case errors.As(e.Err, &attachmentErr):
		return "attachment_failure"
	case errors.Is(e.Err, domain.ErrRetriesExhausted):
		return "retry_exhausted"
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// Message returns the underlying error text.
func (e *ProcessError) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Details renders the error as a flat map for logs and notifications.
func (e *ProcessError) Details() map[string]any {
	return map[string]any{
		"error_kind":     e.Kind(),
		"error_message":  e.Message(),
		"process_id":     e.ProcessID,
		"stage":          e.Stage,
		"category":       string(e.Category),
		"severity":       string(e.Severity),
		"context":        e.Context,
		"timestamp":      e.Timestamp.Format(time.RFC3339),
		"correlation_id": e.CorrelationID,
	}
}
