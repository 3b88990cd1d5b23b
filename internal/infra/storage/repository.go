package storage

import (
	"context"
	"errors"

	"github.com/vietddude/inboxd/internal/core/domain"
)

// ErrNotFound is returned when a processed record doesn't exist.
var ErrNotFound = errors.New("record not found")

// ProcessedRepository tracks which messages have already been handled.
type ProcessedRepository interface {
	// IsProcessed reports whether a message ID was handled before.
	IsProcessed(ctx context.Context, id string) (bool, error)

	// MarkProcessed records a handled message with optional metadata.
	MarkProcessed(ctx context.Context, id string, metadata map[string]string) error

	// Get retrieves a processed record.
	Get(ctx context.Context, id string) (*domain.ProcessedRecord, error)

	// Count returns the number of processed records.
	Count(ctx context.Context) (int64, error)
}
