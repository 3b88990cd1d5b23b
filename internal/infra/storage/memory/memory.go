package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/inboxd/internal/core/domain"
	"github.com/vietddude/inboxd/internal/infra/storage"
)

// ProcessedRepo implements storage.ProcessedRepository in memory.
// Used for tests and for running without a database.
type ProcessedRepo struct {
	mu      sync.RWMutex
	records map[string]*domain.ProcessedRecord
}

// NewProcessedRepo creates an in-memory processed-message repository.
func NewProcessedRepo() *ProcessedRepo {
	return &ProcessedRepo{
		records: make(map[string]*domain.ProcessedRecord),
	}
}

// IsProcessed reports whether a message ID was handled before.
func (r *ProcessedRepo) IsProcessed(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id]
	return ok, nil
}

// MarkProcessed records a handled message.
func (r *ProcessedRepo) MarkProcessed(
	ctx context.Context,
	id string,
	metadata map[string]string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = &domain.ProcessedRecord{
		MessageID:   id,
		ProcessedAt: time.Now(),
		Metadata:    metadata,
	}
	return nil
}

// Get retrieves a processed record.
func (r *ProcessedRepo) Get(ctx context.Context, id string) (*domain.ProcessedRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

// Count returns the number of processed records.
func (r *ProcessedRepo) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.records)), nil
}
