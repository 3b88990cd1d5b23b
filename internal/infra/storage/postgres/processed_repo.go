package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/inboxd/internal/core/domain"
	"github.com/vietddude/inboxd/internal/infra/storage"
)

// ProcessedRepo implements storage.ProcessedRepository using PostgreSQL.
type ProcessedRepo struct {
	db *DB
}

// NewProcessedRepo creates a new PostgreSQL processed-message repository.
func NewProcessedRepo(db *DB) *ProcessedRepo {
	return &ProcessedRepo{db: db}
}

type processedRow struct {
	MessageID   string    `db:"message_id"`
	ProcessedAt time.Time `db:"processed_at"`
	Metadata    []byte    `db:"metadata"`
}

// IsProcessed reports whether a message ID was handled before.
func (r *ProcessedRepo) IsProcessed(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM processed_emails WHERE message_id = $1)`, id)
	if err != nil {
		return false, fmt.Errorf("failed to check processed: %w", err)
	}
	return exists, nil
}

// MarkProcessed records a handled message. Idempotent: marking the
// same ID twice keeps the first record.
func (r *ProcessedRepo) MarkProcessed(
	ctx context.Context,
	id string,
	metadata map[string]string,
) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO processed_emails (message_id, processed_at, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id) DO NOTHING`,
		id, time.Now().UTC(), meta)
	if err != nil {
		return fmt.Errorf("failed to mark processed: %w", err)
	}
	return nil
}

// Get retrieves a processed record.
func (r *ProcessedRepo) Get(ctx context.Context, id string) (*domain.ProcessedRecord, error) {
	var row processedRow
	err := r.db.GetContext(ctx, &row,
		`SELECT message_id, processed_at, metadata FROM processed_emails WHERE message_id = $1`,
		id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processed record: %w", err)
	}

	var meta map[string]string
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &domain.ProcessedRecord{
		MessageID:   row.MessageID,
		ProcessedAt: row.ProcessedAt,
		Metadata:    meta,
	}, nil
}

// Count returns the number of processed records.
func (r *ProcessedRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM processed_emails`); err != nil {
		return 0, fmt.Errorf("failed to count processed records: %w", err)
	}
	return count, nil
}
