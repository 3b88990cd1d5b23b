package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/inboxd/internal/core/domain"
	"github.com/vietddude/inboxd/internal/infra/storage"
)

// CachedProcessedRepo fronts a ProcessedRepository with a Redis
// positive cache of recently handled message IDs. A cache miss falls
// through to the backing repository; a cache failure degrades to the
// backing repository rather than failing the lookup.
type CachedProcessedRepo struct {
	rdb  *redis.Client
	next storage.ProcessedRepository
	ttl  time.Duration
	log  *slog.Logger
}

// NewCachedProcessedRepo layers a Redis cache in front of next.
func NewCachedProcessedRepo(
	client *Client,
	next storage.ProcessedRepository,
	ttl time.Duration,
) *CachedProcessedRepo {
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &CachedProcessedRepo{
		rdb:  client.rdb,
		next: next,
		ttl:  ttl,
		log:  slog.Default().With("component", "redis"),
	}
}

func processedKey(id string) string {
	return fmt.Sprintf("processed_email:%s", id)
}

// IsProcessed checks the cache first, then the backing repository.
func (r *CachedProcessedRepo) IsProcessed(ctx context.Context, id string) (bool, error) {
	n, err := r.rdb.Exists(ctx, processedKey(id)).Result()
	if err != nil {
		r.log.Warn("Cache lookup failed, falling back", "error", err)
	} else if n > 0 {
		return true, nil
	}

	processed, err := r.next.IsProcessed(ctx, id)
	if err != nil {
		return false, err
	}
	if processed {
		// Re-warm the cache; losing this write only costs a future miss.
		if err := r.rdb.Set(ctx, processedKey(id), "1", r.ttl).Err(); err != nil {
			r.log.Warn("Cache re-warm failed", "error", err)
		}
	}
	return processed, nil
}

// MarkProcessed writes through to the backing repository, then caches.
func (r *CachedProcessedRepo) MarkProcessed(
	ctx context.Context,
	id string,
	metadata map[string]string,
) error {
	if err := r.next.MarkProcessed(ctx, id, metadata); err != nil {
		return err
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := r.rdb.Set(ctx, processedKey(id), data, r.ttl).Err(); err != nil {
		r.log.Warn("Cache write failed", "message_id", id, "error", err)
	}
	return nil
}

// Get retrieves a processed record from the backing repository.
func (r *CachedProcessedRepo) Get(ctx context.Context, id string) (*domain.ProcessedRecord, error) {
	return r.next.Get(ctx, id)
}

// Count returns the backing repository count.
func (r *CachedProcessedRepo) Count(ctx context.Context) (int64, error) {
	return r.next.Count(ctx)
}
