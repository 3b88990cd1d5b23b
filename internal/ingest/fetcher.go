package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vietddude/inboxd/internal/core/domain"
	"github.com/vietddude/inboxd/internal/infra/storage"
	"github.com/vietddude/inboxd/internal/ingest/metrics"
)

// Config holds fetch pipeline settings.
type Config struct {
	MaxItems int `yaml:"max_items"`
	// LookbackWindows is the ascending ladder tried when no explicit
	// since timestamp is given.
	LookbackWindows []time.Duration `yaml:"lookback_windows"`
	SubjectKeywords []string        `yaml:"subject_keywords"`
	// SubjectDedup keeps only the latest-received message per subject.
	// The observed upstream behavior; may drop a legitimately distinct
	// message that reuses a subject, hence configurable.
	SubjectDedup *bool         `yaml:"subject_dedup"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultLookbackWindows is the ladder used when none is configured.
var DefaultLookbackWindows = []time.Duration{
	1 * time.Hour,
	3 * time.Hour,
	120 * time.Hour,
}

// MessageLister is the slice of the mail API the pipeline consumes.
type MessageLister interface {
	ListMessages(ctx context.Context, since time.Time, max int) ([]domain.Message, error)
}

// Fetcher is the fetch/dedup pipeline. It reads only; marking items
// processed is the caller's responsibility.
type Fetcher struct {
	api       MessageLister
	processed storage.ProcessedRepository
	cfg       Config
	log       *slog.Logger

	// Overridable in tests.
	now func() time.Time
}

// NewFetcher creates a fetch pipeline.
func NewFetcher(api MessageLister, processed storage.ProcessedRepository, cfg Config) *Fetcher {
	if cfg.MaxItems == 0 {
		cfg.MaxItems = 100
	}
	if len(cfg.LookbackWindows) == 0 {
		cfg.LookbackWindows = DefaultLookbackWindows
	}
	return &Fetcher{
		api:       api,
		processed: processed,
		cfg:       cfg,
		log:       slog.Default().With("component", "ingest"),
		now:       time.Now,
	}
}

// Fetch returns unprocessed messages ordered by received time
// descending. A nil since walks the lookback ladder and returns the
// first window yielding any unprocessed item; an exhausted ladder
// yields an empty result, not an error.
func (f *Fetcher) Fetch(ctx context.Context, since *time.Time) ([]domain.Message, error) {
	if since != nil {
		items, err := f.fetchWindow(ctx, *since)
		if err != nil {
			metrics.FetchesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		f.recordFetch(items)
		return items, nil
	}

	for _, window := range f.cfg.LookbackWindows {
		start := f.now().Add(-window)
		items, err := f.fetchWindow(ctx, start)
		if err != nil {
			metrics.FetchesTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("lookback window %v: %w", window, err)
		}
		if len(items) > 0 {
			f.log.Debug("Lookback window yielded messages",
				"window", window, "count", len(items))
			f.recordFetch(items)
			return items, nil
		}
	}

	f.log.Debug("All lookback windows empty")
	metrics.FetchesTotal.WithLabelValues("empty").Inc()
	return nil, nil
}

func (f *Fetcher) recordFetch(items []domain.Message) {
	if len(items) > 0 {
		metrics.FetchesTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.FetchesTotal.WithLabelValues("empty").Inc()
	}
	metrics.MessagesFetched.Add(float64(len(items)))
}

func (f *Fetcher) fetchWindow(ctx context.Context, since time.Time) ([]domain.Message, error) {
	messages, err := f.api.ListMessages(ctx, since, f.cfg.MaxItems)
	if err != nil {
		return nil, err
	}

	messages = f.filterCandidates(messages)
	messages = dedupByID(messages)
	if f.subjectDedupEnabled() {
		messages = dedupBySubject(messages)
	}

	// Cross-invocation filter runs after intra-batch dedup.
	kept := messages[:0]
	for _, m := range messages {
		done, err := f.processed.IsProcessed(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("processed lookup for %s: %w", m.ID, err)
		}
		if done {
			metrics.MessagesDeduped.WithLabelValues("processed").Inc()
			continue
		}
		kept = append(kept, m)
	}

	sortByReceivedDesc(kept)
	return kept, nil
}

// filterCandidates keeps messages with attachments whose subject
// matches a configured keyword. No keywords means no subject filter.
func (f *Fetcher) filterCandidates(messages []domain.Message) []domain.Message {
	kept := messages[:0]
	for _, m := range messages {
		if !m.HasAttachments {
			metrics.MessagesDeduped.WithLabelValues("no_attachments").Inc()
			continue
		}
		if len(f.cfg.SubjectKeywords) > 0 && !matchesKeyword(m.Subject, f.cfg.SubjectKeywords) {
			metrics.MessagesDeduped.WithLabelValues("subject_filter").Inc()
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

func (f *Fetcher) subjectDedupEnabled() bool {
	if f.cfg.SubjectDedup == nil {
		return true
	}
	return *f.cfg.SubjectDedup
}

func matchesKeyword(subject string, keywords []string) bool {
	s := strings.ToLower(subject)
	for _, kw := range keywords {
		if strings.Contains(s, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// dedupByID drops items already seen by ID; the first occurrence wins.
func dedupByID(messages []domain.Message) []domain.Message {
	seen := make(map[string]struct{}, len(messages))
	kept := messages[:0]
	for _, m := range messages {
		if _, ok := seen[m.ID]; ok {
			metrics.MessagesDeduped.WithLabelValues("id").Inc()
			continue
		}
		seen[m.ID] = struct{}{}
		kept = append(kept, m)
	}
	return kept
}

// dedupBySubject keeps only the latest-received message per
// case-folded subject. Ties keep the earlier input position, which
// makes the result stable for identical timestamps.
func dedupBySubject(messages []domain.Message) []domain.Message {
	best := make(map[string]int, len(messages))
	for i, m := range messages {
		key := strings.ToLower(strings.TrimSpace(m.Subject))
		j, ok := best[key]
		if !ok {
			best[key] = i
			continue
		}
		if m.ReceivedAt.After(messages[j].ReceivedAt) {
			best[key] = i
		}
		metrics.MessagesDeduped.WithLabelValues("subject").Inc()
	}

	kept := make([]domain.Message, 0, len(best))
	for i, m := range messages {
		key := strings.ToLower(strings.TrimSpace(m.Subject))
		if best[key] == i {
			kept = append(kept, m)
		}
	}
	return kept
}

func sortByReceivedDesc(messages []domain.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.After(messages[j].ReceivedAt)
	})
}
