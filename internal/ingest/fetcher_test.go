package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/inboxd/internal/core/domain"
	"github.com/vietddude/inboxd/internal/infra/storage/memory"
)

// fakeLister serves canned messages per window start and records the
// since values it was asked for.
type fakeLister struct {
	byWindow func(since time.Time) []domain.Message
	asked    []time.Time
	err      error
}

func (f *fakeLister) ListMessages(ctx context.Context, since time.Time, max int) ([]domain.Message, error) {
	f.asked = append(f.asked, since)
	if f.err != nil {
		return nil, f.err
	}
	if f.byWindow == nil {
		return nil, nil
	}
	return f.byWindow(since), nil
}

func msg(id, subject string, received time.Time) domain.Message {
	return domain.Message{ID: id, Subject: subject, ReceivedAt: received, HasAttachments: true}
}

var t0 = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func staticLister(messages ...domain.Message) *fakeLister {
	return &fakeLister{byWindow: func(time.Time) []domain.Message { return messages }}
}

func newTestFetcher(api *fakeLister, cfg Config) *Fetcher {
	f := NewFetcher(api, memory.NewProcessedRepo(), cfg)
	f.now = func() time.Time { return t0 }
	return f
}

func TestFetch_DedupByID_FirstWins(t *testing.T) {
	api := staticLister(
		msg("m1", "Alpha", t0.Add(-10*time.Minute)),
		msg("m2", "Beta", t0.Add(-20*time.Minute)),
		msg("m1", "Alpha copy", t0.Add(-5*time.Minute)),
	)
	f := newTestFetcher(api, Config{})

	since := t0.Add(-time.Hour)
	got, err := f.Fetch(context.Background(), &since)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages after ID dedup, got %d", len(got))
	}
	for _, m := range got {
		if m.ID == "m1" && m.Subject != "Alpha" {
			t.Errorf("first occurrence must win, got subject %q", m.Subject)
		}
	}
}

func TestFetch_DedupBySubject_KeepsLatest(t *testing.T) {
	// Earlier-received duplicate listed first; order must not matter.
	api := staticLister(
		msg("m1", "Weekly Report", t0.Add(-2*time.Hour)),
		msg("m2", "weekly report ", t0.Add(-30*time.Minute)),
		msg("m3", "Other", t0.Add(-time.Hour)),
	)
	f := newTestFetcher(api, Config{})

	since := t0.Add(-3 * time.Hour)
	got, err := f.Fetch(context.Background(), &since)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages after subject dedup, got %d", len(got))
	}
	if got[0].ID != "m2" {
		t.Errorf("expected the latest-received duplicate to survive, got %q", got[0].ID)
	}
}

func TestFetch_SubjectDedupDisabled(t *testing.T) {
	api := staticLister(
		msg("m1", "Weekly Report", t0.Add(-2*time.Hour)),
		msg("m2", "Weekly Report", t0.Add(-30*time.Minute)),
	)
	off := false
	f := newTestFetcher(api, Config{SubjectDedup: &off})

	since := t0.Add(-3 * time.Hour)
	got, err := f.Fetch(context.Background(), &since)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected both messages with subject dedup off, got %d", len(got))
	}
}

func TestFetch_SkipsProcessedMessages(t *testing.T) {
	api := staticLister(
		msg("m1", "Alpha", t0.Add(-10*time.Minute)),
		msg("m2", "Beta", t0.Add(-20*time.Minute)),
	)
	repo := memory.NewProcessedRepo()
	if err := repo.MarkProcessed(context.Background(), "m1", nil); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	f := NewFetcher(api, repo, Config{})
	f.now = func() time.Time { return t0 }

	since := t0.Add(-time.Hour)
	got, err := f.Fetch(context.Background(), &since)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m2" {
		t.Errorf("expected only the unprocessed message, got %+v", got)
	}
}

func TestFetch_IdempotentWhenAllProcessed(t *testing.T) {
	api := staticLister(
		msg("m1", "Alpha", t0.Add(-10*time.Minute)),
	)
	repo := memory.NewProcessedRepo()
	f := NewFetcher(api, repo, Config{})
	f.now = func() time.Time { return t0 }

	since := t0.Add(-time.Hour)
	first, err := f.Fetch(context.Background(), &since)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	for _, m := range first {
		if err := repo.MarkProcessed(context.Background(), m.ID, nil); err != nil {
			t.Fatalf("MarkProcessed failed: %v", err)
		}
	}

	second, err := f.Fetch(context.Background(), &since)
	if err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected no messages on the second pass, got %d", len(second))
	}
}

func TestFetch_LookbackLadder(t *testing.T) {
	// Only the 3h window has anything; the 1h probe comes back empty.
	api := &fakeLister{byWindow: func(since time.Time) []domain.Message {
		if since.Before(t0.Add(-2 * time.Hour)) {
			return []domain.Message{msg("m1", "Alpha", t0.Add(-2*time.Hour))}
		}
		return nil
	}}
	f := newTestFetcher(api, Config{})

	got, err := f.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message from the wider window, got %d", len(got))
	}
	if len(api.asked) != 2 {
		t.Fatalf("expected the ladder to stop at the first non-empty window, asked %v", api.asked)
	}
	if !api.asked[0].Equal(t0.Add(-1 * time.Hour)) {
		t.Errorf("first probe should cover 1h, got %v", api.asked[0])
	}
	if !api.asked[1].Equal(t0.Add(-3 * time.Hour)) {
		t.Errorf("second probe should cover 3h, got %v", api.asked[1])
	}
}

func TestFetch_ExhaustedLadderIsNotAnError(t *testing.T) {
	api := &fakeLister{}
	f := newTestFetcher(api, Config{})

	got, err := f.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected empty result, got error %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no messages, got %d", len(got))
	}
	if len(api.asked) != len(DefaultLookbackWindows) {
		t.Errorf("expected the whole ladder to be walked, asked %d times", len(api.asked))
	}
}

func TestFetch_OrderedByReceivedDesc(t *testing.T) {
	api := staticLister(
		msg("m1", "A", t0.Add(-30*time.Minute)),
		msg("m2", "B", t0.Add(-10*time.Minute)),
		msg("m3", "C", t0.Add(-20*time.Minute)),
	)
	f := newTestFetcher(api, Config{})

	since := t0.Add(-time.Hour)
	got, err := f.Fetch(context.Background(), &since)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ReceivedAt.After(got[i-1].ReceivedAt) {
			t.Fatalf("messages not in received-desc order: %+v", got)
		}
	}
	if got[0].ID != "m2" {
		t.Errorf("expected newest first, got %q", got[0].ID)
	}
}

func TestFetch_FiltersCandidates(t *testing.T) {
	noAttach := domain.Message{ID: "m1", Subject: "Daily Report", ReceivedAt: t0.Add(-time.Minute)}
	api := staticLister(
		noAttach,
		msg("m2", "Daily Report", t0.Add(-2*time.Minute)),
		msg("m3", "Lunch plans", t0.Add(-3*time.Minute)),
	)
	f := newTestFetcher(api, Config{SubjectKeywords: []string{"report"}})

	since := t0.Add(-time.Hour)
	got, err := f.Fetch(context.Background(), &since)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m2" {
		t.Errorf("expected only the attachment-bearing report, got %+v", got)
	}
}

func TestFetch_ListErrorPropagates(t *testing.T) {
	wantErr := errors.New("upstream down")
	api := &fakeLister{err: wantErr}
	f := newTestFetcher(api, Config{})

	since := t0.Add(-time.Hour)
	if _, err := f.Fetch(context.Background(), &since); !errors.Is(err, wantErr) {
		t.Errorf("expected upstream error in chain, got %v", err)
	}
}
