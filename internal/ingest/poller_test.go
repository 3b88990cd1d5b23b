package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/inboxd/internal/core/domain"
	"github.com/vietddude/inboxd/internal/faults"
	"github.com/vietddude/inboxd/internal/infra/storage/memory"
)

type fakeProcessor struct {
	fields map[string]string
	err    error
	seen   []string
}

func (p *fakeProcessor) ProcessMessage(ctx context.Context, msg domain.Message) (map[string]string, error) {
	p.seen = append(p.seen, msg.ID)
	return p.fields, p.err
}

func newTestPoller(api *fakeLister, proc Processor) (*Poller, *memory.ProcessedRepo) {
	repo := memory.NewProcessedRepo()
	fetcher := NewFetcher(api, repo, Config{})
	fetcher.now = func() time.Time { return t0 }
	handler := faults.NewHandler(faults.Config{}, nil)
	return NewPoller(fetcher, proc, repo, handler, time.Minute), repo
}

func TestRunOnce_MarksProcessedOnSuccess(t *testing.T) {
	api := staticLister(
		msg("m1", "Alpha", t0.Add(-10*time.Minute)),
		msg("m2", "Beta", t0.Add(-20*time.Minute)),
	)
	proc := &fakeProcessor{fields: map[string]string{"doc": "invoice"}}
	poller, repo := newTestPoller(api, proc)

	if err := poller.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(proc.seen) != 2 {
		t.Errorf("expected 2 messages processed, got %v", proc.seen)
	}
	for _, id := range []string{"m1", "m2"} {
		done, err := repo.IsProcessed(context.Background(), id)
		if err != nil || !done {
			t.Errorf("message %s not marked processed (done=%v err=%v)", id, done, err)
		}
		rec, err := repo.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if rec.Metadata["doc"] != "invoice" {
			t.Errorf("extracted fields not stored for %s: %v", id, rec.Metadata)
		}
	}
}

func TestRunOnce_ProcessorErrorLeavesMessageUnmarked(t *testing.T) {
	api := staticLister(msg("m1", "Alpha", t0.Add(-10*time.Minute)))
	proc := &fakeProcessor{err: errors.New("extraction failed")}
	poller, repo := newTestPoller(api, proc)

	// A single medium failure is below both thresholds, so the cycle
	// itself completes.
	if err := poller.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	done, err := repo.IsProcessed(context.Background(), "m1")
	if err != nil || done {
		t.Errorf("failed message must stay unprocessed (done=%v err=%v)", done, err)
	}
}

func TestRunOnce_FetchErrorHandled(t *testing.T) {
	api := &fakeLister{err: errors.New("upstream down")}
	poller, _ := newTestPoller(api, &fakeProcessor{})

	// The first medium fetch failure is absorbed by the classifier.
	if err := poller.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected absorbed fetch failure, got %v", err)
	}
}

func TestRunOnce_AuthFailureAborts(t *testing.T) {
	api := &fakeLister{err: &domain.AuthError{Reason: "credentials revoked"}}
	poller, _ := newTestPoller(api, &fakeProcessor{})

	if err := poller.RunOnce(context.Background()); err == nil {
		t.Fatal("expected an auth failure to abort the cycle")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	api := &fakeLister{}
	poller, _ := newTestPoller(api, &fakeProcessor{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}
