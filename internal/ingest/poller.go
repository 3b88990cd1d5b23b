package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/inboxd/internal/core/domain"
	"github.com/vietddude/inboxd/internal/faults"
	"github.com/vietddude/inboxd/internal/infra/storage"
)

// Processor hands a message to the document-extraction side and
// returns extracted fields. Opaque to this package.
type Processor interface {
	ProcessMessage(ctx context.Context, msg domain.Message) (map[string]string, error)
}

// Poller drives the fetch pipeline on an interval and hands results
// to the processor, marking messages processed on success.
type Poller struct {
	fetcher   *Fetcher
	processor Processor
	processed storage.ProcessedRepository
	handler   *faults.Handler
	interval  time.Duration
	log       *slog.Logger
}

// NewPoller creates a poller.
func NewPoller(
	fetcher *Fetcher,
	processor Processor,
	processed storage.ProcessedRepository,
	handler *faults.Handler,
	interval time.Duration,
) *Poller {
	if interval == 0 {
		interval = time.Minute
	}
	return &Poller{
		fetcher:   fetcher,
		processor: processor,
		processed: processed,
		handler:   handler,
		interval:  interval,
		log:       slog.Default().With("component", "poller"),
	}
}

// Run polls until the context is cancelled. An initial cycle runs
// immediately, then on every tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.RunOnce(ctx); err != nil {
		p.log.Error("Poll cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.log.Error("Poll cycle failed", "error", err)
			}
		}
	}
}

// RunOnce executes one fetch-and-process cycle.
func (p *Poller) RunOnce(ctx context.Context) error {
	messages, err := p.fetcher.Fetch(ctx, nil)
	if err != nil {
		cont := p.handler.Handle(ctx, faults.New(
			err, "", "fetch", categoryFor(err), severityFor(err), nil))
		if !cont {
			return fmt.Errorf("fetch aborted: %w", err)
		}
		return nil
	}
	if len(messages) == 0 {
		p.log.Debug("No new messages")
		return nil
	}
	p.log.Info("Fetched messages", "count", len(messages))

	for _, msg := range messages {
		fields, err := p.processor.ProcessMessage(ctx, msg)
		if err != nil {
			cont := p.handler.Handle(ctx, faults.New(
				err, msg.ID, "process", faults.CategoryProcessing, faults.SeverityMedium,
				map[string]any{"subject": msg.Subject}))
			if !cont {
				return fmt.Errorf("processing stopped at message %s: %w", msg.ID, err)
			}
			continue
		}

		if err := p.processed.MarkProcessed(ctx, msg.ID, fields); err != nil {
			p.handler.Handle(ctx, faults.New(
				err, msg.ID, "mark_processed", faults.CategoryDatabase, faults.SeverityHigh, nil))
			return fmt.Errorf("mark processed %s: %w", msg.ID, err)
		}
		p.log.Info("Message processed", "message_id", msg.ID, "fields", len(fields))
	}
	return nil
}

func categoryFor(err error) faults.Category {
	switch {
	case isAuthError(err):
		return faults.CategoryAuth
	default:
		return faults.CategoryNetwork
	}
}

func severityFor(err error) faults.Severity {
	if isAuthError(err) {
		return faults.SeverityHigh
	}
	return faults.SeverityMedium
}

func isAuthError(err error) bool {
	var authErr *domain.AuthError
	return errors.As(err, &authErr)
}
