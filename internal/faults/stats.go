package faults

import (
	"context"
	"time"

	"github.com/vietddude/inboxd/internal/ingest/metrics"
)

// Stats is an immutable snapshot of classifier state.
type Stats struct {
	CountsByCategory map[Category]int
	CountsByKind     map[Category]map[string]int
	CountsByProcess  map[string]int
	CountsBySeverity map[Severity]int
	Recent           []*ProcessError // last 10, oldest first
	Last24Hours      int
	Total            int
}

// Stats returns a snapshot; the live structures are never exposed.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Stats{
		CountsByCategory: make(map[Category]int, len(h.countsByCategory)),
		CountsByKind:     make(map[Category]map[string]int, len(h.countsByKind)),
		CountsByProcess:  make(map[string]int, len(h.countsByProcess)),
		CountsBySeverity: make(map[Severity]int, len(h.countsBySeverity)),
	}
	for c, n := range h.countsByCategory {
		s.CountsByCategory[c] = n
		s.Total += n
	}
	for c, kinds := range h.countsByKind {
		inner := make(map[string]int, len(kinds))
		for k, n := range kinds {
			inner[k] = n
		}
		s.CountsByKind[c] = inner
	}
	for p, n := range h.countsByProcess {
		s.CountsByProcess[p] = n
	}
	for sev, n := range h.countsBySeverity {
		s.CountsBySeverity[sev] = n
	}

	start := 0
	if len(h.recent) > 10 {
		start = len(h.recent) - 10
	}
	s.Recent = append(s.Recent, h.recent[start:]...)

	cutoff := time.Now().Add(-24 * time.Hour)
	for _, e := range h.recent {
		if e.Timestamp.After(cutoff) {
			s.Last24Hours++
		}
	}
	return s
}

// Reset clears all counters and the recent-error buffer. Explicit
// operator action only.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.countsByCategory = make(map[Category]int)
	h.countsByKind = make(map[Category]map[string]int)
	h.countsByProcess = make(map[string]int)
	h.countsBySeverity = make(map[Severity]int)
	h.categoryTimes = make(map[Category][]time.Time)
	h.processTimes = make(map[string][]time.Time)
	h.recent = nil
}

// RetryReporter adapts the handler to the retry engine's reporter hook,
// attaching attempt number and computed delay to each reported failure.
type RetryReporter struct {
	Handler   *Handler
	ProcessID string
	Stage     string
	Category  Category
}

// ReportRetry records a failed attempt as a low-severity process error.
func (r RetryReporter) ReportRetry(
	ctx context.Context,
	attempt int,
	delay time.Duration,
	err error,
) {
	metrics.RetriesTotal.WithLabelValues(r.Stage).Inc()
	if r.Handler == nil {
		return
	}
	cat := r.Category
	if cat == "" {
		cat = CategoryProcessing
	}
	r.Handler.Handle(ctx, New(err, r.ProcessID, r.Stage, cat, SeverityLow, map[string]any{
		"attempt": attempt,
		"delay":   delay.String(),
	}))
}
