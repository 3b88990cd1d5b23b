package faults

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/vietddude/inboxd/internal/ingest/metrics"
)

// Notifier forwards escalated failures to an external alerting channel.
type Notifier interface {
	SendErrorAlert(
		ctx context.Context,
		processID, message string,
		details map[string]any,
		requiresAttention bool,
	) error
}

// Config holds classifier thresholds.
type Config struct {
	// CategoryThreshold stops a process after this many medium errors
	// in one category inside the tracking window.
	CategoryThreshold int `yaml:"category_threshold"`
	// ProcessThreshold stops a process after this many medium errors
	// for one process ID inside the tracking window.
	ProcessThreshold int           `yaml:"process_threshold"`
	TrackingWindow   time.Duration `yaml:"tracking_window"`
	RecentCapacity   int           `yaml:"recent_capacity"`
	EmergencyLogPath string        `yaml:"emergency_log_path"`
}

// DefaultConfig provides the standard thresholds.
var DefaultConfig = Config{
	CategoryThreshold: 5,
	ProcessThreshold:  3,
	TrackingWindow:    time.Hour,
	RecentCapacity:    100,
	EmergencyLogPath:  "emergency.log",
}

// Handler classifies process errors, tracks statistics and decides
// whether a caller may continue. Process-wide; passed by reference to
// all callers, never module-level state.
type Handler struct {
	cfg      Config
	notifier Notifier
	log      *slog.Logger

	mu               sync.Mutex
	countsByCategory map[Category]int
	countsByKind     map[Category]map[string]int
	countsByProcess  map[string]int
	countsBySeverity map[Severity]int
	categoryTimes    map[Category][]time.Time
	processTimes     map[string][]time.Time
	recent           []*ProcessError
}

// NewHandler creates a classifier. notifier may be nil.
func NewHandler(cfg Config, notifier Notifier) *Handler {
	if cfg.CategoryThreshold == 0 {
		cfg.CategoryThreshold = DefaultConfig.CategoryThreshold
	}
	if cfg.ProcessThreshold == 0 {
		cfg.ProcessThreshold = DefaultConfig.ProcessThreshold
	}
	if cfg.TrackingWindow == 0 {
		cfg.TrackingWindow = DefaultConfig.TrackingWindow
	}
	if cfg.RecentCapacity == 0 {
		cfg.RecentCapacity = DefaultConfig.RecentCapacity
	}
	if cfg.EmergencyLogPath == "" {
		cfg.EmergencyLogPath = DefaultConfig.EmergencyLogPath
	}
	return &Handler{
		cfg:              cfg,
		notifier:         notifier,
		log:              slog.Default().With("component", "faults"),
		countsByCategory: make(map[Category]int),
		countsByKind:     make(map[Category]map[string]int),
		countsByProcess:  make(map[string]int),
		countsBySeverity: make(map[Severity]int),
		categoryTimes:    make(map[Category][]time.Time),
		processTimes:     make(map[string][]time.Time),
	}
}

// Handle classifies e and returns true when the caller may continue
// or retry, false when it must stop. The escalation decision and all
// counter updates happen under one lock; the notification itself is
// sent after the lock is released.
func (h *Handler) Handle(ctx context.Context, e *ProcessError) bool {
	h.logError(e)
	metrics.ErrorsTotal.WithLabelValues(string(e.Category), string(e.Severity)).Inc()

	h.mu.Lock()
	h.record(e)

	var (
		cont     bool
		escalate bool
		message  string
	)
	switch e.Severity {
	case SeverityLow:
		cont = true
	case SeverityMedium:
		cont, escalate, message = h.judgeMedium(e)
	default: // high, fatal
		cont = false
		escalate = true
		message = e.Message()
	}
	h.mu.Unlock()

	if e.Severity == SeverityFatal {
		h.appendEmergency(e)
	}
	if escalate {
		h.escalate(ctx, e, message)
	}
	return cont
}

// record updates counters and the recent-error ring. Caller holds h.mu.
func (h *Handler) record(e *ProcessError) {
	h.countsByCategory[e.Category]++
	h.countsBySeverity[e.Severity]++
	if h.countsByKind[e.Category] == nil {
		h.countsByKind[e.Category] = make(map[string]int)
	}
	h.countsByKind[e.Category][e.Kind()]++
	if e.ProcessID != "" {
		h.countsByProcess[e.ProcessID]++
	}

	h.recent = append(h.recent, e)
	if len(h.recent) > h.cfg.RecentCapacity {
		h.recent = h.recent[1:]
	}
}

// judgeMedium applies the windowed thresholds. Caller holds h.mu.
func (h *Handler) judgeMedium(e *ProcessError) (cont, escalate bool, message string) {
	now := e.Timestamp
	cutoff := now.Add(-h.cfg.TrackingWindow)

	h.categoryTimes[e.Category] = pruneBefore(append(h.categoryTimes[e.Category], now), cutoff)
	catCount := len(h.categoryTimes[e.Category])

	var procCount int
	if e.ProcessID != "" {
		h.processTimes[e.ProcessID] = pruneBefore(append(h.processTimes[e.ProcessID], now), cutoff)
		procCount = len(h.processTimes[e.ProcessID])
	}

	switch {
	case catCount >= h.cfg.CategoryThreshold:
		// Escalate exactly once, when the threshold is first crossed.
		return false, catCount == h.cfg.CategoryThreshold,
			"repeated " + string(e.Category) + " errors"
	case procCount >= h.cfg.ProcessThreshold:
		return false, procCount == h.cfg.ProcessThreshold,
			"repeated errors for process " + e.ProcessID
	default:
		return true, false, ""
	}
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (h *Handler) escalate(ctx context.Context, e *ProcessError, message string) {
	metrics.EscalationsTotal.Inc()
	if h.notifier == nil {
		return
	}
	requiresAttention := e.Severity == SeverityHigh || e.Severity == SeverityFatal
	if message == "" {
		message = e.Message()
	}
	if err := h.notifier.SendErrorAlert(
		ctx, e.ProcessID, message, e.Details(), requiresAttention,
	); err != nil {
		h.log.Error("Failed to send escalation",
			"process_id", e.ProcessID, "error", err)
	}
}

// appendEmergency writes fatal errors to a durable log distinct from
// the normal log stream.
func (h *Handler) appendEmergency(e *ProcessError) {
	f, err := os.OpenFile(h.cfg.EmergencyLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		h.log.Error("Failed to open emergency log", "path", h.cfg.EmergencyLogPath, "error", err)
		return
	}
	defer f.Close()

	line, err := json.Marshal(e.Details())
	if err != nil {
		h.log.Error("Failed to marshal emergency entry", "error", err)
		return
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		h.log.Error("Failed to write emergency log", "error", err)
	}
}

func (h *Handler) logError(e *ProcessError) {
	attrs := []any{
		"process_id", e.ProcessID,
		"stage", e.Stage,
		"category", string(e.Category),
		"kind", e.Kind(),
		"correlation_id", e.CorrelationID,
		"error", e.Err,
	}
	switch e.Severity {
	case SeverityFatal, SeverityHigh:
		h.log.Error("Process error", attrs...)
	case SeverityMedium:
		h.log.Warn("Process error", attrs...)
	default:
		h.log.Info("Process error", attrs...)
	}
}
