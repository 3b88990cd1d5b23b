package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/inboxd/internal/core/domain"
)

// ErrConditionNotMet is returned when retries were driven purely by a
// result predicate and the budget ran out without a matching success.
var ErrConditionNotMet = errors.New("retry exhausted without matching success condition")

// State is the mutable per-invocation record. Attempt accounting is
// synchronized so wrapped calls spawning concurrent sub-calls stay safe.
type State struct {
	mu        sync.Mutex
	attempt   int
	startedAt time.Time
	lastErr   error
	succeeded bool
}

func newState() *State {
	return &State{startedAt: time.Now()}
}

// NextAttempt increments and returns the 1-based attempt number.
func (s *State) NextAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt++
	return s.attempt
}

// Attempt returns the current attempt number.
func (s *State) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Elapsed returns time since the invocation started.
func (s *State) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startedAt)
}

func (s *State) record(err error, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.succeeded = ok
}

// LastErr returns the error from the most recent attempt.
func (s *State) LastErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Do retries op under p until it succeeds or the budget is consumed.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, nil)
	return err
}

// DoValue retries op under p. retryResult, when non-nil, marks an
// otherwise successful result as retryable; exhaustion in that mode
// yields ErrConditionNotMet instead of the last error.
func DoValue[T any](
	ctx context.Context,
	p Policy,
	op func(context.Context) (T, error),
	retryResult func(T) bool,
) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	state := newState()
	var lastResult T
	resultDriven := false

	for {
		attempt := state.NextAttempt()

		result, err := op(ctx)
		if err == nil {
			if retryResult == nil || !retryResult(result) {
				state.record(nil, true)
				return result, nil
			}
			// Result matched the retry predicate; treat as a failed attempt.
			lastResult = result
			resultDriven = true
			err = ErrConditionNotMet
		} else if !p.retryable(err) {
			state.record(err, false)
			return zero, err
		} else {
			resultDriven = false
		}
		state.record(err, false)

		delay := p.delay(attempt)
		if p.Reporter != nil {
			p.Reporter.ReportRetry(ctx, attempt, delay, err)
		}

		if attempt >= p.MaxAttempts {
			break
		}
		if p.Timeout > 0 && state.Elapsed()+delay >= p.Timeout {
			break
		}

		if err := Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	if resultDriven {
		return lastResult, fmt.Errorf(
			"%w after %d attempts: %w",
			domain.ErrRetriesExhausted, state.Attempt(), ErrConditionNotMet)
	}
	return zero, fmt.Errorf(
		"%w after %d attempts: %w",
		domain.ErrRetriesExhausted, state.Attempt(), state.LastErr())
}

// DoUntilDeadline retries op on any error until the wall-clock timeout
// elapses, sleeping interval between attempts. The timeout bounds the
// loop only; per-attempt socket timeouts are the operation's concern.
func DoUntilDeadline(
	ctx context.Context,
	timeout time.Duration,
	interval time.Duration,
	op func(context.Context) error,
) error {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)

	var lastErr error
	attempt := 0
	for time.Now().Before(deadline) {
		attempt++
		if err := op(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if time.Now().Add(interval).After(deadline) {
			break
		}
		if err := Sleep(ctx, interval); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: deadline %v passed after %d attempts: %w",
		domain.ErrRetriesExhausted, timeout, attempt, lastErr)
}
