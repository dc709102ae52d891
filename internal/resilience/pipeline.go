package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Schedule is the ordered list of backoff delays consumed left to right between attempts.
// An empty schedule means a single attempt with no retries.
type Schedule []time.Duration

// DefaultSchedule is the backoff used when none is configured.
var DefaultSchedule = Schedule{1 * time.Second, 1 * time.Second, 5 * time.Second}

// DefaultTimeout bounds a whole fetch (all attempts plus backoff waits).
const DefaultTimeout = 30 * time.Second

// EventKind identifies a pipeline boundary reported to the Observer.
type EventKind int

const (
	EventAttempt EventKind = iota
	EventRetry
	EventFatal
	EventSuccess
	EventExhausted
	EventTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventAttempt:
		return "attempt"
	case EventRetry:
		return "retry"
	case EventFatal:
		return "fatal"
	case EventSuccess:
		return "success"
	case EventExhausted:
		return "exhausted"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Event describes one pipeline boundary. Attempt is 1-based. Delay is set for EventRetry.
type Event struct {
	Kind    EventKind
	Attempt int
	Err     error
	Delay   time.Duration
	Elapsed time.Duration
}

// Observer receives pipeline events. It must not block; panics are recovered and ignored.
type Observer func(ctx context.Context, ev Event)

// Config configures a Pipeline. Zero values are valid: no retries, no overall timeout,
// StatusClassifier(nil), real clock, no observer.
type Config struct {
	Schedule Schedule
	Timeout  time.Duration
	Classify Classifier
	Observer Observer
	Clock    clockwork.Clock
}

// Pipeline executes one logical upstream fetch with bounded retries and an overall deadline.
// A Pipeline is immutable and safe for concurrent use.
type Pipeline struct {
	schedule Schedule
	timeout  time.Duration
	classify Classifier
	observer Observer
	clock    clockwork.Clock
}

// New returns a Pipeline for cfg.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		schedule: append(Schedule(nil), cfg.Schedule...),
		timeout:  cfg.Timeout,
		classify: cfg.Classify,
		observer: cfg.Observer,
		clock:    cfg.Clock,
	}
	if p.classify == nil {
		p.classify = StatusClassifier(nil)
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	return p
}

// MaxAttempts returns len(schedule)+1.
func (p *Pipeline) MaxAttempts() int {
	return len(p.schedule) + 1
}

// Timeout returns the overall deadline applied to each Execute call (0 = none).
func (p *Pipeline) Timeout() time.Duration {
	return p.timeout
}

// Execute runs op until it succeeds, fails fatally, exhausts the schedule, or the overall
// timeout elapses. The returned error wraps ErrFatal, ErrRetryExhausted or ErrTimedOut and
// the last attempt's error. When the deadline fires mid-attempt the attempt's context is
// cancelled and its eventual result is discarded.
func Execute[T any](ctx context.Context, p *Pipeline, op func(context.Context) (T, error)) (T, error) {
	var zero T
	start := p.clock.Now()
	var deadline time.Time
	if p.timeout > 0 {
		deadline = start.Add(p.timeout)
		var cancel context.CancelFunc
		ctx, cancel = clockwork.WithTimeout(ctx, p.clock, p.timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if isDone(ctx) {
			return zero, p.interrupted(ctx, attempt-1, lastErr, start)
		}
		if !deadline.IsZero() && !p.clock.Now().Before(deadline) {
			return zero, p.timedOut(ctx, attempt-1, lastErr, start)
		}

		p.emit(ctx, Event{Kind: EventAttempt, Attempt: attempt, Elapsed: p.clock.Since(start)})
		val, err := runAttempt(ctx, op)
		if err == nil {
			p.emit(ctx, Event{Kind: EventSuccess, Attempt: attempt, Elapsed: p.clock.Since(start)})
			return val, nil
		}
		if isDone(ctx) {
			return zero, p.interrupted(ctx, attempt, err, start)
		}
		lastErr = err

		if p.classify(err) != OutcomeRetryable {
			p.emit(ctx, Event{Kind: EventFatal, Attempt: attempt, Err: err, Elapsed: p.clock.Since(start)})
			return zero, fmt.Errorf("%w: %w", ErrFatal, err)
		}
		if attempt > len(p.schedule) {
			p.emit(ctx, Event{Kind: EventExhausted, Attempt: attempt, Err: err, Elapsed: p.clock.Since(start)})
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		delay := p.schedule[attempt-1]
		p.emit(ctx, Event{Kind: EventRetry, Attempt: attempt, Err: err, Delay: delay, Elapsed: p.clock.Since(start)})
		if !p.wait(ctx, delay) {
			return zero, p.interrupted(ctx, attempt, err, start)
		}
	}
}

// isDone reports whether ctx is finished without blocking. Contexts built on a fake clock
// block in Err until they are done, so Err is only read after Done has closed.
func isDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// runAttempt runs op in its own goroutine so a deadline can abandon it.
func runAttempt[T any](ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(attemptCtx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// wait sleeps d on the pipeline clock. It returns false when ctx finishes first.
func (p *Pipeline) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !isDone(ctx)
	}
	t := p.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.Chan():
		return true
	}
}

// interrupted builds the terminal error once ctx is done.
func (p *Pipeline) interrupted(ctx context.Context, attempts int, lastErr error, start time.Time) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return p.timedOut(ctx, attempts, lastErr, start)
	}
	return fmt.Errorf("resilience: fetch interrupted after %d attempts: %w", attempts, ctx.Err())
}

// timedOut reports the overall deadline. The deadline is also checked against the pipeline
// clock, so a backoff timer and the deadline expiring together still end as a timeout.
func (p *Pipeline) timedOut(ctx context.Context, attempts int, lastErr error, start time.Time) error {
	cause := lastErr
	if cause == nil {
		cause = context.DeadlineExceeded
	}
	p.emit(ctx, Event{Kind: EventTimeout, Attempt: attempts, Err: cause, Elapsed: p.clock.Since(start)})
	return fmt.Errorf("%w after %d attempts: %w", ErrTimedOut, attempts, cause)
}

func (p *Pipeline) emit(ctx context.Context, ev Event) {
	if p.observer == nil {
		return
	}
	defer func() { _ = recover() }()
	p.observer(ctx, ev)
}
