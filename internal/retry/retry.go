// Package retry re-runs failed remote operations with exponential backoff.
//
// Every remote call in the engine goes through Run: each attempt is executed
// by the executor under its class timeout, failures are classified, and only
// retryable kinds are retried. This is the single place backoff is
// implemented.
package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/executor"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/telemetry"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Controller runs operations under a retry policy.
type Controller struct {
	mu     sync.RWMutex
	policy Policy

	exec       *executor.Executor
	classifier *classify.Classifier
	sink       notify.Sink
	observer   telemetry.Observer
	sleep      SleepFunc
	now        func() time.Time
	announce   bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithSink sends recovery (and optional retrying) notices to s.
func WithSink(s notify.Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithObserver reports one telemetry event per operation to o.
func WithObserver(o telemetry.Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithSleep replaces the backoff wait. Tests use it to record delays
// instead of sleeping.
func WithSleep(fn SleepFunc) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithClassifier replaces the default classification rules.
func WithClassifier(cl *classify.Classifier) Option {
	return func(c *Controller) { c.classifier = cl }
}

// WithRetryNotices emits an info notice before every retry.
func WithRetryNotices(enabled bool) Option {
	return func(c *Controller) { c.announce = enabled }
}

// New returns a controller using policy and running attempts through exec.
func New(policy Policy, exec *executor.Executor, opts ...Option) *Controller {
	c := &Controller{
		policy:     policy,
		exec:       exec,
		classifier: classify.Default(),
		sink:       notify.Discard(),
		observer:   telemetry.Nop(),
		sleep:      waitWithContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = executor.New(executor.DefaultTimeouts())
	}
	return c
}

// Policy returns the current policy.
func (c *Controller) Policy() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// SetPolicy swaps the policy used by operations started afterwards.
func (c *Controller) SetPolicy(p Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
}

// Executor returns the executor attempts run through.
func (c *Controller) Executor() *executor.Executor {
	return c.exec
}

// Classifier returns the classifier failures are sorted with.
func (c *Controller) Classifier() *classify.Classifier {
	return c.classifier
}

// Result summarizes how an operation ran.
type Result struct {
	Attempts int
	Retries  int
	Elapsed  time.Duration
}

// Run executes fn with retries and returns its value or the final classified
// error. See RunWithResult.
func Run[T any](ctx context.Context, c *Controller, class executor.Class, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, _, err := RunWithResult(ctx, c, class, op, fn)
	return v, err
}

// RunWithResult executes fn until it succeeds, fails with a non-retryable
// kind, the caller cancels, or the policy's retries are exhausted.
//
// Auth, permission and validation failures are returned after the first
// attempt with no delay. A success after at least one retry sends a
// "Recovered" notice; a first-try success sends nothing. Returned errors are
// always *classify.Error.
func RunWithResult[T any](ctx context.Context, c *Controller, class executor.Class, op string, fn func(ctx context.Context) (T, error)) (T, Result, error) {
	var zero T
	policy := c.Policy()
	start := c.now()

	for attempt := 0; ; attempt++ {
		v, err := executor.Run(ctx, c.exec, class, op, fn)
		res := Result{Attempts: attempt + 1, Retries: attempt, Elapsed: c.now().Sub(start)}

		if err == nil {
			outcome := telemetry.OutcomeSuccess
			if attempt > 0 {
				outcome = telemetry.OutcomeRecovered
				notify.Send(c.sink, notify.LevelSuccess, "Recovered", recoveryMessage(attempt), nil)
			}
			c.emit(op, outcome, res, nil)
			return v, res, nil
		}

		ce := c.classifier.Wrap(op, err)
		if !ce.Retryable() || executor.IsCanceled(ce) || ctx.Err() != nil || attempt >= policy.MaxRetries {
			c.emit(op, telemetry.OutcomeFailed, res, ce)
			return zero, res, ce
		}

		delay := policy.Delay(attempt)
		if c.announce {
			notify.Send(c.sink, notify.LevelInfo, "Retrying…",
				fmt.Sprintf("%s failed (%s), retry %d of %d in %s", op, ce.Kind, attempt+1, policy.MaxRetries, delay), nil)
		}
		if err := c.sleep(ctx, delay); err != nil {
			ce := classify.Wrap(op, fmt.Errorf("%w: %w", classify.ErrCanceled, err))
			ce.Code = "canceled"
			c.emit(op, telemetry.OutcomeFailed, res, ce)
			return zero, res, ce
		}
	}
}

func (c *Controller) emit(op string, outcome telemetry.Outcome, res Result, ce *classify.Error) {
	e := telemetry.Event{
		Op:      op,
		Outcome: outcome,
		Latency: res.Elapsed,
		Retries: res.Retries,
		Time:    c.now(),
	}
	if ce != nil {
		e.Kind = string(ce.Kind)
		e.Code = ce.Code
		e.Err = ce
		if ce.Code == "timeout" && res.Retries == 0 {
			e.Outcome = telemetry.OutcomeTimeout
		}
	}
	c.observer.Observe(e)
}

func recoveryMessage(retries int) string {
	if retries == 1 {
		return "succeeded after 1 retry"
	}
	return fmt.Sprintf("succeeded after %d retries", retries)
}

// waitWithContext sleeps for d unless ctx is done first.
func waitWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
