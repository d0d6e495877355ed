// Package executor runs remote operations under a deadline.
//
// It is the only place in the engine that imposes timeouts. Every attempt of
// a remote call is raced against a per-class timer; the operation receives a
// context that is cancelled when the timer fires, so well-behaved adapters
// stop their in-flight work, and late results are discarded.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/mschirtzinger/notesync/internal/classify"
)

// Class groups operations that share a timeout.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
	ClassAI    Class = "ai"
)

// Timeouts holds the per-class deadlines. A zero value disables the timeout
// for that class.
type Timeouts struct {
	Read  time.Duration `mapstructure:"read"`
	Write time.Duration `mapstructure:"write"`
	AI    time.Duration `mapstructure:"ai"`
}

// DefaultTimeouts returns the deadlines used when none are configured.
// AI generation is given far longer than store reads and writes.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Read:  10 * time.Second,
		Write: 15 * time.Second,
		AI:    60 * time.Second,
	}
}

// For returns the timeout of class c.
func (t Timeouts) For(c Class) time.Duration {
	switch c {
	case ClassRead:
		return t.Read
	case ClassWrite:
		return t.Write
	case ClassAI:
		return t.AI
	}
	return t.Write
}

// Executor applies Timeouts to operations.
type Executor struct {
	timeouts Timeouts
}

// New returns an executor using timeouts.
func New(timeouts Timeouts) *Executor {
	return &Executor{timeouts: timeouts}
}

// Timeouts returns the executor's deadlines.
func (e *Executor) Timeouts() Timeouts {
	return e.timeouts
}

type result[T any] struct {
	val T
	err error
}

// Run executes fn once with the timeout of class.
//
// fn receives a context derived from ctx that is cancelled when the timeout
// fires or Run returns. On timeout Run returns a network error with code
// "timeout" without waiting for fn; its eventual result is dropped. When ctx
// itself is cancelled Run returns a network error with code "canceled".
func Run[T any](ctx context.Context, e *Executor, class Class, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, canceled(op, err)
	}

	timeout := e.timeouts.For(class)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so the goroutine can always deliver and exit after a timeout.
	done := make(chan result[T], 1)
	go func() {
		v, err := fn(runCtx)
		done <- result[T]{val: v, err: err}
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			return zero, canceled(op, ctx.Err())
		}
		return r.val, r.err
	case <-timer:
		return zero, &classify.Error{
			Kind:    classify.KindNetwork,
			Op:      op,
			Code:    "timeout",
			Message: fmt.Sprintf("timed out after %s", timeout),
			Err:     classify.ErrTimeout,
		}
	case <-ctx.Done():
		return zero, canceled(op, ctx.Err())
	}
}

func canceled(op string, cause error) error {
	return &classify.Error{
		Kind:    classify.KindNetwork,
		Op:      op,
		Code:    "canceled",
		Message: "canceled: " + cause.Error(),
		Err:     fmt.Errorf("%w: %w", classify.ErrCanceled, cause),
	}
}

// IsCanceled reports whether err was produced by caller cancellation rather
// than a timeout or a remote failure.
func IsCanceled(err error) bool {
	ce, ok := classify.As(err)
	return ok && ce.Code == "canceled"
}
