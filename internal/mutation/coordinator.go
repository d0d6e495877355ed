package mutation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/executor"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/retry"
	"github.com/mschirtzinger/notesync/internal/session"
	"github.com/mschirtzinger/notesync/internal/telemetry"
)

// Deps are the collaborators shared by all coordinators.
type Deps struct {
	Session  *session.Session
	Retry    *retry.Controller
	Sink     notify.Sink
	Observer telemetry.Observer
	Log      zerolog.Logger
	Now      func() time.Time
}

// core holds what every coordinator needs: identity, the remote call path,
// outcome reporting and tracking of in-flight remote phases.
type core struct {
	deps     Deps
	inflight sync.WaitGroup
}

func newCore(d Deps) *core {
	if d.Retry == nil {
		d.Retry = retry.New(retry.DefaultPolicy(), nil)
	}
	if d.Sink == nil {
		d.Sink = notify.Discard()
	}
	if d.Observer == nil {
		d.Observer = telemetry.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &core{deps: d}
}

// Drain blocks until every remote phase started so far has finished.
func (c *core) Drain() {
	c.inflight.Wait()
}

func (c *core) now() time.Time {
	return c.deps.Now().UTC()
}

// owner returns the signed-in user or an auth error.
func (c *core) owner(op string) (string, error) {
	if c.deps.Session == nil {
		return "", classify.New(classify.KindAuth, op, "signed_out", "no session")
	}
	return c.deps.Session.Require(op)
}

func (c *core) validate(op string, v any) error {
	if err := domain.Validate(v); err != nil {
		return classify.Invalid(op, err)
	}
	return nil
}

// background runs the remote phase of a mutation.
func (c *core) background(fn func()) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		fn()
	}()
}

// call runs fn through the retry controller as a write.
func call[T any](ctx context.Context, c *core, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.Run(ctx, c.deps.Retry, executor.ClassWrite, op, fn)
}

func callErr(ctx context.Context, c *core, op string, fn func(ctx context.Context) error) error {
	_, err := call(ctx, c, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// committed reports a successful mutation.
func (c *core) committed(op string, start time.Time) {
	c.deps.Observer.Observe(telemetry.Event{
		Op:      "mutation." + op,
		Outcome: telemetry.OutcomeCommitted,
		Latency: time.Since(start),
		Time:    time.Now(),
	})
	c.deps.Log.Debug().Str("op", op).Msg("mutation committed")
}

// rolledBack reports a failed mutation whose cache delta was undone and
// returns the classified error.
func (c *core) rolledBack(op string, start time.Time, err error) error {
	return c.fail(op, start, telemetry.OutcomeRolledBack, err)
}

// reject reports a mutation that failed before its optimistic phase.
func (c *core) reject(op string, err error) error {
	return c.fail(op, time.Now(), telemetry.OutcomeFailed, err)
}

func (c *core) fail(op string, start time.Time, outcome telemetry.Outcome, err error) error {
	ce := c.deps.Retry.Classifier().Wrap(op, err)

	c.deps.Observer.Observe(telemetry.Event{
		Op:      "mutation." + op,
		Outcome: outcome,
		Kind:    string(ce.Kind),
		Code:    ce.Code,
		Latency: time.Since(start),
		Time:    time.Now(),
		Err:     ce,
	})
	c.deps.Log.Warn().Err(ce).Str("op", op).Str("kind", string(ce.Kind)).Str("outcome", string(outcome)).Msg("mutation failed")

	if ce.Kind == classify.KindAuth {
		if c.deps.Session != nil && c.deps.Session.SignOut(session.ReasonExpired) {
			notify.Send(c.deps.Sink, notify.LevelError, classify.KindAuth.Title(),
				"Your session has expired. Please sign in again.", nil)
		}
		return ce
	}
	notify.Send(c.deps.Sink, notify.LevelError, ce.Kind.Title(), ce.Message, nil)
	return ce
}
