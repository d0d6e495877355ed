// Package telemetry defines the structured events the engine emits for every
// remote operation and mutation, and observers that consume them.
package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Outcome is how an operation or mutation ended.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"     // first attempt succeeded
	OutcomeRecovered  Outcome = "recovered"   // succeeded after at least one retry
	OutcomeFailed     Outcome = "failed"      // gave up
	OutcomeTimeout    Outcome = "timeout"     // single attempt hit its deadline
	OutcomeCommitted  Outcome = "committed"   // mutation reconciled with the store
	OutcomeRolledBack Outcome = "rolled_back" // mutation undone locally
)

// Event describes one finished operation.
type Event struct {
	Op      string        // e.g. "notes.insert", "mutation.notes.create"
	Outcome Outcome
	Kind    string        // failure kind, empty on success
	Code    string        // failure code, empty when unknown
	Latency time.Duration // wall time including retries
	Retries int           // attempts beyond the first
	Time    time.Time     // completion time
	Err     error         // final error, nil on success
}

// Observer consumes events. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

// Nop returns an observer that drops every event.
func Nop() Observer {
	return ObserverFunc(func(Event) {})
}

// Multi fans events out to every non-nil observer in order.
func Multi(observers ...Observer) Observer {
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(e Event) {
		for _, o := range list {
			o.Observe(e)
		}
	})
}

// LogObserver writes events to a zerolog logger. Failures and rollbacks log
// at warn, recoveries at info, everything else at debug.
type LogObserver struct {
	log zerolog.Logger
}

// NewLogObserver returns an observer logging through log.
func NewLogObserver(log zerolog.Logger) *LogObserver {
	return &LogObserver{log: log}
}

// Observe implements Observer.
func (o *LogObserver) Observe(e Event) {
	var ev *zerolog.Event
	switch e.Outcome {
	case OutcomeFailed, OutcomeRolledBack, OutcomeTimeout:
		ev = o.log.Warn()
	case OutcomeRecovered:
		ev = o.log.Info()
	default:
		ev = o.log.Debug()
	}
	ev = ev.Str("op", e.Op).
		Str("outcome", string(e.Outcome)).
		Dur("latency", e.Latency).
		Int("retries", e.Retries)
	if e.Kind != "" {
		ev = ev.Str("kind", e.Kind)
	}
	if e.Code != "" {
		ev = ev.Str("code", e.Code)
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}
	ev.Msg("operation finished")
}

// Recorder keeps every event in memory. It backs tests and the status
// command.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Observe implements Observer.
func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// ByOp returns the recorded events for op.
func (r *Recorder) ByOp(op string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Op == op {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
