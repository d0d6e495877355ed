// Package notify delivers user-facing notices about mutation outcomes.
//
// The engine never renders anything itself. It hands a Notification to a
// Sink, and the host decides how to show it: a terminal line, a toast pushed
// over a websocket, or a recorded entry in tests.
package notify

import (
	"context"
	"sync"
	"time"
)

// Level is the severity of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Action is an optional follow-up the user can trigger from a notification,
// such as undoing a folder deletion.
type Action struct {
	Label string
	Run   func(ctx context.Context) error
}

// Notification is a single notice.
type Notification struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message,omitempty"`
	Action  *Action   `json:"-"`
	Time    time.Time `json:"time"`
}

// Sink receives notifications. Implementations must be safe for concurrent
// use and must not block for long.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification)

// Notify implements Sink.
func (f SinkFunc) Notify(n Notification) { f(n) }

// Discard returns a sink that drops every notification.
func Discard() Sink {
	return SinkFunc(func(Notification) {})
}

// Multi fans notifications out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	list := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			list = append(list, s)
		}
	}
	return SinkFunc(func(n Notification) {
		for _, s := range list {
			s.Notify(n)
		}
	})
}

// Send builds a notification and hands it to s. A nil sink is ignored.
func Send(s Sink, level Level, title, message string, action *Action) {
	if s == nil {
		return
	}
	s.Notify(Notification{
		Level:   level,
		Title:   title,
		Message: message,
		Action:  action,
		Time:    time.Now(),
	})
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Sink.
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// ByLevel returns the recorded notifications of the given level.
func (r *Recorder) ByLevel(level Level) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.items {
		if n.Level == level {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Reset drops the recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
