package mutation

import (
	"sync"
)

// State is the lifecycle position of a mutation.
type State int

const (
	StateIdle State = iota
	StateOptimisticApplied
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOptimisticApplied:
		return "optimistic_applied"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Pending is a mutation whose optimistic phase has run.
type Pending[T any] struct {
	mu         sync.Mutex
	state      State
	optimistic T
	value      T
	err        error
	done       chan struct{}
}

func newPending[T any](optimistic T) *Pending[T] {
	return &Pending[T]{
		state:      StateOptimisticApplied,
		optimistic: optimistic,
		done:       make(chan struct{}),
	}
}

// rejected returns a mutation that failed before touching the cache.
func rejected[T any](err error) *Pending[T] {
	p := &Pending[T]{state: StateIdle, err: err, done: make(chan struct{})}
	close(p.done)
	return p
}

// settled returns a mutation that needed no remote call.
func settled[T any](v T) *Pending[T] {
	p := &Pending[T]{state: StateCommitted, optimistic: v, value: v, done: make(chan struct{})}
	close(p.done)
	return p
}

func (p *Pending[T]) commit(v T) {
	p.mu.Lock()
	p.state = StateCommitted
	p.value = v
	p.mu.Unlock()
	close(p.done)
}

func (p *Pending[T]) rollback(err error) {
	p.mu.Lock()
	p.state = StateRolledBack
	p.err = err
	p.mu.Unlock()
	close(p.done)
}

// State returns the current lifecycle state.
func (p *Pending[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Optimistic returns the value applied to the cache in the optimistic
// phase. For creates it carries the placeholder id.
func (p *Pending[T]) Optimistic() T {
	return p.optimistic
}

// Done is closed when the mutation has committed, rolled back or been
// rejected.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the mutation finishes and returns the authoritative
// value or the classified error.
func (p *Pending[T]) Wait() (T, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}
