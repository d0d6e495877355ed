// Package memstore is an in-memory remote store with scriptable faults and
// latency. It backs the engine's tests, the load tester and the CLI's
// "memory" remote.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/remote"
)

// Operation names used for fault injection and call counting.
const (
	OpSelect      = "select"
	OpInsert      = "insert"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpUpdateWhere = "update_where"
)

// Store is an in-memory remote.Store.
type Store[T domain.Record[T]] struct {
	mu      sync.Mutex
	rows    map[string]T
	order   []string // insertion order, oldest first
	newID   func() string
	latency time.Duration

	faults map[string][]error
	sticky map[string]error
	inject func(op string) error
	calls  map[string]int
}

// Option configures a Store.
type Option[T domain.Record[T]] func(*Store[T])

// WithLatency delays every call by d.
func WithLatency[T domain.Record[T]](d time.Duration) Option[T] {
	return func(s *Store[T]) { s.latency = d }
}

// WithIDs replaces the id generator used for placeholder inserts.
func WithIDs[T domain.Record[T]](fn func() string) Option[T] {
	return func(s *Store[T]) { s.newID = fn }
}

// New returns an empty store.
func New[T domain.Record[T]](opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		rows:   make(map[string]T),
		newID:  uuid.NewString,
		faults: make(map[string][]error),
		sticky: make(map[string]error),
		calls:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed stores rows as-is, bypassing faults.
func (s *Store[T]) Seed(rows ...T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		id := r.EntityID()
		if _, ok := s.rows[id]; !ok {
			s.order = append(s.order, id)
		}
		s.rows[id] = r
	}
}

// FailNext makes the next len(errs) calls of op fail with errs, in order.
func (s *Store[T]) FailNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], errs...)
}

// FailAlways makes every call of op fail with err until cleared with a nil
// err.
func (s *Store[T]) FailAlways(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.sticky, op)
		return
	}
	s.sticky[op] = err
}

// SetInjector installs fn to decide the fault of every call that has no
// scripted fault. fn is called without the store's lock held. A nil fn
// removes the injector.
func (s *Store[T]) SetInjector(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inject = fn
}

// SetLatency changes the per-call delay.
func (s *Store[T]) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Calls returns how many times op was invoked, including failed calls.
func (s *Store[T]) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Get returns the stored row with id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[id]
	return v, ok
}

// Len returns the number of stored rows across owners.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// begin counts the call, waits out the latency and returns an injected
// fault, if any.
func (s *Store[T]) begin(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	latency := s.latency
	var fault error
	if q := s.faults[op]; len(q) > 0 {
		fault = q[0]
		s.faults[op] = q[1:]
	} else if err, ok := s.sticky[op]; ok {
		fault = err
	}
	inject := s.inject
	s.mu.Unlock()

	if fault == nil && inject != nil {
		fault = inject(op)
	}

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return fault
}

// Select implements remote.Store.
func (s *Store[T]) Select(ctx context.Context, ownerID string) ([]T, error) {
	if err := s.begin(ctx, OpSelect); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []T
	for i := len(s.order) - 1; i >= 0; i-- {
		if r := s.rows[s.order[i]]; r.EntityOwner() == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Insert implements remote.Store.
func (s *Store[T]) Insert(ctx context.Context, entity T) (T, error) {
	var zero T
	if err := s.begin(ctx, OpInsert); err != nil {
		return zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := entity.EntityID()
	if id == "" || domain.IsPlaceholderID(id) {
		id = s.newID()
		entity = entity.WithID(id)
	}
	if _, exists := s.rows[id]; exists {
		return zero, &remote.Error{Code: remote.CodeDuplicate, Message: "duplicate key value violates unique constraint"}
	}
	s.rows[id] = entity
	s.order = append(s.order, id)
	return entity, nil
}

// Update implements remote.Store.
func (s *Store[T]) Update(ctx context.Context, id, ownerID string, patch domain.Patch) (T, error) {
	var zero T
	if err := s.begin(ctx, OpUpdate); err != nil {
		return zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.EntityOwner() != ownerID {
		return zero, remote.ErrNotFound
	}
	row = row.Apply(patch)
	s.rows[id] = row
	return row, nil
}

// Delete implements remote.Store.
func (s *Store[T]) Delete(ctx context.Context, id, ownerID string) error {
	if err := s.begin(ctx, OpDelete); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id, ownerID)
	return nil
}

func (s *Store[T]) removeLocked(id, ownerID string) bool {
	row, ok := s.rows[id]
	if !ok || row.EntityOwner() != ownerID {
		return false
	}
	delete(s.rows, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// UpdateWhere implements remote.BatchUpdater.
func (s *Store[T]) UpdateWhere(ctx context.Context, ownerID string, conds []remote.Cond, patch domain.Patch) (int, error) {
	if err := s.begin(ctx, OpUpdateWhere); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateWhereLocked(ownerID, conds, patch), nil
}

func (s *Store[T]) updateWhereLocked(ownerID string, conds []remote.Cond, patch domain.Patch) int {
	n := 0
	for _, id := range s.order {
		row := s.rows[id]
		if row.EntityOwner() != ownerID || !matches(row, conds) {
			continue
		}
		s.rows[id] = row.Apply(patch)
		n++
	}
	return n
}

func matches(e domain.Entity, conds []remote.Cond) bool {
	for _, c := range conds {
		v := deref(e.Field(c.Field))
		if c.IsNull {
			if v != nil {
				return false
			}
			continue
		}
		found := false
		for _, want := range c.Values {
			if v != nil && v == deref(want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// deref turns *string into string (or nil) so optional references compare
// by value.
func deref(v any) any {
	if p, ok := v.(*string); ok {
		if p == nil {
			return nil
		}
		return *p
	}
	return v
}

var (
	_ remote.Store[domain.Note] = (*Store[domain.Note])(nil)
	_ remote.BatchUpdater       = (*Store[domain.Note])(nil)
)
