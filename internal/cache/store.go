package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mschirtzinger/notesync/internal/domain"
)

// Collection names.
const (
	CollectionNotes    = "notes"
	CollectionFolders  = "folders"
	CollectionPrompts  = "prompts"
	CollectionHidden   = "hidden_prompts"
	CollectionSettings = "settings"
)

// ErrTokenResolved is returned when a token is resolved twice.
var ErrTokenResolved = errors.New("cache token already resolved")

// Key identifies one collection of one owner.
type Key struct {
	Collection string
	Owner      string
}

// String returns "collection/owner".
func (k Key) String() string {
	return k.Collection + "/" + k.Owner
}

// State describes a collection's load status.
type State struct {
	Loaded   bool      // populated from the remote store at least once
	Loading  bool      // a load is in flight
	Err      error     // last load failure, cleared by Set
	LoadedAt time.Time // time of the last successful load
	Pending  int       // unresolved optimistic mutations
}

type entry[T domain.Entity] struct {
	ids      *OrderedSet[string]
	items    map[string]T
	versions map[string]uint64
	pending  map[uint64]struct{}
	state    State
}

func newEntry[T domain.Entity]() *entry[T] {
	return &entry[T]{
		ids:      NewOrderedSet[string](),
		items:    make(map[string]T),
		versions: make(map[string]uint64),
		pending:  make(map[uint64]struct{}),
	}
}

func (e *entry[T]) snapshot() []T {
	out := make([]T, 0, e.ids.Len())
	for _, id := range e.ids.items {
		out = append(out, e.items[id])
	}
	return out
}

// Store holds the collections of one entity type.
type Store[T domain.Entity] struct {
	mu      sync.Mutex
	entries map[Key]*entry[T]
	version uint64
	tokens  uint64
	log     *OpLog
}

// NewStore returns an empty store recording changes to log. A nil log gets
// a private one.
func NewStore[T domain.Entity](log *OpLog) *Store[T] {
	if log == nil {
		log = NewOpLog(DefaultOpLogSize)
	}
	return &Store[T]{entries: make(map[Key]*entry[T]), log: log}
}

// OpLog returns the log the store records changes to.
func (s *Store[T]) OpLog() *OpLog {
	return s.log
}

// entryLocked returns the entry for key, creating it when create is set.
func (s *Store[T]) entryLocked(key Key, create bool) *entry[T] {
	e, ok := s.entries[key]
	if !ok && create {
		e = newEntry[T]()
		s.entries[key] = e
	}
	return e
}

func (s *Store[T]) bumpLocked() uint64 {
	s.version++
	return s.version
}

// Get returns a snapshot of the collection in display order and its state.
// A collection that was never touched returns nil and a zero State.
func (s *Store[T]) Get(key Key) ([]T, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key, false)
	if e == nil {
		return nil, State{}
	}
	st := e.state
	st.Pending = len(e.pending)
	return e.snapshot(), st
}

// State returns the collection's load state.
func (s *Store[T]) State(key Key) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key, false)
	if e == nil {
		return State{}
	}
	st := e.state
	st.Pending = len(e.pending)
	return st
}

// Lookup returns the entity with id.
func (s *Store[T]) Lookup(key Key, id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	e := s.entryLocked(key, false)
	if e == nil {
		return zero, false
	}
	v, ok := e.items[id]
	return v, ok
}

// Has reports whether the collection holds id.
func (s *Store[T]) Has(key Key, id string) bool {
	_, ok := s.Lookup(key, id)
	return ok
}

// Len returns the number of entities in the collection.
func (s *Store[T]) Len(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entryLocked(key, false); e != nil {
		return e.ids.Len()
	}
	return 0
}

// Keys returns the keys of every collection in the store.
func (s *Store[T]) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// MarkLoading flags the collection as being loaded.
func (s *Store[T]) MarkLoading(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key, true)
	e.state.Loading = true
}

// MarkFailed records a failed load. Cached entities are kept.
func (s *Store[T]) MarkFailed(key Key, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key, true)
	e.state.Loading = false
	e.state.Err = err
}

// Set replaces the collection with entities loaded from the remote store, in
// the given order. Placeholders of pending creates are kept at the front so
// an in-flight create is not lost when a reload lands first.
func (s *Store[T]) Set(key Key, entities []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, entities)
}

// SetIf is Set guarded by ok, which runs under the store's lock. A Discard
// racing with it either lands before ok is asked or after the Set. It
// reports whether the collection was replaced.
func (s *Store[T]) SetIf(key Key, entities []T, ok func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok() {
		return false
	}
	s.setLocked(key, entities)
	return true
}

func (s *Store[T]) setLocked(key Key, entities []T) {
	e := s.entryLocked(key, true)

	var placeholders []string
	for _, id := range e.ids.items {
		if domain.IsPlaceholderID(id) {
			placeholders = append(placeholders, id)
		}
	}

	ids := NewOrderedSet[string](placeholders...)
	items := make(map[string]T, len(entities)+len(placeholders))
	for _, id := range placeholders {
		items[id] = e.items[id]
	}
	for _, v := range entities {
		id := v.EntityID()
		if !ids.Append(id) {
			continue
		}
		items[id] = v
		e.versions[id] = s.bumpLocked()
	}
	for id := range e.items {
		if _, ok := items[id]; !ok {
			e.versions[id] = s.bumpLocked()
		}
	}

	e.ids = ids
	e.items = items
	e.state.Loaded = true
	e.state.Loading = false
	e.state.Err = nil
	e.state.LoadedAt = time.Now()
	s.log.Append(OpLoad, key, "", "")
}

// Discard drops every collection of owner. Tokens of mutations still in
// flight become no-ops.
func (s *Store[T]) Discard(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.entries {
		if k.Owner == owner {
			delete(s.entries, k)
			s.log.Append(OpDiscard, k, "", "")
			n++
		}
	}
	return n
}

// ApplyOptimistic runs transform against the collection and returns a token
// for resolving the mutation later. The change is visible to readers as soon
// as ApplyOptimistic returns. If transform fails, its writes are undone and
// the error is returned without a token.
func (s *Store[T]) ApplyOptimistic(key Key, mutation string, transform func(tx *Tx[T]) error) (*Token[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key, true)
	s.tokens++
	tok := &Token[T]{
		seq:      s.tokens,
		key:      key,
		mutation: mutation,
		entry:    e,
		touched:  make(map[string]int),
	}
	tx := &Tx[T]{store: s, entry: e, tok: tok}
	if err := transform(tx); err != nil {
		s.rollbackLocked(tok)
		return nil, err
	}
	tx.closed = true
	e.pending[tok.seq] = struct{}{}
	return tok, nil
}

// Commit resolves a create: the placeholder tempID is replaced in place by
// authoritative. If the authoritative id is already cached (a reload won the
// race), that entry is updated and the placeholder dropped, so the id never
// appears twice. It reports whether the cache changed.
func (s *Store[T]) Commit(tok *Token[T], tempID string, authoritative T) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.resolveLocked(tok)
	if err != nil || e == nil {
		return false, err
	}

	id := authoritative.EntityID()
	if !e.ids.Has(tempID) {
		return false, nil
	}
	if e.ids.Has(id) {
		e.ids.Remove(tempID)
		delete(e.items, tempID)
	} else {
		e.ids.Replace(tempID, id)
		delete(e.items, tempID)
	}
	e.items[id] = authoritative
	e.versions[tempID] = s.bumpLocked()
	e.versions[id] = s.bumpLocked()
	s.log.Append(OpCommit, tok.key, id, tok.mutation)
	return true, nil
}

// Reconcile resolves an update by storing the remote store's canonical copy,
// unless a later mutation has written the entity since. It reports whether
// the cache changed.
func (s *Store[T]) Reconcile(tok *Token[T], authoritative T) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.resolveLocked(tok)
	if err != nil || e == nil {
		return false, err
	}

	id := authoritative.EntityID()
	i, ok := tok.touched[id]
	if !ok || e.versions[id] != tok.changes[i].afterVersion || !e.ids.Has(id) {
		return false, nil
	}
	e.items[id] = authoritative
	e.versions[id] = s.bumpLocked()
	s.log.Append(OpCommit, tok.key, id, tok.mutation)
	return true, nil
}

// Settle resolves a mutation whose optimistic state is already final.
func (s *Store[T]) Settle(tok *Token[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.resolveLocked(tok)
	if err != nil || e == nil {
		return err
	}
	s.log.Append(OpCommit, tok.key, "", tok.mutation)
	return nil
}

// Rollback undoes the mutation's own changes. Ids written by a later
// mutation keep that later value.
func (s *Store[T]) Rollback(tok *Token[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok == nil {
		return nil
	}
	if tok.resolved {
		return fmt.Errorf("%w: %s", ErrTokenResolved, tok.mutation)
	}
	s.rollbackLocked(tok)
	return nil
}

// resolveLocked marks tok resolved and returns its entry, or nil when the
// entry was discarded or replaced since the mutation started.
func (s *Store[T]) resolveLocked(tok *Token[T]) (*entry[T], error) {
	if tok == nil {
		return nil, nil
	}
	if tok.resolved {
		return nil, fmt.Errorf("%w: %s", ErrTokenResolved, tok.mutation)
	}
	tok.resolved = true
	delete(tok.entry.pending, tok.seq)
	if s.entries[tok.key] != tok.entry {
		return nil, nil
	}
	return tok.entry, nil
}

func (s *Store[T]) rollbackLocked(tok *Token[T]) {
	tok.resolved = true
	e := tok.entry
	delete(e.pending, tok.seq)
	if s.entries[tok.key] != e {
		return
	}

	for i := len(tok.changes) - 1; i >= 0; i-- {
		ch := tok.changes[i]
		if e.versions[ch.id] != ch.afterVersion {
			continue
		}
		if ch.hadBefore {
			if !e.ids.Has(ch.id) {
				e.ids.InsertAt(ch.beforeIndex, ch.id)
			}
			e.items[ch.id] = ch.before
		} else {
			e.ids.Remove(ch.id)
			delete(e.items, ch.id)
		}
		e.versions[ch.id] = s.bumpLocked()
		s.log.Append(OpRollback, tok.key, ch.id, tok.mutation)
	}
}
