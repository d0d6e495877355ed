package cache

import (
	"github.com/mschirtzinger/notesync/internal/domain"
)

type change[T any] struct {
	id           string
	before       T
	hadBefore    bool
	beforeIndex  int
	afterVersion uint64
}

// Token identifies one optimistic mutation and carries what is needed to
// resolve it. Tokens are resolved exactly once.
type Token[T domain.Entity] struct {
	seq      uint64
	key      Key
	mutation string
	entry    *entry[T]
	changes  []change[T]
	touched  map[string]int
	resolved bool
}

// Key returns the collection the mutation changed.
func (t *Token[T]) Key() Key { return t.key }

// Mutation returns the mutation name.
func (t *Token[T]) Mutation() string { return t.mutation }

// Affected returns the ids the mutation touched, in first-touch order.
func (t *Token[T]) Affected() []string {
	ids := make([]string, len(t.changes))
	for i, ch := range t.changes {
		ids[i] = ch.id
	}
	return ids
}

// Tx is the write view handed to an ApplyOptimistic transform. It is only
// valid during the transform.
type Tx[T domain.Entity] struct {
	store  *Store[T]
	entry  *entry[T]
	tok    *Token[T]
	closed bool
}

// Get returns the entity with id.
func (tx *Tx[T]) Get(id string) (T, bool) {
	v, ok := tx.entry.items[id]
	return v, ok
}

// List returns the collection in display order.
func (tx *Tx[T]) List() []T {
	return tx.entry.snapshot()
}

// Insert adds v at the front of the collection, or replaces it in place if
// its id is already present.
func (tx *Tx[T]) Insert(v T) {
	tx.mustBeOpen()
	id := v.EntityID()
	tx.record(id)
	if !tx.entry.ids.Has(id) {
		tx.entry.ids.Prepend(id)
	}
	tx.entry.items[id] = v
	tx.written(id, OpInsert)
}

// Put replaces an existing entity in place. It returns false if the id is
// not present.
func (tx *Tx[T]) Put(v T) bool {
	tx.mustBeOpen()
	id := v.EntityID()
	if !tx.entry.ids.Has(id) {
		return false
	}
	tx.record(id)
	tx.entry.items[id] = v
	tx.written(id, OpUpdate)
	return true
}

// Update replaces the entity with id by fn's result. It returns false if the
// id is not present.
func (tx *Tx[T]) Update(id string, fn func(T) T) bool {
	v, ok := tx.Get(id)
	if !ok {
		return false
	}
	return tx.Put(fn(v))
}

// UpdateWhere applies fn to every entity matching pred and returns the ids
// it changed, in display order.
func (tx *Tx[T]) UpdateWhere(pred func(T) bool, fn func(T) T) []string {
	var changed []string
	for _, id := range tx.entry.ids.Items() {
		v := tx.entry.items[id]
		if pred(v) {
			tx.Put(fn(v))
			changed = append(changed, id)
		}
	}
	return changed
}

// Remove deletes the entity with id. It returns false if it was not present.
func (tx *Tx[T]) Remove(id string) bool {
	tx.mustBeOpen()
	if !tx.entry.ids.Has(id) {
		return false
	}
	tx.record(id)
	tx.entry.ids.Remove(id)
	delete(tx.entry.items, id)
	tx.written(id, OpRemove)
	return true
}

// record saves the before-image of id the first time the mutation touches it.
func (tx *Tx[T]) record(id string) {
	if _, ok := tx.tok.touched[id]; ok {
		return
	}
	before, had := tx.entry.items[id]
	tx.tok.touched[id] = len(tx.tok.changes)
	tx.tok.changes = append(tx.tok.changes, change[T]{
		id:          id,
		before:      before,
		hadBefore:   had,
		beforeIndex: tx.entry.ids.IndexOf(id),
	})
}

func (tx *Tx[T]) written(id string, kind OpKind) {
	v := tx.store.bumpLocked()
	tx.entry.versions[id] = v
	tx.tok.changes[tx.tok.touched[id]].afterVersion = v
	tx.store.log.Append(kind, tx.tok.key, id, tx.tok.mutation)
}

func (tx *Tx[T]) mustBeOpen() {
	if tx.closed {
		panic("cache: Tx used after ApplyOptimistic returned")
	}
}
