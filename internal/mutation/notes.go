package mutation

import (
	"context"
	"time"

	"github.com/mschirtzinger/notesync/internal/cache"
	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/remote"
)

// Notes coordinates note mutations.
type Notes struct {
	*core
	cache   *cache.Store[domain.Note]
	folders *cache.Store[domain.Folder]
	remote  remote.Store[domain.Note]
}

// NewNotes returns the note coordinator. folders is consulted to reject
// notes filed into unknown or pending folders.
func NewNotes(d Deps, notes *cache.Store[domain.Note], folders *cache.Store[domain.Folder], r remote.Store[domain.Note]) *Notes {
	return &Notes{core: newCore(d), cache: notes, folders: folders, remote: r}
}

func (n *Notes) key(owner string) cache.Key {
	return cache.Key{Collection: cache.CollectionNotes, Owner: owner}
}

// checkFolder rejects references to folders that are still being created,
// or that are absent from a loaded folder collection.
func (n *Notes) checkFolder(op, owner string, folderID *string) error {
	if folderID == nil {
		return nil
	}
	if domain.IsPlaceholderID(*folderID) {
		return classify.Pending(op, "folder", *folderID)
	}
	key := cache.Key{Collection: cache.CollectionFolders, Owner: owner}
	if n.folders != nil && n.folders.State(key).Loaded && !n.folders.Has(key, *folderID) {
		return classify.NotFound(op, "folder", *folderID)
	}
	return nil
}

// checkTarget rejects mutations of notes that are unknown or pending.
func (n *Notes) checkTarget(op, owner, id string) error {
	if domain.IsPlaceholderID(id) {
		if n.cache.Has(n.key(owner), id) {
			return classify.Pending(op, "note", id)
		}
		return classify.NotFound(op, "note", id)
	}
	if !n.cache.Has(n.key(owner), id) {
		return classify.NotFound(op, "note", id)
	}
	return nil
}

// CreateAsync inserts a placeholder note at the head of the collection and
// creates the note remotely. On success the placeholder is replaced in
// place by the stored note.
func (n *Notes) CreateAsync(ctx context.Context, in domain.NoteInput) *Pending[domain.Note] {
	const op = "notes.create"
	owner, err := n.owner(op)
	if err != nil {
		return rejected[domain.Note](n.reject(op, err))
	}
	if err := n.validate(op, in); err != nil {
		return rejected[domain.Note](n.reject(op, err))
	}
	if err := n.checkFolder(op, owner, in.FolderID); err != nil {
		return rejected[domain.Note](n.reject(op, err))
	}

	start := time.Now()
	draft := domain.NewNote(owner, in, n.now())
	tok, err := n.cache.ApplyOptimistic(n.key(owner), op, func(tx *cache.Tx[domain.Note]) error {
		tx.Insert(draft)
		return nil
	})
	if err != nil {
		return rejected[domain.Note](n.reject(op, err))
	}

	p := newPending(draft)
	n.background(func() {
		saved, err := call(ctx, n.core, "notes.insert", func(ctx context.Context) (domain.Note, error) {
			return n.remote.Insert(ctx, draft)
		})
		if err != nil {
			_ = n.cache.Rollback(tok)
			p.rollback(n.rolledBack(op, start, err))
			return
		}
		_, _ = n.cache.Commit(tok, draft.ID, saved)
		n.committed(op, start)
		p.commit(saved)
	})
	return p
}

// Create is the blocking form of CreateAsync.
func (n *Notes) Create(ctx context.Context, in domain.NoteInput) (domain.Note, error) {
	return n.CreateAsync(ctx, in).Wait()
}

// UpdateAsync merges patch into the cached note, recomputing its tags, and
// updates the note remotely.
func (n *Notes) UpdateAsync(ctx context.Context, id string, patch domain.NotePatch) *Pending[domain.Note] {
	const op = "notes.update"
	owner, err := n.owner(op)
	if err != nil {
		return rejected[domain.Note](n.reject(op, err))
	}
	if patch.IsEmpty() {
		return rejected[domain.Note](n.reject(op, classify.Invalid(op, errNothingToUpdate)))
	}
	if err := n.validate(op, patch); err != nil {
		return rejected[domain.Note](n.reject(op, err))
	}
	if err := n.checkTarget(op, owner, id); err != nil {
		return rejected[domain.Note](n.reject(op, err))
	}
	if !patch.DetachFolder {
		if err := n.checkFolder(op, owner, patch.FolderID); err != nil {
			return rejected[domain.Note](n.reject(op, err))
		}
	}

	start := time.Now()
	fields := patch.Patch(n.now())
	var updated domain.Note
	tok, err := n.cache.ApplyOptimistic(n.key(owner), op, func(tx *cache.Tx[domain.Note]) error {
		if !tx.Update(id, func(cur domain.Note) domain.Note {
			updated = cur.Apply(fields)
			return updated
		}) {
			return classify.NotFound(op, "note", id)
		}
		return nil
	})
	if err != nil {
		return rejected[domain.Note](n.reject(op, err))
	}

	p := newPending(updated)
	n.background(func() {
		stored, err := call(ctx, n.core, "notes.update", func(ctx context.Context) (domain.Note, error) {
			return n.remote.Update(ctx, id, owner, fields)
		})
		if err != nil {
			_ = n.cache.Rollback(tok)
			p.rollback(n.rolledBack(op, start, err))
			return
		}
		_, _ = n.cache.Reconcile(tok, stored)
		n.committed(op, start)
		p.commit(stored)
	})
	return p
}

// Update is the blocking form of UpdateAsync.
func (n *Notes) Update(ctx context.Context, id string, patch domain.NotePatch) (domain.Note, error) {
	return n.UpdateAsync(ctx, id, patch).Wait()
}

// MoveAsync files the note into folderID, or unfiles it when folderID is nil.
func (n *Notes) MoveAsync(ctx context.Context, id string, folderID *string) *Pending[domain.Note] {
	if folderID == nil {
		return n.UpdateAsync(ctx, id, domain.NotePatch{DetachFolder: true})
	}
	return n.UpdateAsync(ctx, id, domain.NotePatch{FolderID: folderID})
}

// Move is the blocking form of MoveAsync.
func (n *Notes) Move(ctx context.Context, id string, folderID *string) (domain.Note, error) {
	return n.MoveAsync(ctx, id, folderID).Wait()
}

// DeleteAsync removes the note from the cache and deletes it remotely. The
// pending value is the removed note.
func (n *Notes) DeleteAsync(ctx context.Context, id string) *Pending[domain.Note] {
	const op = "notes.delete"
	owner, err := n.owner(op)
	if err != nil {
		return rejected[domain.Note](n.reject(op, err))
	}
	if err := n.checkTarget(op, owner, id); err != nil {
		return rejected[domain.Note](n.reject(op, err))
	}

	start := time.Now()
	var removed domain.Note
	tok, err := n.cache.ApplyOptimistic(n.key(owner), op, func(tx *cache.Tx[domain.Note]) error {
		v, ok := tx.Get(id)
		if !ok {
			return classify.NotFound(op, "note", id)
		}
		removed = v
		tx.Remove(id)
		return nil
	})
	if err != nil {
		return rejected[domain.Note](n.reject(op, err))
	}

	p := newPending(removed)
	n.background(func() {
		err := callErr(ctx, n.core, "notes.delete", func(ctx context.Context) error {
			return n.remote.Delete(ctx, id, owner)
		})
		if err != nil {
			_ = n.cache.Rollback(tok)
			p.rollback(n.rolledBack(op, start, err))
			return
		}
		_ = n.cache.Settle(tok)
		n.committed(op, start)
		p.commit(removed)
	})
	return p
}

// Delete is the blocking form of DeleteAsync.
func (n *Notes) Delete(ctx context.Context, id string) error {
	_, err := n.DeleteAsync(ctx, id).Wait()
	return err
}
