package mutation

import (
	"context"
	"fmt"
	"time"

	"github.com/mschirtzinger/notesync/internal/cache"
	"github.com/mschirtzinger/notesync/internal/cascade"
	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/remote"
)

// FolderChange is the result of deleting or restoring a folder.
type FolderChange struct {
	FolderID string
	Notes    []string // notes unfiled by a delete, or re-filed by a restore
	Noop     bool     // a restore that found nothing left to do
}

// Folders coordinates folder mutations. Deletes and restores run through the
// cascade rules registered for folders.
type Folders struct {
	*core
	cache  *cache.Store[domain.Folder]
	remote remote.Store[domain.Folder]
	rules  *cascade.Registry
}

// NewFolders returns the folder coordinator.
func NewFolders(d Deps, folders *cache.Store[domain.Folder], r remote.Store[domain.Folder], rules *cascade.Registry) *Folders {
	return &Folders{core: newCore(d), cache: folders, remote: r, rules: rules}
}

func (f *Folders) key(owner string) cache.Key {
	return cache.Key{Collection: cache.CollectionFolders, Owner: owner}
}

func (f *Folders) checkTarget(op, owner, id string) error {
	if domain.IsPlaceholderID(id) {
		if f.cache.Has(f.key(owner), id) {
			return classify.Pending(op, "folder", id)
		}
		return classify.NotFound(op, "folder", id)
	}
	if !f.cache.Has(f.key(owner), id) {
		return classify.NotFound(op, "folder", id)
	}
	return nil
}

// CreateAsync inserts a placeholder folder and creates it remotely.
func (f *Folders) CreateAsync(ctx context.Context, in domain.FolderInput) *Pending[domain.Folder] {
	const op = "folders.create"
	owner, err := f.owner(op)
	if err != nil {
		return rejected[domain.Folder](f.reject(op, err))
	}
	if err := f.validate(op, in); err != nil {
		return rejected[domain.Folder](f.reject(op, err))
	}

	start := time.Now()
	draft := domain.NewFolder(owner, in, f.now())
	tok, err := f.cache.ApplyOptimistic(f.key(owner), op, func(tx *cache.Tx[domain.Folder]) error {
		tx.Insert(draft)
		return nil
	})
	if err != nil {
		return rejected[domain.Folder](f.reject(op, err))
	}

	p := newPending(draft)
	f.background(func() {
		saved, err := call(ctx, f.core, "folders.insert", func(ctx context.Context) (domain.Folder, error) {
			return f.remote.Insert(ctx, draft)
		})
		if err != nil {
			_ = f.cache.Rollback(tok)
			p.rollback(f.rolledBack(op, start, err))
			return
		}
		_, _ = f.cache.Commit(tok, draft.ID, saved)
		f.committed(op, start)
		p.commit(saved)
	})
	return p
}

// Create is the blocking form of CreateAsync.
func (f *Folders) Create(ctx context.Context, in domain.FolderInput) (domain.Folder, error) {
	return f.CreateAsync(ctx, in).Wait()
}

// UpdateAsync renames or recolors a folder.
func (f *Folders) UpdateAsync(ctx context.Context, id string, patch domain.FolderPatch) *Pending[domain.Folder] {
	const op = "folders.update"
	owner, err := f.owner(op)
	if err != nil {
		return rejected[domain.Folder](f.reject(op, err))
	}
	if patch.IsEmpty() {
		return rejected[domain.Folder](f.reject(op, classify.Invalid(op, errNothingToUpdate)))
	}
	if err := f.validate(op, patch); err != nil {
		return rejected[domain.Folder](f.reject(op, err))
	}
	if err := f.checkTarget(op, owner, id); err != nil {
		return rejected[domain.Folder](f.reject(op, err))
	}

	start := time.Now()
	fields := patch.Patch()
	var updated domain.Folder
	tok, err := f.cache.ApplyOptimistic(f.key(owner), op, func(tx *cache.Tx[domain.Folder]) error {
		if !tx.Update(id, func(cur domain.Folder) domain.Folder {
			updated = cur.Apply(fields)
			return updated
		}) {
			return classify.NotFound(op, "folder", id)
		}
		return nil
	})
	if err != nil {
		return rejected[domain.Folder](f.reject(op, err))
	}

	p := newPending(updated)
	f.background(func() {
		stored, err := call(ctx, f.core, "folders.update", func(ctx context.Context) (domain.Folder, error) {
			return f.remote.Update(ctx, id, owner, fields)
		})
		if err != nil {
			_ = f.cache.Rollback(tok)
			p.rollback(f.rolledBack(op, start, err))
			return
		}
		_, _ = f.cache.Reconcile(tok, stored)
		f.committed(op, start)
		p.commit(stored)
	})
	return p
}

// Update is the blocking form of UpdateAsync.
func (f *Folders) Update(ctx context.Context, id string, patch domain.FolderPatch) (domain.Folder, error) {
	return f.UpdateAsync(ctx, id, patch).Wait()
}

// Rename changes a folder's name.
func (f *Folders) Rename(ctx context.Context, id, name string) (domain.Folder, error) {
	return f.Update(ctx, id, domain.FolderPatch{Name: &name})
}

// DeleteAsync removes the folder and unfiles its notes, locally and
// remotely, as one logical change. The success notice carries an "Undo"
// action that restores the folder.
func (f *Folders) DeleteAsync(ctx context.Context, id string) *Pending[FolderChange] {
	const op = "folders.delete"
	return f.runRule(ctx, op, id, cascade.EventDelete, func(ch *cascade.Change) {
		var msg string
		switch n := len(ch.Affected); {
		case n == 1:
			msg = "1 note moved to Unfiled."
		case n > 1:
			msg = fmt.Sprintf("%d notes moved to Unfiled.", n)
		}
		notify.Send(f.deps.Sink, notify.LevelSuccess, "Folder deleted", msg, &notify.Action{
			Label: "Undo",
			Run: func(ctx context.Context) error {
				_, err := f.Restore(ctx, id)
				return err
			},
		})
	})
}

// Delete is the blocking form of DeleteAsync.
func (f *Folders) Delete(ctx context.Context, id string) (FolderChange, error) {
	return f.DeleteAsync(ctx, id).Wait()
}

// RestoreAsync undoes a folder delete. Restoring twice, or restoring a
// folder that exists again, succeeds without changes.
func (f *Folders) RestoreAsync(ctx context.Context, id string) *Pending[FolderChange] {
	const op = "folders.restore"
	return f.runRule(ctx, op, id, cascade.EventRestore, func(ch *cascade.Change) {
		notify.Send(f.deps.Sink, notify.LevelSuccess, "Folder restored", "", nil)
	})
}

// Restore is the blocking form of RestoreAsync.
func (f *Folders) Restore(ctx context.Context, id string) (FolderChange, error) {
	return f.RestoreAsync(ctx, id).Wait()
}

func (f *Folders) runRule(ctx context.Context, op, id string, event cascade.Event, onCommit func(*cascade.Change)) *Pending[FolderChange] {
	owner, err := f.owner(op)
	if err != nil {
		return rejected[FolderChange](f.reject(op, err))
	}
	rule, ok := f.rules.Lookup(cache.CollectionFolders, event)
	if !ok {
		return rejected[FolderChange](f.reject(op, classify.New(classify.KindUnknown, op, "no_rule", "no folder "+string(event)+" rule registered")))
	}

	start := time.Now()
	ch, err := rule.Begin(owner, id, f.now())
	if err != nil {
		return rejected[FolderChange](f.reject(op, err))
	}
	change := FolderChange{FolderID: id, Notes: ch.Affected, Noop: ch.Noop}
	if ch.Noop {
		f.committed(op, start)
		return settled(change)
	}

	p := newPending(change)
	f.background(func() {
		if err := ch.Remote(ctx); err != nil {
			ch.Rollback()
			p.rollback(f.rolledBack(op, start, err))
			return
		}
		ch.Commit()
		f.committed(op, start)
		onCommit(ch)
		p.commit(change)
	})
	return p
}
