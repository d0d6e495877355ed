package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/mschirtzinger/notesync/internal/cache"
	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/executor"
	"github.com/mschirtzinger/notesync/internal/remote"
	"github.com/mschirtzinger/notesync/internal/retry"
)

// FolderConfig holds the collaborators of the folder rules.
type FolderConfig struct {
	Notes         *cache.Store[domain.Note]
	Folders       *cache.Store[domain.Folder]
	RemoteNotes   remote.Store[domain.Note]
	RemoteFolders remote.Store[domain.Folder]
	Retry         *retry.Controller
	Journal       *Journal // shared undo journal; created when nil
}

// NewFolderRules returns the delete and restore rules for folders. They
// share cfg.Journal so a delete can be undone.
func NewFolderRules(cfg FolderConfig) (*FolderDelete, *FolderRestore) {
	if cfg.Journal == nil {
		cfg.Journal = NewJournal()
	}
	return &FolderDelete{cfg: cfg}, &FolderRestore{cfg: cfg}
}

func keys(owner string) (folders, notes cache.Key) {
	return cache.Key{Collection: cache.CollectionFolders, Owner: owner},
		cache.Key{Collection: cache.CollectionNotes, Owner: owner}
}

func detachPatch(now time.Time) domain.Patch {
	return domain.Patch{domain.FieldFolderID: nil, domain.FieldUpdatedAt: now}
}

func run(ctx context.Context, rc *retry.Controller, op string, fn func(ctx context.Context) error) error {
	_, err := retry.Run(ctx, rc, executor.ClassWrite, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// FolderDelete removes a folder and unfiles every note that referenced it,
// in the cache and in the remote store.
type FolderDelete struct {
	cfg FolderConfig
}

// Name implements Rule.
func (r *FolderDelete) Name() string { return "folder-delete-detach-notes" }

// Journal returns the undo journal the rule records into.
func (r *FolderDelete) Journal() *Journal { return r.cfg.Journal }

// Begin implements Rule. The folder is removed from the cache and its notes
// get a nil FolderID; Change.Affected lists those notes.
func (r *FolderDelete) Begin(owner, id string, now time.Time) (*Change, error) {
	const op = "folders.delete"
	if domain.IsPlaceholderID(id) {
		return nil, classify.Pending(op, "folder", id)
	}
	fkey, nkey := keys(owner)

	var folder domain.Folder
	folderTok, err := r.cfg.Folders.ApplyOptimistic(fkey, op, func(tx *cache.Tx[domain.Folder]) error {
		f, ok := tx.Get(id)
		if !ok {
			return classify.NotFound(op, "folder", id)
		}
		folder = f
		tx.Remove(id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	patch := detachPatch(now)
	var affected []string
	notesTok, err := r.cfg.Notes.ApplyOptimistic(nkey, op, func(tx *cache.Tx[domain.Note]) error {
		affected = tx.UpdateWhere(
			func(n domain.Note) bool { return n.InFolder(id) },
			func(n domain.Note) domain.Note { return n.Apply(patch) },
		)
		return nil
	})
	if err != nil {
		_ = r.cfg.Folders.Rollback(folderTok)
		return nil, err
	}

	return &Change{
		Rule:     r.Name(),
		EntityID: id,
		Affected: affected,
		remote: func(ctx context.Context) error {
			return r.remote(ctx, owner, id, affected, patch)
		},
		commit: func() {
			_ = r.cfg.Notes.Settle(notesTok)
			_ = r.cfg.Folders.Settle(folderTok)
			r.cfg.Journal.record(owner, folder, affected)
		},
		rollback: func() {
			_ = r.cfg.Notes.Rollback(notesTok)
			_ = r.cfg.Folders.Rollback(folderTok)
		},
	}, nil
}

// remote prefers a transactional cascade, then a batched update followed by
// the delete, and finally one update per affected note. When the folder
// delete fails after notes were detached, the detached notes are filed
// back so the store matches the rolled back cache. A failed re-file shows
// up in telemetry as notes.reattach_folder; the delete's error is returned.
func (r *FolderDelete) remote(ctx context.Context, owner, id string, affected []string, patch domain.Patch) error {
	const op = "folders.delete"
	rc := r.cfg.Retry

	if cd, ok := r.cfg.RemoteFolders.(remote.FolderCascadeDeleter); ok {
		return run(ctx, rc, op, func(ctx context.Context) error {
			_, err := cd.DeleteFolderCascade(ctx, id, owner)
			return err
		})
	}

	refile := domain.Patch{domain.FieldFolderID: id, domain.FieldUpdatedAt: patch[domain.FieldUpdatedAt]}
	var detached []string
	undo := func() {
		if len(detached) > 0 {
			_ = reattach(context.WithoutCancel(ctx), rc, r.cfg.RemoteNotes, owner, detached, refile)
		}
	}

	if bu, ok := r.cfg.RemoteNotes.(remote.BatchUpdater); ok {
		err := run(ctx, rc, "notes.detach_folder", func(ctx context.Context) error {
			_, err := bu.UpdateWhere(ctx, owner, []remote.Cond{remote.Eq(domain.FieldFolderID, id)}, patch)
			return err
		})
		if err != nil {
			return err
		}
		detached = affected
	} else {
		for _, noteID := range affected {
			err := run(ctx, rc, "notes.detach_folder", func(ctx context.Context) error {
				_, err := r.cfg.RemoteNotes.Update(ctx, noteID, owner, patch)
				if remote.IsNotFound(err) {
					return nil
				}
				return err
			})
			if err != nil {
				undo()
				return err
			}
			detached = append(detached, noteID)
		}
	}

	err := run(ctx, rc, op, func(ctx context.Context) error {
		return r.cfg.RemoteFolders.Delete(ctx, id, owner)
	})
	if err != nil {
		undo()
	}
	return err
}

// reattach files noteIDs back into the folder named by patch, skipping
// notes that were filed elsewhere in the meantime.
func reattach(ctx context.Context, rc *retry.Controller, notes remote.Store[domain.Note], owner string, noteIDs []string, patch domain.Patch) error {
	const op = "notes.reattach_folder"
	if bu, ok := notes.(remote.BatchUpdater); ok {
		return run(ctx, rc, op, func(ctx context.Context) error {
			conds := []remote.Cond{remote.In(domain.FieldID, noteIDs...), remote.IsNull(domain.FieldFolderID)}
			_, err := bu.UpdateWhere(ctx, owner, conds, patch)
			return err
		})
	}
	for _, noteID := range noteIDs {
		err := run(ctx, rc, op, func(ctx context.Context) error {
			_, err := notes.Update(ctx, noteID, owner, patch)
			if remote.IsNotFound(err) {
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// FolderRestore undoes a FolderDelete: the folder is re-created with its
// original id and the notes it lost are re-filed if they are still
// unfiled.
type FolderRestore struct {
	cfg FolderConfig
}

// Name implements Rule.
func (r *FolderRestore) Name() string { return "folder-restore-reattach-notes" }

// Begin implements Rule. Restoring a folder that was already restored, or
// that is back in the cache, is a no-op success without a remote call. A
// restore of a folder whose previous restore is still in flight is
// rejected rather than waited for.
func (r *FolderRestore) Begin(owner, id string, now time.Time) (*Change, error) {
	const op = "folders.restore"
	rec, state := r.cfg.Journal.claim(owner, id)
	switch state {
	case claimMissing:
		return nil, classify.NotFound(op, "deleted folder", id)
	case claimBusy:
		return nil, &classify.Error{
			Kind:    classify.KindValidation,
			Op:      op,
			Code:    "pending",
			Message: fmt.Sprintf("folder %q is already being restored", id),
			Err:     classify.ErrPending,
		}
	case claimDone:
		return &Change{Rule: r.Name(), EntityID: id, Noop: true}, nil
	}

	journal := r.cfg.Journal
	fkey, nkey := keys(owner)
	if r.cfg.Folders.Has(fkey, id) {
		journal.finish(rec, true)
		return &Change{Rule: r.Name(), EntityID: id, Noop: true}, nil
	}

	folder := rec.folder
	lost := make(map[string]bool, len(rec.affected))
	for _, nid := range rec.affected {
		lost[nid] = true
	}

	folderTok, err := r.cfg.Folders.ApplyOptimistic(fkey, op, func(tx *cache.Tx[domain.Folder]) error {
		if _, ok := tx.Get(id); !ok {
			tx.Insert(folder)
		}
		return nil
	})
	if err != nil {
		journal.finish(rec, false)
		return nil, err
	}

	patch := domain.Patch{domain.FieldFolderID: id, domain.FieldUpdatedAt: now}
	var affected []string
	notesTok, err := r.cfg.Notes.ApplyOptimistic(nkey, op, func(tx *cache.Tx[domain.Note]) error {
		affected = tx.UpdateWhere(
			func(n domain.Note) bool { return lost[n.ID] && n.FolderID == nil },
			func(n domain.Note) domain.Note { return n.Apply(patch) },
		)
		return nil
	})
	if err != nil {
		_ = r.cfg.Folders.Rollback(folderTok)
		journal.finish(rec, false)
		return nil, err
	}

	return &Change{
		Rule:     r.Name(),
		EntityID: id,
		Affected: affected,
		remote: func(ctx context.Context) error {
			return r.remote(ctx, owner, folder, rec.affected, patch)
		},
		commit: func() {
			_ = r.cfg.Notes.Settle(notesTok)
			_ = r.cfg.Folders.Settle(folderTok)
			journal.finish(rec, true)
		},
		rollback: func() {
			_ = r.cfg.Notes.Rollback(notesTok)
			_ = r.cfg.Folders.Rollback(folderTok)
			journal.finish(rec, false)
		},
	}, nil
}

func (r *FolderRestore) remote(ctx context.Context, owner string, folder domain.Folder, noteIDs []string, patch domain.Patch) error {
	rc := r.cfg.Retry

	err := run(ctx, rc, "folders.restore", func(ctx context.Context) error {
		_, err := r.cfg.RemoteFolders.Insert(ctx, folder)
		if remote.IsDuplicate(err) {
			return nil
		}
		return err
	})
	if err != nil || len(noteIDs) == 0 {
		return err
	}
	return reattach(ctx, rc, r.cfg.RemoteNotes, owner, noteIDs, patch)
}
