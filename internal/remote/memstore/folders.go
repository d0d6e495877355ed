package memstore

import (
	"context"
	"time"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/remote"
)

// Folders is a folder store that deletes a folder and unfiles its notes in
// one step, the way a database transaction would.
type Folders struct {
	*Store[domain.Folder]
	notes *Store[domain.Note]
	now   func() time.Time
}

// NewFolders returns a cascading folder store over folders and notes.
func NewFolders(folders *Store[domain.Folder], notes *Store[domain.Note]) *Folders {
	return &Folders{Store: folders, notes: notes, now: time.Now}
}

// DeleteFolderCascade implements remote.FolderCascadeDeleter. Faults and
// latency are those of the folder store's delete.
func (f *Folders) DeleteFolderCascade(ctx context.Context, folderID, ownerID string) (int, error) {
	if err := f.begin(ctx, OpDelete); err != nil {
		return 0, err
	}

	// Lock order is folders, then notes.
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes.mu.Lock()
	defer f.notes.mu.Unlock()

	detached := f.notes.updateWhereLocked(ownerID,
		[]remote.Cond{remote.Eq(domain.FieldFolderID, folderID)},
		domain.Patch{domain.FieldFolderID: nil, domain.FieldUpdatedAt: f.now()})
	f.removeLocked(folderID, ownerID)
	return detached, nil
}

var _ remote.FolderCascadeDeleter = (*Folders)(nil)
