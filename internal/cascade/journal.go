package cascade

import (
	"sync"

	"github.com/mschirtzinger/notesync/internal/domain"
)

// Journal remembers deleted folders so they can be restored.
type Journal struct {
	mu      sync.Mutex
	entries map[journalKey]*undoRecord
}

type journalKey struct {
	owner, id string
}

// undoRecord fields other than folder and affected are guarded by
// Journal.mu.
type undoRecord struct {
	folder   domain.Folder
	affected []string
	restored bool
	busy     bool
}

type claimState int

const (
	claimOK claimState = iota
	claimMissing
	claimBusy
	claimDone
)

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{entries: make(map[journalKey]*undoRecord)}
}

func (j *Journal) record(owner string, folder domain.Folder, affected []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[journalKey{owner, folder.ID}] = &undoRecord{
		folder:   folder,
		affected: append([]string(nil), affected...),
	}
}

// claim marks the record of folder id busy when it can be restored. The
// caller must finish a record it claimed.
func (j *Journal) claim(owner, id string) (*undoRecord, claimState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec := j.entries[journalKey{owner, id}]
	switch {
	case rec == nil:
		return nil, claimMissing
	case rec.busy:
		return rec, claimBusy
	case rec.restored:
		return rec, claimDone
	}
	rec.busy = true
	return rec, claimOK
}

func (j *Journal) finish(rec *undoRecord, restored bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec.busy = false
	if restored {
		rec.restored = true
	}
}

// Deleted reports whether folder id of owner was deleted and not yet
// restored.
func (j *Journal) Deleted(owner, id string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec := j.entries[journalKey{owner, id}]
	return rec != nil && !rec.restored
}

// Forget drops every record of owner.
func (j *Journal) Forget(owner string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for k := range j.entries {
		if k.owner == owner {
			delete(j.entries, k)
		}
	}
}
