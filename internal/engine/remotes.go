package engine

import (
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/remote"
	"github.com/mschirtzinger/notesync/internal/remote/memstore"
	"github.com/mschirtzinger/notesync/internal/remote/sqlstore"
)

// Remotes holds one remote store per entity.
type Remotes struct {
	Notes         remote.Store[domain.Note]
	Folders       remote.Store[domain.Folder]
	Prompts       remote.Store[domain.Prompt]
	HiddenPrompts remote.Store[domain.HiddenPrompt]
	Settings      remote.Store[domain.UserSettings]
}

func (r Remotes) complete() bool {
	return r.Notes != nil && r.Folders != nil && r.Prompts != nil &&
		r.HiddenPrompts != nil && r.Settings != nil
}

// MemoryRemotes returns in-memory stores, used for demos and the load
// tester.
func MemoryRemotes() Remotes {
	notes := memstore.New[domain.Note]()
	return Remotes{
		Notes:         notes,
		Folders:       memstore.NewFolders(memstore.New[domain.Folder](), notes),
		Prompts:       memstore.New[domain.Prompt](),
		HiddenPrompts: memstore.New[domain.HiddenPrompt](),
		Settings:      memstore.New[domain.UserSettings](),
	}
}

// SQLRemotes returns the stores backed by db.
func SQLRemotes(db *sqlstore.DB) Remotes {
	return Remotes{
		Notes:         db.Notes(),
		Folders:       db.Folders(),
		Prompts:       db.Prompts(),
		HiddenPrompts: db.HiddenPrompts(),
		Settings:      db.Settings(),
	}
}
