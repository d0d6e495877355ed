package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/engine"
)

// agent is one simulated user. It only touches entities it created, so its
// own operations never race each other; the contention is between agents
// sharing the engine's stores.
type agent struct {
	id  int
	eng *engine.Engine
	rng *rand.Rand

	folderID   string
	folderLive bool
	promptID   string
	hidden     bool
	notes      []string
	samples    []sample
}

func (a *agent) record(op string, start time.Time, err error) {
	a.samples = append(a.samples, sample{op: op, d: time.Since(start), err: err})
}

func (a *agent) setup(ctx context.Context) {
	f, err := a.eng.FolderMutations().Create(ctx, domain.FolderInput{Name: fmt.Sprintf("agent-%d", a.id)})
	if err == nil {
		a.folderID, a.folderLive = f.ID, true
	}
	p, err := a.eng.PromptMutations().Create(ctx, domain.PromptInput{
		Title:   fmt.Sprintf("agent-%d prompt", a.id),
		Content: "Summarize the note.",
	})
	if err == nil {
		a.promptID = p.ID
	}
}

func (a *agent) run(ctx context.Context, ops int) []sample {
	a.setup(ctx)
	for i := 0; i < ops && ctx.Err() == nil; i++ {
		a.step(ctx, i)
	}
	return a.samples
}

func (a *agent) step(ctx context.Context, i int) {
	roll := a.rng.Intn(100)
	switch {
	case roll < 35 || len(a.notes) == 0:
		a.createNote(ctx, i)
	case roll < 55:
		a.updateNote(ctx, i)
	case roll < 65:
		a.moveNote(ctx)
	case roll < 75:
		a.deleteNote(ctx)
	case roll < 85:
		a.toggleFolder(ctx)
	default:
		a.togglePrompt(ctx)
	}
}

func (a *agent) pickNote() (int, string) {
	i := a.rng.Intn(len(a.notes))
	return i, a.notes[i]
}

func (a *agent) ownFolder() *string {
	if a.folderLive && a.rng.Intn(2) == 0 {
		return domain.StringPtr(a.folderID)
	}
	return nil
}

func (a *agent) createNote(ctx context.Context, i int) {
	start := time.Now()
	n, err := a.eng.NoteMutations().Create(ctx, domain.NoteInput{
		Title:    fmt.Sprintf("agent-%d note %d", a.id, i),
		Content:  fmt.Sprintf("load #agent%d", a.id),
		FolderID: a.ownFolder(),
	})
	a.record(OpNoteCreate, start, err)
	if err == nil {
		a.notes = append(a.notes, n.ID)
	}
}

func (a *agent) updateNote(ctx context.Context, i int) {
	_, id := a.pickNote()
	content := fmt.Sprintf("revision %d", i)
	start := time.Now()
	_, err := a.eng.NoteMutations().Update(ctx, id, domain.NotePatch{Content: &content})
	a.record(OpNoteUpdate, start, err)
}

func (a *agent) moveNote(ctx context.Context) {
	_, id := a.pickNote()
	start := time.Now()
	_, err := a.eng.NoteMutations().Move(ctx, id, a.ownFolder())
	a.record(OpNoteMove, start, err)
}

func (a *agent) deleteNote(ctx context.Context) {
	idx, id := a.pickNote()
	start := time.Now()
	err := a.eng.NoteMutations().Delete(ctx, id)
	a.record(OpNoteDelete, start, err)
	if err == nil {
		a.notes = append(a.notes[:idx], a.notes[idx+1:]...)
	}
}

// toggleFolder deletes the agent's folder, or restores it when a previous
// delete went through.
func (a *agent) toggleFolder(ctx context.Context) {
	if a.folderID == "" {
		return
	}
	start := time.Now()
	if a.folderLive {
		_, err := a.eng.FolderMutations().Delete(ctx, a.folderID)
		a.record(OpFolderDelete, start, err)
		if err == nil {
			a.folderLive = false
		}
		return
	}
	_, err := a.eng.FolderMutations().Restore(ctx, a.folderID)
	a.record(OpFolderRestore, start, err)
	if err == nil {
		a.folderLive = true
	}
}

func (a *agent) togglePrompt(ctx context.Context) {
	if a.promptID == "" {
		return
	}
	start := time.Now()
	if a.hidden {
		err := a.eng.PromptMutations().Show(ctx, a.promptID)
		a.record(OpPromptShow, start, err)
		if err == nil {
			a.hidden = false
		}
		return
	}
	err := a.eng.PromptMutations().Hide(ctx, a.promptID)
	a.record(OpPromptHide, start, err)
	if err == nil {
		a.hidden = true
	}
}
