package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/remote"
	"github.com/mschirtzinger/notesync/internal/remote/memstore"
	"github.com/mschirtzinger/notesync/internal/telemetry"
)

var errNetwork = errors.New("fetch failed: connection refused")

// Scenario A: a created note ends with exactly one entry carrying the
// store-issued id.
func TestNotesCreate_ReplacesPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.seedNotes()

	p := h.notes.CreateAsync(h.ctx, domain.NoteInput{Title: "Hello", Content: "World"})
	assert.True(t, domain.IsPlaceholderID(p.Optimistic().ID))

	saved, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, "n1", saved.ID)
	assert.Equal(t, StateCommitted, p.State())

	notes := h.cachedNotes()
	require.Len(t, notes, 1)
	assert.Equal(t, "n1", notes[0].ID)
	assert.Equal(t, "Hello", notes[0].Title)
	assert.Zero(t, countPlaceholders(notes))

	events := h.events.ByOp("mutation.notes.create")
	require.Len(t, events, 1)
	assert.Equal(t, telemetry.OutcomeCommitted, events[0].Outcome)
}

func TestNotesCreate_OptimisticVisibleBeforeRemote(t *testing.T) {
	h := newHarness(t)
	h.seedNotes(note("a", "existing", nil))
	h.remoteNotes.SetLatency(50 * time.Millisecond)

	p := h.notes.CreateAsync(h.ctx, domain.NoteInput{Content: "draft #idea"})

	notes := h.cachedNotes()
	require.Len(t, notes, 2)
	assert.Equal(t, p.Optimistic().ID, notes[0].ID, "placeholder goes to the head")
	assert.Equal(t, domain.DefaultNoteTitle, notes[0].Title)
	assert.Equal(t, []string{"idea"}, notes[0].Tags)
	assert.Equal(t, StateOptimisticApplied, p.State())

	_, err := p.Wait()
	require.NoError(t, err)
	notes = h.cachedNotes()
	require.Len(t, notes, 2)
	assert.Equal(t, "n1", notes[0].ID, "authoritative entity keeps the placeholder's position")
}

func TestNotesCreate_FailureRemovesPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.seedNotes(note("a", "existing", nil))
	before := h.cachedNotes()
	h.remoteNotes.FailAlways(memstore.OpInsert, errNetwork)

	_, err := h.notes.Create(h.ctx, domain.NoteInput{Title: "lost"})
	require.Error(t, err)
	assert.Equal(t, classify.KindNetwork, classify.KindOf(err))

	assert.Equal(t, before, h.cachedNotes())
	assert.Equal(t, 4, h.remoteNotes.Calls(memstore.OpInsert), "first attempt plus three retries")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, h.recordedSleeps())

	errs := h.sink.ByLevel(notify.LevelError)
	require.Len(t, errs, 1)
	assert.Equal(t, classify.KindNetwork.Title(), errs[0].Title)

	events := h.events.ByOp("mutation.notes.create")
	require.Len(t, events, 1)
	assert.Equal(t, telemetry.OutcomeRolledBack, events[0].Outcome)
}

// Scenario C: two network failures, then success.
func TestNotesUpdate_RecoversAfterRetries(t *testing.T) {
	h := newHarness(t)
	h.seedNotes(note("n1", "old", nil))
	h.remoteNotes.FailNext(memstore.OpUpdate, errNetwork, errNetwork)

	updated, err := h.notes.Update(h.ctx, "n1", domain.NotePatch{
		Title:   domain.StringPtr("new"),
		Content: domain.StringPtr("now with #tags"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)

	cached := h.cachedNotes()
	require.Len(t, cached, 1)
	assert.Equal(t, "new", cached[0].Title)
	assert.Equal(t, []string{"tags"}, cached[0].Tags)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.recordedSleeps())

	last, ok := h.sink.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelSuccess, last.Level)
	assert.Equal(t, "succeeded after 2 retries", last.Message)
}

// Scenario D: an auth failure is not retried, rolls back and signs out.
func TestNotesUpdate_AuthSignsOut(t *testing.T) {
	h := newHarness(t)
	original := note("n1", "old", nil)
	h.seedNotes(original)
	h.remoteNotes.FailNext(memstore.OpUpdate, &remote.Error{Code: "PGRST301", Message: "JWT expired"})

	_, err := h.notes.Update(h.ctx, "n1", domain.NotePatch{Title: domain.StringPtr("new")})
	require.Error(t, err)
	assert.Equal(t, classify.KindAuth, classify.KindOf(err))

	assert.Equal(t, 1, h.remoteNotes.Calls(memstore.OpUpdate))
	assert.Empty(t, h.recordedSleeps())
	assert.False(t, h.sess.SignedIn())
	assert.Equal(t, []domain.Note{original}, h.notesAtSignOut, "rolled back before sign-out")
	assert.Empty(t, h.cachedNotes(), "cache discarded on sign-out")

	last, ok := h.sink.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, last.Level)
	assert.Equal(t, "Session expired", last.Title)

	// Further mutations are rejected without remote calls.
	_, err = h.notes.Create(h.ctx, domain.NoteInput{Title: "x"})
	assert.Equal(t, classify.KindAuth, classify.KindOf(err))
	assert.Zero(t, h.remoteNotes.Calls(memstore.OpInsert))
}

func TestNotes_NonRetryableKindsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind classify.Kind
	}{
		{"permission", &remote.Error{Code: "42501", Message: "permission denied for table notes"}, classify.KindPermission},
		{"validation", &remote.Error{Code: "22001", Message: "value too long"}, classify.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seedNotes(note("n1", "old", nil))
			h.remoteNotes.FailNext(memstore.OpUpdate, tt.err)

			_, err := h.notes.Update(h.ctx, "n1", domain.NotePatch{Title: domain.StringPtr("new")})
			assert.Equal(t, tt.kind, classify.KindOf(err))
			assert.Equal(t, 1, h.remoteNotes.Calls(memstore.OpUpdate))
			assert.Empty(t, h.recordedSleeps())
			assert.Equal(t, "old", h.cachedNotes()[0].Title)
			assert.True(t, h.sess.SignedIn())
		})
	}
}

func TestNotes_RejectsUnknownAndPendingTargets(t *testing.T) {
	h := newHarness(t)
	h.seedNotes(note("n1", "a", nil))
	h.remoteNotes.SetLatency(50 * time.Millisecond)

	draft := h.notes.CreateAsync(h.ctx, domain.NoteInput{Title: "draft"})
	tempID := draft.Optimistic().ID

	_, err := h.notes.Update(h.ctx, tempID, domain.NotePatch{Title: domain.StringPtr("x")})
	assert.ErrorIs(t, err, classify.ErrPending)

	err = h.notes.Delete(h.ctx, tempID)
	assert.ErrorIs(t, err, classify.ErrPending)

	err = h.notes.Delete(h.ctx, "missing")
	assert.ErrorIs(t, err, classify.ErrNotFound)
	assert.Equal(t, classify.KindValidation, classify.KindOf(err))

	p := h.notes.UpdateAsync(h.ctx, "n1", domain.NotePatch{})
	assert.Equal(t, StateIdle, p.State())
	_, err = p.Wait()
	assert.ErrorIs(t, err, classify.ErrValidation)

	_, err = draft.Wait()
	require.NoError(t, err)
	assert.Zero(t, h.remoteNotes.Calls(memstore.OpUpdate))
	assert.Zero(t, h.remoteNotes.Calls(memstore.OpDelete))
}

func TestNotes_RejectsPendingFolderReference(t *testing.T) {
	h := newHarness(t)
	h.seedNotes()
	h.seedFolders(folder("f1", "Work"))

	_, err := h.notes.Create(h.ctx, domain.NoteInput{Title: "x", FolderID: domain.StringPtr("temp-123")})
	assert.ErrorIs(t, err, classify.ErrPending)

	_, err = h.notes.Create(h.ctx, domain.NoteInput{Title: "x", FolderID: domain.StringPtr("nope")})
	assert.ErrorIs(t, err, classify.ErrNotFound)

	n, err := h.notes.Create(h.ctx, domain.NoteInput{Title: "x", FolderID: domain.StringPtr("f1")})
	require.NoError(t, err)
	assert.True(t, n.InFolder("f1"))
}

func TestNotesMoveAndDelete(t *testing.T) {
	h := newHarness(t)
	h.seedFolders(folder("f1", "Work"))
	h.seedNotes(note("n1", "a", nil), note("n2", "b", nil))

	moved, err := h.notes.Move(h.ctx, "n1", domain.StringPtr("f1"))
	require.NoError(t, err)
	assert.True(t, moved.InFolder("f1"))

	moved, err = h.notes.Move(h.ctx, "n1", nil)
	require.NoError(t, err)
	assert.Nil(t, moved.FolderID)

	require.NoError(t, h.notes.Delete(h.ctx, "n2"))
	notes := h.cachedNotes()
	require.Len(t, notes, 1)
	assert.Equal(t, "n1", notes[0].ID)
	_, ok := h.remoteNotes.Get("n2")
	assert.False(t, ok)
}

func TestNotesDelete_FailureRestoresPosition(t *testing.T) {
	h := newHarness(t)
	h.seedNotes(note("n1", "a", nil), note("n2", "b", nil), note("n3", "c", nil))
	before := h.cachedNotes()
	h.remoteNotes.FailAlways(memstore.OpDelete, &remote.Error{Code: "42501", Message: "permission denied"})

	err := h.notes.Delete(h.ctx, "n2")
	assert.Equal(t, classify.KindPermission, classify.KindOf(err))
	assert.Equal(t, before, h.cachedNotes())
}

// A failed mutation only undoes its own change while others are in flight.
func TestNotes_RollbackIsolation(t *testing.T) {
	h := newHarness(t)
	h.seedNotes(note("n1", "a", nil))
	h.remoteNotes.SetLatency(20 * time.Millisecond)
	h.remoteNotes.FailAlways(memstore.OpInsert, &remote.Error{Code: "22001", Message: "value too long"})

	create := h.notes.CreateAsync(h.ctx, domain.NoteInput{Title: "fails"})
	update := h.notes.UpdateAsync(h.ctx, "n1", domain.NotePatch{Title: domain.StringPtr("kept")})

	_, err := create.Wait()
	require.Error(t, err)
	_, err = update.Wait()
	require.NoError(t, err)

	notes := h.cachedNotes()
	require.Len(t, notes, 1)
	assert.Equal(t, "kept", notes[0].Title)
	assert.Zero(t, countPlaceholders(notes))
}

// gatedNotes holds back failing updates until the test releases them.
type gatedNotes struct {
	*memstore.Store[domain.Note]
	failTitle string
	gate      chan struct{}
}

func (g *gatedNotes) Update(ctx context.Context, id, owner string, patch domain.Patch) (domain.Note, error) {
	if patch[domain.FieldTitle] == g.failTitle {
		<-g.gate
		return domain.Note{}, &remote.Error{Code: "22001", Message: "value too long"}
	}
	return g.Store.Update(ctx, id, owner, patch)
}

// Same-id mutations are last-writer-wins: rolling back an older mutation
// does not erase a newer one.
func TestNotes_SameIDLastWriterWins(t *testing.T) {
	gated := &gatedNotes{failTitle: "first", gate: make(chan struct{})}
	var h *harness
	gated.Store = memstore.New[domain.Note]()
	h = newHarness(t, withNoteRemote(gated))
	gated.Seed(note("n1", "orig", nil))
	h.noteCache.Set(h.notesKey(), []domain.Note{note("n1", "orig", nil)})

	first := h.notes.UpdateAsync(h.ctx, "n1", domain.NotePatch{Title: domain.StringPtr("first")})
	second := h.notes.UpdateAsync(h.ctx, "n1", domain.NotePatch{Title: domain.StringPtr("second")})

	_, err := second.Wait()
	require.NoError(t, err)
	close(gated.gate)
	_, err = first.Wait()
	require.Error(t, err)
	assert.Equal(t, StateRolledBack, first.State())

	notes := h.cachedNotes()
	require.Len(t, notes, 1)
	assert.Equal(t, "second", notes[0].Title)
}

// Many concurrent creates never leave duplicates or placeholders behind.
func TestNotesCreate_ConcurrentNoDuplicates(t *testing.T) {
	h := newHarness(t)
	h.seedNotes()
	h.remoteNotes.SetLatency(time.Millisecond)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.notes.Create(h.ctx, domain.NoteInput{Title: "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	h.notes.Drain()

	notes := h.cachedNotes()
	assert.Len(t, notes, n)
	assert.Zero(t, countPlaceholders(notes))
	seen := make(map[string]bool)
	for _, x := range notes {
		assert.False(t, seen[x.ID], "duplicate id %s", x.ID)
		seen[x.ID] = true
	}
}

func TestPendingStateString(t *testing.T) {
	assert.Equal(t, "optimistic_applied", StateOptimisticApplied.String())
	assert.Equal(t, "rolled_back", StateRolledBack.String())
}
