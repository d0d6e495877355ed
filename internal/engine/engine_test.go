package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/notesync/internal/ai"
	"github.com/mschirtzinger/notesync/internal/cache"
	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/executor"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/remote"
	"github.com/mschirtzinger/notesync/internal/remote/memstore"
	"github.com/mschirtzinger/notesync/internal/retry"
	"github.com/mschirtzinger/notesync/internal/session"
)

const user = "user-1"

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type testEngine struct {
	*Engine
	sess     *session.Session
	sink     *notify.Recorder
	notes    *memstore.Store[domain.Note]
	folders  *memstore.Store[domain.Folder]
	prompts  *memstore.Store[domain.Prompt]
	hidden   *memstore.Store[domain.HiddenPrompt]
	settings *memstore.Store[domain.UserSettings]
}

func newTestEngine(t *testing.T, provider ai.Provider) *testEngine {
	t.Helper()
	sess, err := session.New(user)
	require.NoError(t, err)

	te := &testEngine{
		sess:     sess,
		sink:     &notify.Recorder{},
		notes:    memstore.New[domain.Note](),
		folders:  memstore.New[domain.Folder](),
		prompts:  memstore.New[domain.Prompt](),
		hidden:   memstore.New[domain.HiddenPrompt](),
		settings: memstore.New[domain.UserSettings](),
	}
	rc := retry.New(retry.DefaultPolicy(), executor.New(executor.DefaultTimeouts()),
		retry.WithSink(te.sink),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }))

	eng, err := New(Config{
		Session: sess,
		Remotes: Remotes{
			Notes:         te.notes,
			Folders:       te.folders,
			Prompts:       te.prompts,
			HiddenPrompts: te.hidden,
			Settings:      te.settings,
		},
		Retry:    rc,
		Sink:     te.sink,
		Provider: provider,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	te.Engine = eng
	return te
}

func TestNew_RequiresSessionAndRemotes(t *testing.T) {
	_, err := New(Config{Remotes: MemoryRemotes()})
	assert.Error(t, err)

	sess, err := session.New(user)
	require.NoError(t, err)
	_, err = New(Config{Session: sess})
	assert.Error(t, err)

	_, err = New(Config{Session: sess, Remotes: MemoryRemotes(), Policy: retry.Policy{MaxRetries: -1}})
	assert.Error(t, err)
}

func TestNotes_LoadsLazilyOnce(t *testing.T) {
	te := newTestEngine(t, nil)
	te.notes.Seed(
		domain.Note{ID: "a", OwnerID: user, Title: "old", CreatedAt: epoch},
		domain.Note{ID: "b", OwnerID: user, Title: "new", CreatedAt: epoch.Add(time.Hour)},
		domain.Note{ID: "x", OwnerID: "someone-else", Title: "theirs", CreatedAt: epoch},
	)
	assert.Zero(t, te.notes.Calls(memstore.OpSelect), "nothing loads before first use")

	notes, err := te.Notes(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "b", notes[0].ID, "newest first")

	_, err = te.Notes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, te.notes.Calls(memstore.OpSelect))
}

func TestNotes_ConcurrentFirstReadsShareOneSelect(t *testing.T) {
	te := newTestEngine(t, nil)
	te.notes.Seed(domain.Note{ID: "a", OwnerID: user, CreatedAt: epoch})
	te.notes.SetLatency(30 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			notes, err := te.Notes(context.Background())
			assert.NoError(t, err)
			assert.Len(t, notes, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, te.notes.Calls(memstore.OpSelect))
}

func TestWarm(t *testing.T) {
	te := newTestEngine(t, nil)
	require.NoError(t, te.Warm(context.Background()))

	for _, s := range te.Stats() {
		assert.True(t, s.State.Loaded, "%s not loaded", s.Collection)
	}
	us, err := te.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAIModel, us.AIModel)
}

func TestLoad_NetworkFailureIsRetriedThenReported(t *testing.T) {
	te := newTestEngine(t, nil)
	te.folders.FailAlways(memstore.OpSelect, &remote.Error{Code: "08006", Message: "connection failure"})

	_, err := te.Folders(context.Background())
	require.Error(t, err)
	assert.Equal(t, classify.KindNetwork, classify.KindOf(err))
	assert.Equal(t, 4, te.folders.Calls(memstore.OpSelect))

	st := te.Stats()[1]
	assert.Equal(t, cache.CollectionFolders, st.Collection)
	assert.False(t, st.State.Loaded)
	assert.Error(t, st.State.Err)

	last, ok := te.sink.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, last.Level)
}

func TestLoad_AuthFailureSignsOut(t *testing.T) {
	te := newTestEngine(t, nil)
	te.prompts.FailNext(memstore.OpSelect, &remote.Error{Code: "PGRST301", Message: "JWT expired"})

	_, err := te.Prompts(context.Background())
	assert.Equal(t, classify.KindAuth, classify.KindOf(err))
	assert.Equal(t, 1, te.prompts.Calls(memstore.OpSelect))
	assert.False(t, te.sess.SignedIn())
	assert.Equal(t, session.ReasonExpired, te.sess.Reason())

	_, err = te.Notes(context.Background())
	assert.ErrorIs(t, err, session.ErrSignedOut)
}

func TestSignOut_DiscardsCache(t *testing.T) {
	te := newTestEngine(t, nil)
	te.notes.Seed(domain.Note{ID: "a", OwnerID: user, CreatedAt: epoch})
	te.folders.Seed(domain.Folder{ID: "f1", OwnerID: user, Name: "Work", CreatedAt: epoch})
	require.NoError(t, te.Warm(context.Background()))

	_, err := te.FolderMutations().Delete(context.Background(), "f1")
	require.NoError(t, err)

	require.True(t, te.sess.SignOut(session.ReasonUser))
	for _, s := range te.Stats() {
		assert.Zero(t, s.Count, s.Collection)
		assert.False(t, s.State.Loaded, s.Collection)
	}

	_, err = te.FolderMutations().Restore(context.Background(), "f1")
	assert.Equal(t, classify.KindAuth, classify.KindOf(err))
}

// A load that completes after the user signed out must not repopulate the
// discarded cache.
func TestLoad_SignOutDuringSelectCachesNothing(t *testing.T) {
	te := newTestEngine(t, nil)
	te.notes.Seed(domain.Note{ID: "a", OwnerID: user, CreatedAt: epoch})
	te.notes.SetInjector(func(op string) error {
		if op == memstore.OpSelect {
			te.sess.SignOut(session.ReasonUser)
		}
		return nil
	})

	_, err := te.Notes(context.Background())
	assert.ErrorIs(t, err, session.ErrSignedOut)
	for _, s := range te.Stats() {
		assert.Zero(t, s.Count, s.Collection)
		assert.False(t, s.State.Loaded, s.Collection)
	}
}

func TestMutationsThroughEngine(t *testing.T) {
	te := newTestEngine(t, nil)
	te.folders.Seed(domain.Folder{ID: "f1", OwnerID: user, Name: "Work", CreatedAt: epoch})
	require.NoError(t, te.Warm(context.Background()))

	n, err := te.NoteMutations().Create(context.Background(), domain.NoteInput{
		Title: "Plan", Content: "ship it #work", FolderID: domain.StringPtr("f1"),
	})
	require.NoError(t, err)
	assert.False(t, domain.IsPlaceholderID(n.ID))
	assert.Equal(t, []string{"work"}, n.Tags)

	_, err = te.FolderMutations().Delete(context.Background(), "f1")
	require.NoError(t, err)

	notes, err := te.Notes(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Nil(t, notes[0].FolderID)
	assert.Zero(t, te.Pending())
}

func TestVisiblePrompts(t *testing.T) {
	te := newTestEngine(t, nil)
	te.prompts.Seed(
		domain.Prompt{ID: "p1", OwnerID: user, Title: "one", Content: "x", CreatedAt: epoch},
		domain.Prompt{ID: "p2", OwnerID: user, Title: "two", Content: "y", CreatedAt: epoch},
	)
	te.hidden.Seed(domain.HiddenPrompt{PromptID: "p1", OwnerID: user, CreatedAt: epoch})

	visible, err := te.VisiblePrompts(context.Background())
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "p2", visible[0].ID)
}

func TestAssistant(t *testing.T) {
	te := newTestEngine(t, nil)
	_, err := te.Assistant()
	assert.Equal(t, classify.KindAI, classify.KindOf(err))

	te = newTestEngine(t, ai.ProviderFunc(func(ctx context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	}))
	a, err := te.Assistant()
	require.NoError(t, err)
	out, err := a.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
}

func TestReload_UnknownCollection(t *testing.T) {
	te := newTestEngine(t, nil)
	assert.Error(t, te.Reload(context.Background(), "tags"))
}

func TestClose(t *testing.T) {
	te := newTestEngine(t, nil)
	require.NoError(t, te.Close())
	require.NoError(t, te.Close())
	_, err := te.Notes(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
