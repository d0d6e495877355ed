package mutation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/notesync/internal/cache"
	"github.com/mschirtzinger/notesync/internal/cascade"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/executor"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/remote"
	"github.com/mschirtzinger/notesync/internal/remote/memstore"
	"github.com/mschirtzinger/notesync/internal/retry"
	"github.com/mschirtzinger/notesync/internal/session"
	"github.com/mschirtzinger/notesync/internal/telemetry"
)

const testOwner = "user-1"

type harness struct {
	t      *testing.T
	ctx    context.Context
	sess   *session.Session
	sink   *notify.Recorder
	events *telemetry.Recorder

	sleepMu sync.Mutex
	sleeps  []time.Duration

	noteCache     *cache.Store[domain.Note]
	folderCache   *cache.Store[domain.Folder]
	promptCache   *cache.Store[domain.Prompt]
	hiddenCache   *cache.Store[domain.HiddenPrompt]
	settingsCache *cache.Store[domain.UserSettings]

	remoteNotes    *memstore.Store[domain.Note]
	remoteFolders  *memstore.Store[domain.Folder]
	remotePrompts  *memstore.Store[domain.Prompt]
	remoteHidden   *memstore.Store[domain.HiddenPrompt]
	remoteSettings *memstore.Store[domain.UserSettings]

	// notes snapshot taken by the sign-out hook before the cache is
	// discarded
	notesAtSignOut []domain.Note

	notes    *Notes
	folders  *Folders
	prompts  *Prompts
	settings *Settings
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	noteRemote remote.Store[domain.Note]
}

func withNoteRemote(r remote.Store[domain.Note]) harnessOption {
	return func(c *harnessConfig) { c.noteRemote = r }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		sink:   &notify.Recorder{},
		events: &telemetry.Recorder{},
	}

	sess, err := session.New(testOwner)
	require.NoError(t, err)
	h.sess = sess

	log := cache.NewOpLog(cache.DefaultOpLogSize)
	h.noteCache = cache.NewStore[domain.Note](log)
	h.folderCache = cache.NewStore[domain.Folder](log)
	h.promptCache = cache.NewStore[domain.Prompt](log)
	h.hiddenCache = cache.NewStore[domain.HiddenPrompt](log)
	h.settingsCache = cache.NewStore[domain.UserSettings](log)

	n := 0
	var idMu sync.Mutex
	seqIDs := func(prefix string) func() string {
		return func() string {
			idMu.Lock()
			defer idMu.Unlock()
			n++
			return fmt.Sprintf("%s%d", prefix, n)
		}
	}
	h.remoteNotes = memstore.New(memstore.WithIDs[domain.Note](seqIDs("n")))
	h.remoteFolders = memstore.New(memstore.WithIDs[domain.Folder](seqIDs("f")))
	h.remotePrompts = memstore.New(memstore.WithIDs[domain.Prompt](seqIDs("p")))
	h.remoteHidden = memstore.New[domain.HiddenPrompt]()
	h.remoteSettings = memstore.New[domain.UserSettings]()

	cfg := harnessConfig{noteRemote: h.remoteNotes}
	for _, opt := range opts {
		opt(&cfg)
	}

	sess.OnSignOut(func(user, reason string) {
		h.notesAtSignOut, _ = h.noteCache.Get(h.notesKey())
		h.noteCache.Discard(user)
		h.folderCache.Discard(user)
		h.promptCache.Discard(user)
		h.hiddenCache.Discard(user)
		h.settingsCache.Discard(user)
	})

	rc := retry.New(retry.DefaultPolicy(), executor.New(executor.DefaultTimeouts()),
		retry.WithSink(h.sink),
		retry.WithObserver(h.events),
		retry.WithSleep(func(ctx context.Context, d time.Duration) error {
			h.sleepMu.Lock()
			defer h.sleepMu.Unlock()
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
	)
	deps := Deps{Session: sess, Retry: rc, Sink: h.sink, Observer: h.events}

	reg := cascade.NewRegistry()
	del, restore := cascade.NewFolderRules(cascade.FolderConfig{
		Notes:         h.noteCache,
		Folders:       h.folderCache,
		RemoteNotes:   cfg.noteRemote,
		RemoteFolders: h.remoteFolders,
		Retry:         rc,
	})
	reg.Register(cache.CollectionFolders, cascade.EventDelete, del)
	reg.Register(cache.CollectionFolders, cascade.EventRestore, restore)

	h.notes = NewNotes(deps, h.noteCache, h.folderCache, cfg.noteRemote)
	h.folders = NewFolders(deps, h.folderCache, h.remoteFolders, reg)
	h.prompts = NewPrompts(deps, h.promptCache, h.hiddenCache, h.remotePrompts, h.remoteHidden)
	h.settings = NewSettings(deps, h.settingsCache, h.folderCache, h.remoteSettings)
	return h
}

func (h *harness) notesKey() cache.Key {
	return cache.Key{Collection: cache.CollectionNotes, Owner: testOwner}
}

func (h *harness) foldersKey() cache.Key {
	return cache.Key{Collection: cache.CollectionFolders, Owner: testOwner}
}

func (h *harness) cachedNotes() []domain.Note {
	notes, _ := h.noteCache.Get(h.notesKey())
	return notes
}

func (h *harness) cachedFolders() []domain.Folder {
	folders, _ := h.folderCache.Get(h.foldersKey())
	return folders
}

// seedNotes stores notes remotely and loads them into the cache.
func (h *harness) seedNotes(notes ...domain.Note) {
	h.remoteNotes.Seed(notes...)
	h.noteCache.Set(h.notesKey(), notes)
}

func (h *harness) seedFolders(folders ...domain.Folder) {
	h.remoteFolders.Seed(folders...)
	h.folderCache.Set(h.foldersKey(), folders)
}

func (h *harness) recordedSleeps() []time.Duration {
	h.sleepMu.Lock()
	defer h.sleepMu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}

func note(id, title string, folderID *string) domain.Note {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.Note{ID: id, OwnerID: testOwner, Title: title, FolderID: folderID, CreatedAt: ts, UpdatedAt: ts}
}

func folder(id, name string) domain.Folder {
	return domain.Folder{ID: id, OwnerID: testOwner, Name: name, Color: "gray", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func countPlaceholders(notes []domain.Note) int {
	n := 0
	for _, x := range notes {
		if domain.IsPlaceholderID(x.ID) {
			n++
		}
	}
	return n
}
