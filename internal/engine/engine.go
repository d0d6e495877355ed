package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mschirtzinger/notesync/internal/ai"
	"github.com/mschirtzinger/notesync/internal/cache"
	"github.com/mschirtzinger/notesync/internal/cascade"
	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/executor"
	"github.com/mschirtzinger/notesync/internal/mutation"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/remote"
	"github.com/mschirtzinger/notesync/internal/retry"
	"github.com/mschirtzinger/notesync/internal/session"
	"github.com/mschirtzinger/notesync/internal/telemetry"
)

// Collections lists every cached collection in load order.
var Collections = []string{
	cache.CollectionNotes,
	cache.CollectionFolders,
	cache.CollectionPrompts,
	cache.CollectionHidden,
	cache.CollectionSettings,
}

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("engine closed")

// Config holds the collaborators of an Engine. Session and Remotes are
// required.
type Config struct {
	Session *session.Session
	Remotes Remotes

	// Retry is the remote call path. When nil one is built from Policy
	// and Timeouts, reporting to Sink and Observer.
	Retry    *retry.Controller
	Policy   retry.Policy
	Timeouts executor.Timeouts

	Sink     notify.Sink
	Observer telemetry.Observer
	Log      zerolog.Logger

	// Provider enables the AI assistant when set.
	Provider ai.Provider

	// OpLogSize bounds the shared cache operation log (default 512).
	OpLogSize int

	Now func() time.Time
}

// Engine is the client-side sync engine of one session.
type Engine struct {
	sess    *session.Session
	remotes Remotes
	retry   *retry.Controller
	sink    notify.Sink
	log     zerolog.Logger

	oplog    *cache.OpLog
	notes    *cache.Store[domain.Note]
	folders  *cache.Store[domain.Folder]
	prompts  *cache.Store[domain.Prompt]
	hidden   *cache.Store[domain.HiddenPrompt]
	settings *cache.Store[domain.UserSettings]

	journal *cascade.Journal
	rules   *cascade.Registry

	noteMut     *mutation.Notes
	folderMut   *mutation.Folders
	promptMut   *mutation.Prompts
	settingsMut *mutation.Settings
	assistant   *ai.Assistant

	loads singleflight.Group

	mu     sync.Mutex
	closed bool
}

// New wires an engine for cfg.Session.
func New(cfg Config) (*Engine, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if !cfg.Remotes.complete() {
		return nil, fmt.Errorf("a remote store is required for every collection")
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.Discard()
	}
	if cfg.Observer == nil {
		cfg.Observer = telemetry.Nop()
	}
	if cfg.OpLogSize <= 0 {
		cfg.OpLogSize = cache.DefaultOpLogSize
	}
	if cfg.Retry == nil {
		policy := cfg.Policy
		if policy == (retry.Policy{}) {
			policy = retry.DefaultPolicy()
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("invalid retry policy: %w", err)
		}
		timeouts := cfg.Timeouts
		if timeouts == (executor.Timeouts{}) {
			timeouts = executor.DefaultTimeouts()
		}
		cfg.Retry = retry.New(policy, executor.New(timeouts),
			retry.WithSink(cfg.Sink),
			retry.WithObserver(cfg.Observer),
		)
	}

	e := &Engine{
		sess:    cfg.Session,
		remotes: cfg.Remotes,
		retry:   cfg.Retry,
		sink:    cfg.Sink,
		log:     cfg.Log.With().Str("component", "engine").Logger(),
		oplog:   cache.NewOpLog(cfg.OpLogSize),
		journal: cascade.NewJournal(),
		rules:   cascade.NewRegistry(),
	}
	e.notes = cache.NewStore[domain.Note](e.oplog)
	e.folders = cache.NewStore[domain.Folder](e.oplog)
	e.prompts = cache.NewStore[domain.Prompt](e.oplog)
	e.hidden = cache.NewStore[domain.HiddenPrompt](e.oplog)
	e.settings = cache.NewStore[domain.UserSettings](e.oplog)

	del, restore := cascade.NewFolderRules(cascade.FolderConfig{
		Notes:         e.notes,
		Folders:       e.folders,
		RemoteNotes:   cfg.Remotes.Notes,
		RemoteFolders: cfg.Remotes.Folders,
		Retry:         cfg.Retry,
		Journal:       e.journal,
	})
	e.rules.Register(cache.CollectionFolders, cascade.EventDelete, del)
	e.rules.Register(cache.CollectionFolders, cascade.EventRestore, restore)

	deps := mutation.Deps{
		Session:  cfg.Session,
		Retry:    cfg.Retry,
		Sink:     cfg.Sink,
		Observer: cfg.Observer,
		Log:      cfg.Log.With().Str("component", "mutation").Logger(),
		Now:      cfg.Now,
	}
	e.noteMut = mutation.NewNotes(deps, e.notes, e.folders, cfg.Remotes.Notes)
	e.folderMut = mutation.NewFolders(deps, e.folders, cfg.Remotes.Folders, e.rules)
	e.promptMut = mutation.NewPrompts(deps, e.prompts, e.hidden, cfg.Remotes.Prompts, cfg.Remotes.HiddenPrompts)
	e.settingsMut = mutation.NewSettings(deps, e.settings, e.folders, cfg.Remotes.Settings)
	if cfg.Provider != nil {
		e.assistant = ai.NewAssistant(cfg.Provider, cfg.Retry, cfg.Sink)
	}

	cfg.Session.OnSignOut(e.discard)
	return e, nil
}

// discard drops everything cached for user.
func (e *Engine) discard(user, reason string) {
	n := e.notes.Discard(user) + e.folders.Discard(user) + e.prompts.Discard(user) +
		e.hidden.Discard(user) + e.settings.Discard(user)
	e.journal.Forget(user)
	e.log.Info().Str("user", user).Str("reason", reason).Int("collections", n).Msg("cache discarded")
}

// Session returns the engine's session.
func (e *Engine) Session() *session.Session { return e.sess }

// Retry returns the remote call path.
func (e *Engine) Retry() *retry.Controller { return e.retry }

// OpLog returns the operation log shared by all collections.
func (e *Engine) OpLog() *cache.OpLog { return e.oplog }

// Rules returns the cascade rule registry.
func (e *Engine) Rules() *cascade.Registry { return e.rules }

// NoteMutations returns the note coordinator.
func (e *Engine) NoteMutations() *mutation.Notes { return e.noteMut }

// FolderMutations returns the folder coordinator.
func (e *Engine) FolderMutations() *mutation.Folders { return e.folderMut }

// PromptMutations returns the prompt coordinator.
func (e *Engine) PromptMutations() *mutation.Prompts { return e.promptMut }

// SettingsMutations returns the settings coordinator.
func (e *Engine) SettingsMutations() *mutation.Settings { return e.settingsMut }

// Assistant returns the AI assistant, or an ai error when no provider is
// configured.
func (e *Engine) Assistant() (*ai.Assistant, error) {
	if e.assistant == nil {
		return nil, classify.New(classify.KindAI, "ai.generate", ai.CodeInvalidCredentials, "no AI provider configured")
	}
	return e.assistant, nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Notes returns the user's notes, newest first, loading them on first use.
func (e *Engine) Notes(ctx context.Context) ([]domain.Note, error) {
	return load(ctx, e, cache.CollectionNotes, e.notes, e.remotes.Notes)
}

// Folders returns the user's folders, loading them on first use.
func (e *Engine) Folders(ctx context.Context) ([]domain.Folder, error) {
	return load(ctx, e, cache.CollectionFolders, e.folders, e.remotes.Folders)
}

// Prompts returns the user's prompts, hidden ones included, loading them on
// first use.
func (e *Engine) Prompts(ctx context.Context) ([]domain.Prompt, error) {
	return load(ctx, e, cache.CollectionPrompts, e.prompts, e.remotes.Prompts)
}

// VisiblePrompts returns the prompts the user has not hidden.
func (e *Engine) VisiblePrompts(ctx context.Context) ([]domain.Prompt, error) {
	if _, err := e.Prompts(ctx); err != nil {
		return nil, err
	}
	if _, err := e.HiddenPrompts(ctx); err != nil {
		return nil, err
	}
	return e.promptMut.Visible(e.sess.UserID()), nil
}

// HiddenPrompts returns the user's hidden prompt markers.
func (e *Engine) HiddenPrompts(ctx context.Context) ([]domain.HiddenPrompt, error) {
	return load(ctx, e, cache.CollectionHidden, e.hidden, e.remotes.HiddenPrompts)
}

// Settings returns the user's settings, or the defaults when none are
// stored yet.
func (e *Engine) Settings(ctx context.Context) (domain.UserSettings, error) {
	if _, err := load(ctx, e, cache.CollectionSettings, e.settings, e.remotes.Settings); err != nil {
		return domain.UserSettings{}, err
	}
	return e.settingsMut.Current(e.sess.UserID()), nil
}

// Warm loads every collection concurrently. The first failure cancels the
// remaining loads.
func (e *Engine) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { _, err := e.Notes(ctx); return err })
	g.Go(func() error { _, err := e.Folders(ctx); return err })
	g.Go(func() error { _, err := e.Prompts(ctx); return err })
	g.Go(func() error { _, err := e.HiddenPrompts(ctx); return err })
	g.Go(func() error { _, err := e.Settings(ctx); return err })
	return g.Wait()
}

// Reload re-selects collection from the remote store, replacing the cached
// copy. Placeholders of in-flight creates survive the reload.
func (e *Engine) Reload(ctx context.Context, collection string) error {
	switch collection {
	case cache.CollectionNotes:
		return reload(ctx, e, collection, e.notes, e.remotes.Notes)
	case cache.CollectionFolders:
		return reload(ctx, e, collection, e.folders, e.remotes.Folders)
	case cache.CollectionPrompts:
		return reload(ctx, e, collection, e.prompts, e.remotes.Prompts)
	case cache.CollectionHidden:
		return reload(ctx, e, collection, e.hidden, e.remotes.HiddenPrompts)
	case cache.CollectionSettings:
		return reload(ctx, e, collection, e.settings, e.remotes.Settings)
	}
	return fmt.Errorf("unknown collection %q", collection)
}

// CollectionStats describes one cached collection.
type CollectionStats struct {
	Collection string
	Count      int
	State      cache.State
}

// Stats reports the cached collections of the signed-in user. Collections
// not loaded yet are reported with a zero state.
func (e *Engine) Stats() []CollectionStats {
	owner := e.sess.UserID()
	stat := func(name string, st cache.State, n int) CollectionStats {
		return CollectionStats{Collection: name, Count: n, State: st}
	}
	key := func(c string) cache.Key { return cache.Key{Collection: c, Owner: owner} }
	return []CollectionStats{
		stat(cache.CollectionNotes, e.notes.State(key(cache.CollectionNotes)), e.notes.Len(key(cache.CollectionNotes))),
		stat(cache.CollectionFolders, e.folders.State(key(cache.CollectionFolders)), e.folders.Len(key(cache.CollectionFolders))),
		stat(cache.CollectionPrompts, e.prompts.State(key(cache.CollectionPrompts)), e.prompts.Len(key(cache.CollectionPrompts))),
		stat(cache.CollectionHidden, e.hidden.State(key(cache.CollectionHidden)), e.hidden.Len(key(cache.CollectionHidden))),
		stat(cache.CollectionSettings, e.settings.State(key(cache.CollectionSettings)), e.settings.Len(key(cache.CollectionSettings))),
	}
}

// Pending returns the number of unresolved optimistic mutations across all
// collections of the signed-in user.
func (e *Engine) Pending() int {
	n := 0
	for _, s := range e.Stats() {
		n += s.State.Pending
	}
	return n
}

// Drain waits for the remote phase of every mutation started so far.
func (e *Engine) Drain() {
	e.noteMut.Drain()
	e.folderMut.Drain()
	e.promptMut.Drain()
	e.settingsMut.Drain()
}

// Close waits for in-flight mutations and marks the engine closed. It does
// not sign the session out.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	e.Drain()
	return nil
}

func load[T domain.Entity](ctx context.Context, e *Engine, collection string, store *cache.Store[T], r remote.Store[T]) ([]T, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	owner, err := e.sess.Require(collection + ".load")
	if err != nil {
		return nil, err
	}
	key := cache.Key{Collection: collection, Owner: owner}
	if items, st := store.Get(key); st.Loaded {
		return items, nil
	}
	if err := fetchOnce(ctx, e, key, store, r); err != nil {
		return nil, err
	}
	items, _ := store.Get(key)
	return items, nil
}

func reload[T domain.Entity](ctx context.Context, e *Engine, collection string, store *cache.Store[T], r remote.Store[T]) error {
	if e.isClosed() {
		return ErrClosed
	}
	owner, err := e.sess.Require(collection + ".reload")
	if err != nil {
		return err
	}
	return fetchOnce(ctx, e, cache.Key{Collection: collection, Owner: owner}, store, r)
}

// fetchOnce selects key's collection, sharing the request with concurrent
// callers for the same key.
func fetchOnce[T domain.Entity](ctx context.Context, e *Engine, key cache.Key, store *cache.Store[T], r remote.Store[T]) error {
	_, err, _ := e.loads.Do(key.String(), func() (any, error) {
		return nil, fetch(ctx, e, key, store, r)
	})
	return err
}

func fetch[T domain.Entity](ctx context.Context, e *Engine, key cache.Key, store *cache.Store[T], r remote.Store[T]) error {
	op := key.Collection + ".select"
	start := time.Now()
	store.MarkLoading(key)

	items, err := retry.Run(ctx, e.retry, executor.ClassRead, op, func(ctx context.Context) ([]T, error) {
		return r.Select(ctx, key.Owner)
	})
	if err != nil {
		store.MarkFailed(key, err)
		return e.loadFailed(op, err)
	}

	// The user may have signed out while the select was in flight. The
	// check holds the store's lock, so the sign-out hook's Discard cannot
	// slip in between it and the Set.
	current := func() bool { return e.sess.SignedIn() && e.sess.UserID() == key.Owner }
	if !store.SetIf(key, items, current) {
		store.Discard(key.Owner)
		if _, err := e.sess.Require(op); err != nil {
			return err
		}
		return classify.New(classify.KindAuth, op, "signed_out", "signed in user changed during load")
	}
	e.log.Debug().Str("collection", key.Collection).Int("count", len(items)).
		Dur("latency", time.Since(start)).Msg("collection loaded")
	return nil
}

func (e *Engine) loadFailed(op string, err error) error {
	ce := e.retry.Classifier().Wrap(op, err)
	e.log.Warn().Err(ce).Str("op", op).Str("kind", string(ce.Kind)).Msg("load failed")
	if ce.Kind == classify.KindAuth {
		if e.sess.SignOut(session.ReasonExpired) {
			notify.Send(e.sink, notify.LevelError, classify.KindAuth.Title(),
				"Your session has expired. Please sign in again.", nil)
		}
		return ce
	}
	if !executor.IsCanceled(ce) {
		notify.Send(e.sink, notify.LevelError, ce.Kind.Title(), ce.Message, nil)
	}
	return ce
}
