package mutation

import (
	"context"
	"time"

	"github.com/mschirtzinger/notesync/internal/cache"
	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/remote"
)

// Settings coordinates changes to the user's settings row.
type Settings struct {
	*core
	cache   *cache.Store[domain.UserSettings]
	folders *cache.Store[domain.Folder]
	remote  remote.Store[domain.UserSettings]
}

// NewSettings returns the settings coordinator.
func NewSettings(d Deps, settings *cache.Store[domain.UserSettings], folders *cache.Store[domain.Folder], r remote.Store[domain.UserSettings]) *Settings {
	return &Settings{core: newCore(d), cache: settings, folders: folders, remote: r}
}

func (s *Settings) key(owner string) cache.Key {
	return cache.Key{Collection: cache.CollectionSettings, Owner: owner}
}

// Current returns the cached settings of owner, or the defaults when none
// are stored.
func (s *Settings) Current(owner string) domain.UserSettings {
	if us, ok := s.cache.Lookup(s.key(owner), owner); ok {
		return us
	}
	return domain.DefaultSettings(owner, time.Time{})
}

// UpdateAsync applies patch. The first change of a user without stored
// settings saves the defaults with the patch applied.
func (s *Settings) UpdateAsync(ctx context.Context, patch domain.SettingsPatch) *Pending[domain.UserSettings] {
	const op = "settings.update"
	owner, err := s.owner(op)
	if err != nil {
		return rejected[domain.UserSettings](s.reject(op, err))
	}
	if err := s.validate(op, patch); err != nil {
		return rejected[domain.UserSettings](s.reject(op, err))
	}
	if id := patch.DefaultFolderID; id != nil && !patch.ClearDefaultFolder {
		if domain.IsPlaceholderID(*id) {
			return rejected[domain.UserSettings](s.reject(op, classify.Pending(op, "folder", *id)))
		}
		fkey := cache.Key{Collection: cache.CollectionFolders, Owner: owner}
		if s.folders != nil && s.folders.State(fkey).Loaded && !s.folders.Has(fkey, *id) {
			return rejected[domain.UserSettings](s.reject(op, classify.NotFound(op, "folder", *id)))
		}
	}

	start := time.Now()
	now := s.now()
	fields := patch.Patch(now)
	_, exists := s.cache.Lookup(s.key(owner), owner)
	var next domain.UserSettings
	tok, err := s.cache.ApplyOptimistic(s.key(owner), op, func(tx *cache.Tx[domain.UserSettings]) error {
		cur, ok := tx.Get(owner)
		if !ok {
			cur = domain.DefaultSettings(owner, now)
		}
		next = cur.Apply(fields)
		tx.Insert(next)
		return nil
	})
	if err != nil {
		return rejected[domain.UserSettings](s.reject(op, err))
	}

	p := newPending(next)
	s.background(func() {
		stored, err := call(ctx, s.core, "settings.save", func(ctx context.Context) (domain.UserSettings, error) {
			if exists {
				us, err := s.remote.Update(ctx, owner, owner, fields)
				if !remote.IsNotFound(err) {
					return us, err
				}
			}
			return s.remote.Insert(ctx, next)
		})
		if err != nil {
			_ = s.cache.Rollback(tok)
			p.rollback(s.rolledBack(op, start, err))
			return
		}
		_, _ = s.cache.Reconcile(tok, stored)
		s.committed(op, start)
		p.commit(stored)
	})
	return p
}

// Update is the blocking form of UpdateAsync.
func (s *Settings) Update(ctx context.Context, patch domain.SettingsPatch) (domain.UserSettings, error) {
	return s.UpdateAsync(ctx, patch).Wait()
}
