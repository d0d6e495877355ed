package mutation

import (
	"context"
	"time"

	"github.com/mschirtzinger/notesync/internal/cache"
	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/remote"
)

// Prompts coordinates mutations of saved AI prompts and their hidden
// markers.
type Prompts struct {
	*core
	cache        *cache.Store[domain.Prompt]
	hidden       *cache.Store[domain.HiddenPrompt]
	remote       remote.Store[domain.Prompt]
	remoteHidden remote.Store[domain.HiddenPrompt]
}

// NewPrompts returns the prompt coordinator.
func NewPrompts(d Deps, prompts *cache.Store[domain.Prompt], hidden *cache.Store[domain.HiddenPrompt],
	r remote.Store[domain.Prompt], rh remote.Store[domain.HiddenPrompt]) *Prompts {
	return &Prompts{core: newCore(d), cache: prompts, hidden: hidden, remote: r, remoteHidden: rh}
}

func (pc *Prompts) key(owner string) cache.Key {
	return cache.Key{Collection: cache.CollectionPrompts, Owner: owner}
}

func (pc *Prompts) hiddenKey(owner string) cache.Key {
	return cache.Key{Collection: cache.CollectionHidden, Owner: owner}
}

func (pc *Prompts) checkTarget(op, owner, id string) error {
	if domain.IsPlaceholderID(id) {
		if pc.cache.Has(pc.key(owner), id) {
			return classify.Pending(op, "prompt", id)
		}
		return classify.NotFound(op, "prompt", id)
	}
	if !pc.cache.Has(pc.key(owner), id) {
		return classify.NotFound(op, "prompt", id)
	}
	return nil
}

// IsHidden reports whether the owner has hidden prompt id.
func (pc *Prompts) IsHidden(owner, id string) bool {
	return pc.hidden.Has(pc.hiddenKey(owner), id)
}

// Visible returns the owner's cached prompts that are not hidden.
func (pc *Prompts) Visible(owner string) []domain.Prompt {
	all, _ := pc.cache.Get(pc.key(owner))
	out := make([]domain.Prompt, 0, len(all))
	for _, p := range all {
		if !pc.IsHidden(owner, p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// CreateAsync inserts a placeholder prompt and creates it remotely.
func (pc *Prompts) CreateAsync(ctx context.Context, in domain.PromptInput) *Pending[domain.Prompt] {
	const op = "prompts.create"
	owner, err := pc.owner(op)
	if err != nil {
		return rejected[domain.Prompt](pc.reject(op, err))
	}
	if err := pc.validate(op, in); err != nil {
		return rejected[domain.Prompt](pc.reject(op, err))
	}

	start := time.Now()
	draft := domain.NewPrompt(owner, in, pc.now())
	tok, err := pc.cache.ApplyOptimistic(pc.key(owner), op, func(tx *cache.Tx[domain.Prompt]) error {
		tx.Insert(draft)
		return nil
	})
	if err != nil {
		return rejected[domain.Prompt](pc.reject(op, err))
	}

	p := newPending(draft)
	pc.background(func() {
		saved, err := call(ctx, pc.core, "prompts.insert", func(ctx context.Context) (domain.Prompt, error) {
			return pc.remote.Insert(ctx, draft)
		})
		if err != nil {
			_ = pc.cache.Rollback(tok)
			p.rollback(pc.rolledBack(op, start, err))
			return
		}
		_, _ = pc.cache.Commit(tok, draft.ID, saved)
		pc.committed(op, start)
		p.commit(saved)
	})
	return p
}

// Create is the blocking form of CreateAsync.
func (pc *Prompts) Create(ctx context.Context, in domain.PromptInput) (domain.Prompt, error) {
	return pc.CreateAsync(ctx, in).Wait()
}

// UpdateAsync merges patch into the cached prompt and updates it remotely.
func (pc *Prompts) UpdateAsync(ctx context.Context, id string, patch domain.PromptPatch) *Pending[domain.Prompt] {
	const op = "prompts.update"
	owner, err := pc.owner(op)
	if err != nil {
		return rejected[domain.Prompt](pc.reject(op, err))
	}
	if patch.IsEmpty() {
		return rejected[domain.Prompt](pc.reject(op, classify.Invalid(op, errNothingToUpdate)))
	}
	if err := pc.validate(op, patch); err != nil {
		return rejected[domain.Prompt](pc.reject(op, err))
	}
	if err := pc.checkTarget(op, owner, id); err != nil {
		return rejected[domain.Prompt](pc.reject(op, err))
	}

	start := time.Now()
	fields := patch.Patch(pc.now())
	var updated domain.Prompt
	tok, err := pc.cache.ApplyOptimistic(pc.key(owner), op, func(tx *cache.Tx[domain.Prompt]) error {
		if !tx.Update(id, func(cur domain.Prompt) domain.Prompt {
			updated = cur.Apply(fields)
			return updated
		}) {
			return classify.NotFound(op, "prompt", id)
		}
		return nil
	})
	if err != nil {
		return rejected[domain.Prompt](pc.reject(op, err))
	}

	p := newPending(updated)
	pc.background(func() {
		stored, err := call(ctx, pc.core, "prompts.update", func(ctx context.Context) (domain.Prompt, error) {
			return pc.remote.Update(ctx, id, owner, fields)
		})
		if err != nil {
			_ = pc.cache.Rollback(tok)
			p.rollback(pc.rolledBack(op, start, err))
			return
		}
		_, _ = pc.cache.Reconcile(tok, stored)
		pc.committed(op, start)
		p.commit(stored)
	})
	return p
}

// Update is the blocking form of UpdateAsync.
func (pc *Prompts) Update(ctx context.Context, id string, patch domain.PromptPatch) (domain.Prompt, error) {
	return pc.UpdateAsync(ctx, id, patch).Wait()
}

// DeleteAsync removes the prompt, and its hidden marker if any, and deletes
// both remotely.
func (pc *Prompts) DeleteAsync(ctx context.Context, id string) *Pending[domain.Prompt] {
	const op = "prompts.delete"
	owner, err := pc.owner(op)
	if err != nil {
		return rejected[domain.Prompt](pc.reject(op, err))
	}
	if err := pc.checkTarget(op, owner, id); err != nil {
		return rejected[domain.Prompt](pc.reject(op, err))
	}

	start := time.Now()
	var removed domain.Prompt
	tok, err := pc.cache.ApplyOptimistic(pc.key(owner), op, func(tx *cache.Tx[domain.Prompt]) error {
		v, ok := tx.Get(id)
		if !ok {
			return classify.NotFound(op, "prompt", id)
		}
		removed = v
		tx.Remove(id)
		return nil
	})
	if err != nil {
		return rejected[domain.Prompt](pc.reject(op, err))
	}
	hiddenTok, err := pc.hidden.ApplyOptimistic(pc.hiddenKey(owner), op, func(tx *cache.Tx[domain.HiddenPrompt]) error {
		tx.Remove(id)
		return nil
	})
	if err != nil {
		_ = pc.cache.Rollback(tok)
		return rejected[domain.Prompt](pc.reject(op, err))
	}

	p := newPending(removed)
	pc.background(func() {
		err := callErr(ctx, pc.core, "prompts.delete", func(ctx context.Context) error {
			return pc.remote.Delete(ctx, id, owner)
		})
		if err == nil {
			err = callErr(ctx, pc.core, "hidden_prompts.delete", func(ctx context.Context) error {
				return pc.remoteHidden.Delete(ctx, id, owner)
			})
		}
		if err != nil {
			_ = pc.hidden.Rollback(hiddenTok)
			_ = pc.cache.Rollback(tok)
			p.rollback(pc.rolledBack(op, start, err))
			return
		}
		_ = pc.hidden.Settle(hiddenTok)
		_ = pc.cache.Settle(tok)
		pc.committed(op, start)
		p.commit(removed)
	})
	return p
}

// Delete is the blocking form of DeleteAsync.
func (pc *Prompts) Delete(ctx context.Context, id string) error {
	_, err := pc.DeleteAsync(ctx, id).Wait()
	return err
}

// HideAsync hides prompt id. Hiding a hidden prompt succeeds without
// changes, and a marker the store already has counts as success.
func (pc *Prompts) HideAsync(ctx context.Context, id string) *Pending[domain.HiddenPrompt] {
	const op = "prompts.hide"
	owner, err := pc.owner(op)
	if err != nil {
		return rejected[domain.HiddenPrompt](pc.reject(op, err))
	}
	if err := pc.checkTarget(op, owner, id); err != nil {
		return rejected[domain.HiddenPrompt](pc.reject(op, err))
	}
	if existing, ok := pc.hidden.Lookup(pc.hiddenKey(owner), id); ok {
		return settled(existing)
	}

	start := time.Now()
	marker := domain.HiddenPrompt{PromptID: id, OwnerID: owner, CreatedAt: pc.now()}
	tok, err := pc.hidden.ApplyOptimistic(pc.hiddenKey(owner), op, func(tx *cache.Tx[domain.HiddenPrompt]) error {
		tx.Insert(marker)
		return nil
	})
	if err != nil {
		return rejected[domain.HiddenPrompt](pc.reject(op, err))
	}

	p := newPending(marker)
	pc.background(func() {
		saved, err := call(ctx, pc.core, "hidden_prompts.insert", func(ctx context.Context) (domain.HiddenPrompt, error) {
			h, err := pc.remoteHidden.Insert(ctx, marker)
			if remote.IsDuplicate(err) {
				return marker, nil
			}
			return h, err
		})
		if err != nil {
			_ = pc.hidden.Rollback(tok)
			p.rollback(pc.rolledBack(op, start, err))
			return
		}
		_ = pc.hidden.Settle(tok)
		pc.committed(op, start)
		p.commit(saved)
	})
	return p
}

// Hide is the blocking form of HideAsync.
func (pc *Prompts) Hide(ctx context.Context, id string) error {
	_, err := pc.HideAsync(ctx, id).Wait()
	return err
}

// ShowAsync removes the hidden marker of prompt id. Showing a visible prompt
// succeeds without changes.
func (pc *Prompts) ShowAsync(ctx context.Context, id string) *Pending[domain.HiddenPrompt] {
	const op = "prompts.show"
	owner, err := pc.owner(op)
	if err != nil {
		return rejected[domain.HiddenPrompt](pc.reject(op, err))
	}
	marker, ok := pc.hidden.Lookup(pc.hiddenKey(owner), id)
	if !ok {
		return settled(domain.HiddenPrompt{PromptID: id, OwnerID: owner})
	}

	start := time.Now()
	tok, err := pc.hidden.ApplyOptimistic(pc.hiddenKey(owner), op, func(tx *cache.Tx[domain.HiddenPrompt]) error {
		tx.Remove(id)
		return nil
	})
	if err != nil {
		return rejected[domain.HiddenPrompt](pc.reject(op, err))
	}

	p := newPending(marker)
	pc.background(func() {
		err := callErr(ctx, pc.core, "hidden_prompts.delete", func(ctx context.Context) error {
			return pc.remoteHidden.Delete(ctx, id, owner)
		})
		if err != nil {
			_ = pc.hidden.Rollback(tok)
			p.rollback(pc.rolledBack(op, start, err))
			return
		}
		_ = pc.hidden.Settle(tok)
		pc.committed(op, start)
		p.commit(marker)
	})
	return p
}

// Show is the blocking form of ShowAsync.
func (pc *Prompts) Show(ctx context.Context, id string) error {
	_, err := pc.ShowAsync(ctx, id).Wait()
	return err
}
