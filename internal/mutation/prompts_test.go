package mutation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/notesync/internal/cache"
	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/remote"
	"github.com/mschirtzinger/notesync/internal/remote/memstore"
)

func seedPrompts(h *harness, prompts ...domain.Prompt) {
	h.remotePrompts.Seed(prompts...)
	h.promptCache.Set(cache.Key{Collection: cache.CollectionPrompts, Owner: testOwner}, prompts)
	h.hiddenCache.Set(cache.Key{Collection: cache.CollectionHidden, Owner: testOwner}, nil)
}

func prompt(id, title string) domain.Prompt {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.Prompt{ID: id, OwnerID: testOwner, Title: title, Content: "Summarize {{content}}", CreatedAt: ts, UpdatedAt: ts}
}

func TestPromptsCreateUpdateDelete(t *testing.T) {
	h := newHarness(t)
	seedPrompts(h)

	p, err := h.prompts.Create(h.ctx, domain.PromptInput{Title: "Summarize", Content: "Summarize {{content}}", Category: "writing"})
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)

	p, err = h.prompts.Update(h.ctx, p.ID, domain.PromptPatch{Category: domain.StringPtr("work")})
	require.NoError(t, err)
	assert.Equal(t, "work", p.Category)

	require.NoError(t, h.prompts.Hide(h.ctx, p.ID))
	require.NoError(t, h.prompts.Delete(h.ctx, p.ID))
	assert.Empty(t, h.prompts.Visible(testOwner))
	assert.False(t, h.prompts.IsHidden(testOwner, p.ID), "marker removed with the prompt")
	assert.Zero(t, h.remoteHidden.Len())
}

func TestPromptsCreate_Validation(t *testing.T) {
	h := newHarness(t)
	_, err := h.prompts.Create(h.ctx, domain.PromptInput{Title: "no content"})
	assert.Equal(t, classify.KindValidation, classify.KindOf(err))
	assert.Zero(t, h.remotePrompts.Calls(memstore.OpInsert))
}

func TestPromptsHideShow(t *testing.T) {
	h := newHarness(t)
	seedPrompts(h, prompt("p1", "one"), prompt("p2", "two"))

	p := h.prompts.HideAsync(h.ctx, "p1")
	assert.True(t, h.prompts.IsHidden(testOwner, "p1"), "hidden optimistically")
	_, err := p.Wait()
	require.NoError(t, err)

	visible := h.prompts.Visible(testOwner)
	require.Len(t, visible, 1)
	assert.Equal(t, "p2", visible[0].ID)

	// Hiding again is a no-op.
	again := h.prompts.HideAsync(h.ctx, "p1")
	assert.Equal(t, StateCommitted, again.State())
	assert.Equal(t, 1, h.remoteHidden.Calls(memstore.OpInsert))

	require.NoError(t, h.prompts.Show(h.ctx, "p1"))
	assert.False(t, h.prompts.IsHidden(testOwner, "p1"))
	assert.Len(t, h.prompts.Visible(testOwner), 2)

	// Showing a visible prompt is a no-op.
	require.NoError(t, h.prompts.Show(h.ctx, "p2"))
	assert.Equal(t, 1, h.remoteHidden.Calls(memstore.OpDelete))
}

func TestPromptsHide_DuplicateMarkerIsSuccess(t *testing.T) {
	h := newHarness(t)
	seedPrompts(h, prompt("p1", "one"))
	h.remoteHidden.Seed(domain.HiddenPrompt{PromptID: "p1", OwnerID: testOwner})

	require.NoError(t, h.prompts.Hide(h.ctx, "p1"))
	assert.True(t, h.prompts.IsHidden(testOwner, "p1"))
}

func TestPromptsHide_FailureRollsBack(t *testing.T) {
	h := newHarness(t)
	seedPrompts(h, prompt("p1", "one"))
	h.remoteHidden.FailNext(memstore.OpInsert, &remote.Error{Code: "42501", Message: "permission denied"})

	err := h.prompts.Hide(h.ctx, "p1")
	assert.Equal(t, classify.KindPermission, classify.KindOf(err))
	assert.False(t, h.prompts.IsHidden(testOwner, "p1"))
}

func TestPromptsHide_UnknownPrompt(t *testing.T) {
	h := newHarness(t)
	seedPrompts(h)
	err := h.prompts.Hide(h.ctx, "missing")
	assert.ErrorIs(t, err, classify.ErrNotFound)
}
