package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/notesync/internal/cache"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/session"
)

func TestNewRefresher_Validation(t *testing.T) {
	te := newTestEngine(t, nil)
	_, err := NewRefresher(nil, DefaultRefresherConfig(), nil)
	assert.Error(t, err)
	_, err = NewRefresher(te.Engine, RefresherConfig{}, nil)
	assert.Error(t, err)
}

func TestRefreshOnce_PicksUpRemoteChanges(t *testing.T) {
	te := newTestEngine(t, nil)
	te.notes.Seed(domain.Note{ID: "a", OwnerID: user, Title: "a", CreatedAt: epoch})
	_, err := te.Notes(context.Background())
	require.NoError(t, err)

	// Another device adds a note.
	te.notes.Seed(domain.Note{ID: "b", OwnerID: user, Title: "b", CreatedAt: epoch})

	r, err := NewRefresher(te.Engine, DefaultRefresherConfig(), nil)
	require.NoError(t, err)
	refreshed := r.RefreshOnce(context.Background())
	assert.Equal(t, []string{cache.CollectionNotes}, refreshed, "only loaded collections refresh")

	notes, err := te.Notes(context.Background())
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestRefreshOnce_SkipsCollectionsWithPendingMutations(t *testing.T) {
	te := newTestEngine(t, nil)
	require.NoError(t, te.Warm(context.Background()))
	te.notes.SetLatency(100 * time.Millisecond)

	p := te.NoteMutations().CreateAsync(context.Background(), domain.NoteInput{Title: "draft"})

	r, err := NewRefresher(te.Engine, RefresherConfig{
		Interval:    time.Hour,
		Collections: []string{cache.CollectionNotes, cache.CollectionFolders},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{cache.CollectionFolders}, r.RefreshOnce(context.Background()))

	_, err = p.Wait()
	require.NoError(t, err)
	assert.Equal(t, []string{cache.CollectionNotes, cache.CollectionFolders}, r.RefreshOnce(context.Background()))
}

func TestRefreshOnce_SignedOut(t *testing.T) {
	te := newTestEngine(t, nil)
	require.NoError(t, te.Warm(context.Background()))
	te.sess.SignOut(session.ReasonUser)

	r, err := NewRefresher(te.Engine, DefaultRefresherConfig(), nil)
	require.NoError(t, err)
	assert.Empty(t, r.RefreshOnce(context.Background()))
}

func TestRefresher_StartStop(t *testing.T) {
	te := newTestEngine(t, nil)
	require.NoError(t, te.Warm(context.Background()))

	var mu sync.Mutex
	seen := map[string]int{}
	r, err := NewRefresher(te.Engine, RefresherConfig{Interval: 10 * time.Millisecond}, func(c string, err error) {
		assert.NoError(t, err)
		mu.Lock()
		seen[c]++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()), "second start fails")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[cache.CollectionSettings] >= 2
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	r.Stop()
}
