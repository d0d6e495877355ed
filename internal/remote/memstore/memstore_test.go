package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/remote"
)

func TestInsertAssignsServerID(t *testing.T) {
	s := New[domain.Note]()
	ctx := context.Background()

	placeholder := domain.NewNote("u1", domain.NoteInput{Title: "Hello"}, time.Now())
	got, err := s.Insert(ctx, placeholder)
	require.NoError(t, err)
	assert.False(t, domain.IsPlaceholderID(got.ID))
	assert.Equal(t, "Hello", got.Title)

	// Explicit ids are kept and duplicates rejected.
	f := domain.Folder{ID: "f1", OwnerID: "u1", Name: "Work"}
	folders := New[domain.Folder]()
	_, err = folders.Insert(ctx, f)
	require.NoError(t, err)
	_, err = folders.Insert(ctx, f)
	assert.True(t, remote.IsDuplicate(err))
}

func TestSelectScopedAndNewestFirst(t *testing.T) {
	s := New[domain.Note]()
	s.Seed(
		domain.Note{ID: "1", OwnerID: "u1"},
		domain.Note{ID: "2", OwnerID: "u2"},
		domain.Note{ID: "3", OwnerID: "u1"},
	)
	got, err := s.Select(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "1", got[1].ID)
}

func TestUpdateAndDelete(t *testing.T) {
	s := New[domain.Note]()
	s.Seed(domain.Note{ID: "n1", OwnerID: "u1", Content: "x"})
	ctx := context.Background()

	got, err := s.Update(ctx, "n1", "u1", domain.Patch{domain.FieldContent: "#tagged"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tagged"}, got.Tags)

	_, err = s.Update(ctx, "n1", "someone-else", domain.Patch{})
	assert.ErrorIs(t, err, remote.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "n1", "u1"))
	require.NoError(t, s.Delete(ctx, "n1", "u1"), "delete is idempotent")
	assert.Equal(t, 0, s.Len())
}

func TestUpdateWhere(t *testing.T) {
	s := New[domain.Note]()
	f1, f2 := "f1", "f2"
	s.Seed(
		domain.Note{ID: "a", OwnerID: "u1", FolderID: &f1},
		domain.Note{ID: "b", OwnerID: "u1", FolderID: &f2},
		domain.Note{ID: "c", OwnerID: "u1", FolderID: &f1},
		domain.Note{ID: "d", OwnerID: "u2", FolderID: &f1},
		domain.Note{ID: "e", OwnerID: "u1"},
	)
	ctx := context.Background()

	n, err := s.UpdateWhere(ctx, "u1", []remote.Cond{remote.Eq(domain.FieldFolderID, "f1")}, domain.Patch{domain.FieldFolderID: nil})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, _ := s.Get("a")
	d, _ := s.Get("d")
	assert.Nil(t, a.FolderID)
	assert.NotNil(t, d.FolderID, "other owner untouched")

	n, err = s.UpdateWhere(ctx, "u1",
		[]remote.Cond{remote.In(domain.FieldID, "a", "b", "c"), remote.IsNull(domain.FieldFolderID)},
		domain.Patch{domain.FieldFolderID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only a and c are unfiled among a, b, c")
}

func TestFaults(t *testing.T) {
	s := New[domain.Note]()
	ctx := context.Background()
	boom := errors.New("boom")

	s.FailNext(OpSelect, boom, boom)
	_, err := s.Select(ctx, "u1")
	assert.ErrorIs(t, err, boom)
	_, err = s.Select(ctx, "u1")
	assert.ErrorIs(t, err, boom)
	_, err = s.Select(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 3, s.Calls(OpSelect))

	s.FailAlways(OpDelete, boom)
	assert.ErrorIs(t, s.Delete(ctx, "x", "u1"), boom)
	s.FailAlways(OpDelete, nil)
	assert.NoError(t, s.Delete(ctx, "x", "u1"))
}

func TestLatencyHonorsContext(t *testing.T) {
	s := New[domain.Note](WithLatency[domain.Note](time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Select(ctx, "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInjector(t *testing.T) {
	s := New[domain.Note]()
	ctx := context.Background()
	boom := errors.New("boom")
	var seen []string
	s.SetInjector(func(op string) error {
		seen = append(seen, op)
		if op == OpInsert {
			return boom
		}
		return nil
	})

	_, err := s.Insert(ctx, domain.Note{ID: "n1", OwnerID: "u1"})
	assert.ErrorIs(t, err, boom)
	_, err = s.Select(ctx, "u1")
	assert.NoError(t, err)

	s.FailNext(OpSelect, context.Canceled)
	_, err = s.Select(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{OpInsert, OpSelect}, seen, "scripted faults take precedence")

	s.SetInjector(nil)
	_, err = s.Insert(ctx, domain.Note{ID: "n1", OwnerID: "u1"})
	assert.NoError(t, err)
}

func TestDeleteFolderCascade(t *testing.T) {
	ctx := context.Background()
	folders, notes := New[domain.Folder](), New[domain.Note]()
	work := "work"
	folders.Seed(domain.Folder{ID: "work", OwnerID: "u1", Name: "Work"})
	notes.Seed(
		domain.Note{ID: "a", OwnerID: "u1", FolderID: &work},
		domain.Note{ID: "b", OwnerID: "u1"},
		domain.Note{ID: "c", OwnerID: "u2", FolderID: &work},
	)
	fs := NewFolders(folders, notes)

	boom := errors.New("boom")
	folders.FailNext(OpDelete, boom)
	_, err := fs.DeleteFolderCascade(ctx, "work", "u1")
	assert.ErrorIs(t, err, boom)
	a, _ := notes.Get("a")
	assert.True(t, a.InFolder("work"), "a failed cascade changes nothing")
	_, ok := folders.Get("work")
	assert.True(t, ok)

	n, err := fs.DeleteFolderCascade(ctx, "work", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	a, _ = notes.Get("a")
	assert.Nil(t, a.FolderID)
	c, _ := notes.Get("c")
	assert.True(t, c.InFolder("work"), "other owners untouched")
	_, ok = folders.Get("work")
	assert.False(t, ok)
	assert.Equal(t, 2, folders.Calls(OpDelete))
}
