package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/notesync/internal/domain"
)

var epoch = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	folders := []domain.Folder{
		{ID: "f1", Name: "Work Stuff"},
		{ID: "f2", Name: "work stuff!"},
	}
	notes := []domain.Note{
		{ID: "n1", Title: "Plan: Q2", Content: "ship it #work", FolderID: domain.StringPtr("f1"),
			Tags: []string{"work"}, CreatedAt: epoch, UpdatedAt: epoch},
		{ID: "n2", Title: "", Content: "loose thought", CreatedAt: epoch, UpdatedAt: epoch},
		{ID: "n3", Title: "Other", Content: "x\n", FolderID: domain.StringPtr("f2"), CreatedAt: epoch, UpdatedAt: epoch},
		{ID: "n4", Title: "Gone folder", FolderID: domain.StringPtr("deleted"), CreatedAt: epoch, UpdatedAt: epoch},
	}

	res, err := Write(dir, notes, folders, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("Unfiled", "gone-folder-n4.md"),
		filepath.Join("Unfiled", "untitled-n2.md"),
		filepath.Join("work-stuff-f2", "other-n3.md"),
		filepath.Join("work-stuff", "plan-q2-n1.md"),
	}, res.Files, "sorted bytewise, and '-' sorts before the separator")
	assert.Equal(t, 3, res.Folders)

	doc, err := ReadFile(filepath.Join(dir, "work-stuff", "plan-q2-n1.md"))
	require.NoError(t, err)
	assert.Equal(t, "n1", doc.ID)
	assert.Equal(t, "Plan: Q2", doc.Title)
	assert.Equal(t, "Work Stuff", doc.Folder)
	assert.Equal(t, []string{"work"}, doc.Tags)
	assert.True(t, doc.Created.Equal(epoch))
	assert.Equal(t, "ship it #work\n", doc.Content)

	doc, err = ReadFile(filepath.Join(dir, "Unfiled", "untitled-n2.md"))
	require.NoError(t, err)
	assert.Empty(t, doc.Folder)
}

func TestWrite_Since(t *testing.T) {
	dir := t.TempDir()
	notes := []domain.Note{
		{ID: "old", Title: "old", UpdatedAt: epoch},
		{ID: "new", Title: "new", UpdatedAt: epoch.Add(48 * time.Hour)},
	}
	res, err := Write(dir, notes, nil, Options{Since: epoch.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("Unfiled", "new-new.md")}, res.Files)
}

func TestWrite_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	notes := []domain.Note{
		{ID: "abcdefgh-1", Title: "Same"},
		{ID: "abcdefgh-2", Title: "Same"},
	}
	res, err := Write(dir, notes, nil, Options{})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.NotEqual(t, res.Files[0], res.Files[1])
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("no front matter"))
	assert.Error(t, err)
	_, err = Parse([]byte("---\nid: x\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("---\nid: [\n---\n"))
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.md"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Hello, World!":   "hello-world",
		"  spaced  out ":  "spaced-out",
		"Ünïcode Ñotes":   "ünïcode-ñotes",
		"---":             "",
		"a/b\\c":          "a-b-c",
		"2025 plan (v2)":  "2025-plan-v2",
	}
	for in, want := range tests {
		assert.Equal(t, want, slug(in), in)
	}
}
