package promptlib

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/notesync/internal/domain"
)

const library = `
[[prompt]]
title = "Summarize"
category = "writing"
content = """
Summarize {{title}}:

{{content}}
"""

[[prompt]]
title = "Translate"
content = "Translate to French."
`

func TestDecode(t *testing.T) {
	lib, err := Decode(strings.NewReader(library))
	require.NoError(t, err)
	require.Len(t, lib.Prompts, 2)
	assert.Equal(t, "Summarize", lib.Prompts[0].Title)
	assert.Equal(t, "writing", lib.Prompts[0].Category)
	assert.Equal(t, "Summarize {{title}}:\n\n{{content}}\n", lib.Prompts[0].Content)
	assert.Empty(t, lib.Prompts[1].Category)
}

func TestDecode_Errors(t *testing.T) {
	tests := map[string]string{
		"syntax":        "[[prompt]\ntitle = 1",
		"unknown key":   "[[prompt]]\ntitle = \"a\"\ncontent = \"b\"\nauthor = \"me\"\n",
		"missing title": "[[prompt]]\ncontent = \"b\"\n",
		"empty content": "[[prompt]]\ntitle = \"a\"\ncontent = \"\"\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.toml")
	require.NoError(t, os.WriteFile(path, []byte(library), 0o644))
	lib, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, lib.Prompts, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEncodeRoundTrip(t *testing.T) {
	prompts := []domain.Prompt{
		{ID: "p1", Title: "Summarize", Content: "line one\nline \"two\"", Category: "writing"},
		{ID: "p2", Title: "Fix grammar", Content: "Fix it."},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, prompts))
	assert.Contains(t, buf.String(), "[[prompt]]")

	lib, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, lib.Prompts, 2)
	assert.Equal(t, prompts[0].Content, lib.Prompts[0].Content)
	assert.Equal(t, "Fix grammar", lib.Prompts[1].Title)
}

type fakeCreator struct {
	fail  map[string]error
	calls []string
}

func (f *fakeCreator) Create(_ context.Context, in domain.PromptInput) (domain.Prompt, error) {
	f.calls = append(f.calls, in.Title)
	if err := f.fail[in.Title]; err != nil {
		return domain.Prompt{}, err
	}
	return domain.Prompt{ID: "id-" + in.Title, Title: in.Title, Content: in.Content}, nil
}

func TestImport(t *testing.T) {
	lib := &Library{Prompts: []domain.PromptInput{
		{Title: "Summarize", Content: "a"},
		{Title: "Translate", Content: "b"},
		{Title: "Outline", Content: "c"},
		{Title: "outline ", Content: "d"},
	}}
	boom := errors.New("boom")
	c := &fakeCreator{fail: map[string]error{"Translate": boom}}
	existing := []domain.Prompt{{ID: "p1", Title: "SUMMARIZE"}}

	res := Import(context.Background(), c, existing, lib)
	assert.Equal(t, []string{"Translate", "Outline"}, c.calls)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "Outline", res.Created[0].Title)
	assert.Equal(t, []string{"Summarize", "outline "}, res.Skipped)
	assert.ErrorIs(t, res.Failed["Translate"], boom)
}

func TestImport_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &fakeCreator{}
	res := Import(ctx, c, nil, &Library{Prompts: []domain.PromptInput{{Title: "a", Content: "b"}}})
	assert.Empty(t, c.calls)
	assert.ErrorIs(t, res.Failed["a"], context.Canceled)
}
