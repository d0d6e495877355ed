// Package promptlib reads and writes prompt libraries: TOML files holding a
// list of saved prompts.
//
//	[[prompt]]
//	title = "Summarize"
//	category = "writing"
//	content = """
//	Summarize {{title}} in three bullet points:
//
//	{{content}}
//	"""
package promptlib

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mschirtzinger/notesync/internal/domain"
)

// Library is the decoded form of a prompt library file.
type Library struct {
	Prompts []domain.PromptInput `toml:"prompt"`
}

// Decode reads a library from r and validates every prompt in it.
func Decode(r io.Reader) (*Library, error) {
	var lib Library
	md, err := toml.NewDecoder(r).Decode(&lib)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt library: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in prompt library: %s", strings.Join(keys, ", "))
	}
	for i, p := range lib.Prompts {
		if err := domain.Validate(p); err != nil {
			return nil, fmt.Errorf("prompt %d (%q): %w", i+1, p.Title, err)
		}
	}
	return &lib, nil
}

// Load reads the library file at path.
func Load(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt library: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Encode writes prompts to w as a library.
func Encode(w io.Writer, prompts []domain.Prompt) error {
	lib := Library{Prompts: make([]domain.PromptInput, len(prompts))}
	for i, p := range prompts {
		lib.Prompts[i] = domain.PromptInput{Title: p.Title, Content: p.Content, Category: p.Category}
	}
	if err := toml.NewEncoder(w).Encode(lib); err != nil {
		return fmt.Errorf("failed to encode prompt library: %w", err)
	}
	return nil
}

// Creator creates one prompt. *mutation.Prompts satisfies it.
type Creator interface {
	Create(ctx context.Context, in domain.PromptInput) (domain.Prompt, error)
}

// Result summarizes an import.
type Result struct {
	Created []domain.Prompt
	Skipped []string // titles already present
	Failed  map[string]error
}

// Import creates every prompt of lib whose title (compared without case)
// is not in existing. A failure does not stop the import; it is recorded in
// Result.Failed under the prompt's title.
func Import(ctx context.Context, c Creator, existing []domain.Prompt, lib *Library) *Result {
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[strings.ToLower(strings.TrimSpace(p.Title))] = true
	}

	res := &Result{Failed: make(map[string]error)}
	for _, in := range lib.Prompts {
		key := strings.ToLower(strings.TrimSpace(in.Title))
		if have[key] {
			res.Skipped = append(res.Skipped, in.Title)
			continue
		}
		if ctx.Err() != nil {
			res.Failed[in.Title] = ctx.Err()
			continue
		}
		p, err := c.Create(ctx, in)
		if err != nil {
			res.Failed[in.Title] = err
			continue
		}
		have[key] = true
		res.Created = append(res.Created, p)
	}
	return res
}
