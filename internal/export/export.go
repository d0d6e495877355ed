// Package export writes notes to a directory tree of Markdown files with
// YAML front matter, one subdirectory per folder.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/notesync/internal/domain"
)

// UnfiledDir holds notes without a folder.
const UnfiledDir = "Unfiled"

// FrontMatter is the metadata block at the top of every exported file.
type FrontMatter struct {
	ID      string    `yaml:"id"`
	Title   string    `yaml:"title"`
	Folder  string    `yaml:"folder,omitempty"`
	Tags    []string  `yaml:"tags,omitempty"`
	Created time.Time `yaml:"created"`
	Updated time.Time `yaml:"updated"`
}

// Document is one exported note as read back from disk.
type Document struct {
	FrontMatter
	Content string
}

// Result summarizes an export.
type Result struct {
	Dir     string
	Files   []string // paths relative to Dir, sorted
	Folders int      // folder directories created, Unfiled included
}

// Options controls an export.
type Options struct {
	// Since skips notes last updated before it. Zero exports everything.
	Since time.Time
}

// Write exports notes into dir, creating it when needed. Existing files with
// the same names are overwritten; other files are left alone.
func Write(dir string, notes []domain.Note, folders []domain.Folder, opts Options) (*Result, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	names := folderDirs(folders)
	res := &Result{Dir: dir}
	made := make(map[string]bool)
	used := make(map[string]bool)

	for _, n := range notes {
		if !opts.Since.IsZero() && n.UpdatedAt.Before(opts.Since) {
			continue
		}
		sub, folderName := UnfiledDir, ""
		if n.FolderID != nil {
			if d, ok := names[*n.FolderID]; ok {
				sub, folderName = d.dir, d.name
			}
		}
		if !made[sub] {
			if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create folder directory %s: %w", sub, err)
			}
			made[sub] = true
			res.Folders++
		}

		rel := filepath.Join(sub, fileName(n, used))
		data, err := Render(n, folderName)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, rel), data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", rel, err)
		}
		res.Files = append(res.Files, rel)
	}
	sort.Strings(res.Files)
	return res, nil
}

// Render returns the Markdown file for n. folder is the name recorded in
// the front matter, empty for unfiled notes.
func Render(n domain.Note, folder string) ([]byte, error) {
	fm := FrontMatter{
		ID:      n.ID,
		Title:   n.Title,
		Folder:  folder,
		Tags:    n.Tags,
		Created: n.CreatedAt.UTC(),
		Updated: n.UpdatedAt.UTC(),
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("failed to encode front matter for %s: %w", n.ID, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode front matter for %s: %w", n.ID, err)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(n.Content)
	if !strings.HasSuffix(n.Content, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Parse reads a file produced by Render.
func Parse(data []byte) (*Document, error) {
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return nil, fmt.Errorf("missing front matter")
	}
	rest := data[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---\n"))
	if end < 0 {
		return nil, fmt.Errorf("unterminated front matter")
	}

	var doc Document
	if err := yaml.Unmarshal(rest[:end], &doc.FrontMatter); err != nil {
		return nil, fmt.Errorf("failed to parse front matter: %w", err)
	}
	doc.Content = strings.TrimPrefix(string(rest[end+len("\n---\n"):]), "\n")
	return &doc, nil
}

// ReadFile parses the exported file at path.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

type folderDir struct {
	name string
	dir  string
}

// folderDirs maps folder ids to unique directory names. Folders whose
// sanitized names collide get their id appended.
func folderDirs(folders []domain.Folder) map[string]folderDir {
	sorted := append([]domain.Folder(nil), folders...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	taken := map[string]bool{strings.ToLower(UnfiledDir): true}
	out := make(map[string]folderDir, len(sorted))
	for _, f := range sorted {
		d := slug(f.Name)
		if d == "" {
			d = "folder"
		}
		if taken[strings.ToLower(d)] {
			d = d + "-" + shortID(f.ID)
		}
		taken[strings.ToLower(d)] = true
		out[f.ID] = folderDir{name: f.Name, dir: d}
	}
	return out
}

func fileName(n domain.Note, used map[string]bool) string {
	base := slug(n.Title)
	if base == "" {
		base = "untitled"
	}
	name := base + "-" + shortID(n.ID) + ".md"
	for i := 2; used[name]; i++ {
		name = fmt.Sprintf("%s-%s-%d.md", base, shortID(n.ID), i)
	}
	used[name] = true
	return name
}

// slug keeps letters and digits, turning every other run of characters
// into a single dash.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := []rune(strings.TrimSuffix(b.String(), "-"))
	if len(out) > 60 {
		out = out[:60]
	}
	return strings.TrimSuffix(string(out), "-")
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
