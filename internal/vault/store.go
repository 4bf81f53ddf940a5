// Package vault implements the note store: a folder of markdown files
// whose YAML frontmatter carries the mirrored event fields. All paths in
// the API are vault-relative with forward slashes.
package vault

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter field names produced and consumed by the sync engine. The
// start/end keys are configurable and passed in by callers; these are the
// fixed ones.
const (
	KeyRemoteID  = "googleEventId"
	KeyTitle     = "title"
	KeyAllDay    = "allDay"
	KeyCancelled = "cancelled"
	KeyStatus    = "status"
	KeyTags      = "tags"
)

// Frontmatter is the duck-typed key-value block at the top of a note.
type Frontmatter map[string]any

// Store reads and writes notes under a vault root directory.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

func (s *Store) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// ListNotes enumerates every markdown note in the vault, sorted for
// deterministic cycles.
func (s *Store) ListNotes() ([]string, error) {
	var notes []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, rerr := filepath.Rel(s.root, path)
		if rerr != nil {
			return rerr
		}
		notes = append(notes, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(notes)
	return notes, nil
}

// ReadNote parses a note into its frontmatter and body. A note without a
// frontmatter block yields an empty Frontmatter and the full content as
// body.
func (s *Store) ReadNote(rel string) (Frontmatter, string, error) {
	data, err := os.ReadFile(s.abs(rel))
	if err != nil {
		return nil, "", err
	}
	return parseNote(string(data))
}

// UpdateFrontmatter atomically read-modify-writes a note's frontmatter.
// The mutate function receives the current frontmatter and edits it in
// place; the body is preserved byte for byte.
func (s *Store) UpdateFrontmatter(rel string, mutate func(Frontmatter)) error {
	fm, body, err := s.ReadNote(rel)
	if err != nil {
		return err
	}
	if fm == nil {
		fm = Frontmatter{}
	}
	mutate(fm)
	content, err := renderNote(fm, body)
	if err != nil {
		return err
	}
	return os.WriteFile(s.abs(rel), []byte(content), 0o644)
}

// CreateNote writes a new note, creating parent folders as needed. It
// fails if the path already exists.
func (s *Store) CreateNote(rel string, fm Frontmatter, body string) error {
	abs := s.abs(rel)
	if _, err := os.Stat(abs); err == nil {
		return errors.New("note already exists: " + rel)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	content, err := renderNote(fm, body)
	if err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(content), 0o644)
}

// Rename moves a note, creating the destination folder as needed.
func (s *Store) Rename(oldRel, newRel string) error {
	if err := os.MkdirAll(filepath.Dir(s.abs(newRel)), 0o755); err != nil {
		return err
	}
	return os.Rename(s.abs(oldRel), s.abs(newRel))
}

// Delete removes a note.
func (s *Store) Delete(rel string) error {
	return os.Remove(s.abs(rel))
}

// EnsureFolder creates a vault-relative folder.
func (s *Store) EnsureFolder(rel string) error {
	return os.MkdirAll(s.abs(rel), 0o755)
}

// Exists reports whether a note is present at the given path.
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(s.abs(rel))
	return err == nil
}

// parseNote splits a markdown document into frontmatter and body. The
// frontmatter block is delimited by "---" lines at the very top.
func parseNote(content string) (Frontmatter, string, error) {
	if !strings.HasPrefix(content, "---\n") && content != "---" {
		return Frontmatter{}, content, nil
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Frontmatter{}, content, nil
	}
	block := rest[:end]
	body := rest[end+4:]
	body = strings.TrimPrefix(body, "\n")

	fm := Frontmatter{}
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, "", err
	}
	return fm, body, nil
}

// renderNote serializes frontmatter and body back into a document. An
// empty frontmatter produces a bare body so plain notes stay plain.
func renderNote(fm Frontmatter, body string) (string, error) {
	if len(fm) == 0 {
		return body, nil
	}
	data, err := yaml.Marshal(fm)
	if err != nil {
		return "", err
	}
	return "---\n" + string(data) + "---\n" + body, nil
}
