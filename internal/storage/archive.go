// Package storage persists finished mythology documents for the CLI. The
// generation core never touches disk; only the command layer archives what
// the user accepts.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loreforge/loreforge/internal/myth"
)

// Archive stores documents as JSON files under a base directory. File names
// derive from the story title plus a timestamp, so repeated generations of
// the same myth never clobber each other.
type Archive struct {
	baseDir string
}

func NewArchive(baseDir string) *Archive {
	return &Archive{baseDir: baseDir}
}

// Save writes doc and returns the path of the created file, relative to the
// archive base directory.
func (a *Archive) Save(doc myth.MythDocument) (string, error) {
	if err := os.MkdirAll(a.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", slugify(doc.Story.Title), time.Now().Format("20060102-150405"))
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.baseDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	return name, nil
}

// Load reads a previously saved document by its archive-relative name.
func (a *Archive) Load(name string) (myth.MythDocument, error) {
	var doc myth.MythDocument

	path, err := a.resolve(name)
	if err != nil {
		return doc, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("reading document: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decoding document %s: %w", name, err)
	}
	return doc, nil
}

// List returns the archive-relative names of all stored documents, newest
// last.
func (a *Archive) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(a.baseDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	return names, nil
}

// resolve joins name onto the base directory, rejecting anything that would
// escape it.
func (a *Archive) resolve(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if strings.Contains(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	return filepath.Join(a.baseDir, cleaned), nil
}

// slugify reduces a story title to a safe file-name stem.
func slugify(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	lastDash := true
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "myth"
	}
	if len(s) > 48 {
		s = strings.TrimSuffix(s[:48], "-")
	}
	return s
}
