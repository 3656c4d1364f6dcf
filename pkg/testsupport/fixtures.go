// Package testsupport holds fixtures and fakes shared by package tests.
package testsupport

import (
	_ "embed"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/goliatone/go-notehub/note"
)

//go:embed testdata/notes.json
var sampleNotes []byte

// SampleNotes returns six notes, one or more per tag, oldest first.
func SampleNotes(t testing.TB) []note.Note {
	t.Helper()

	var notes []note.Note
	if err := json.Unmarshal(sampleNotes, &notes); err != nil {
		t.Fatalf("decode sample notes: %v", err)
	}
	return notes
}

// FilterNotes applies a list query the way the backend does: newest first,
// tag matched exactly, search matched case insensitively on title or content.
func FilterNotes(notes []note.Note, f note.Filter) note.Page {
	f = f.Normalize()
	search := strings.ToLower(f.Search)

	var matched []note.Note
	for i := len(notes) - 1; i >= 0; i-- {
		n := notes[i]
		if f.Tag != "" && string(n.Tag) != f.Tag {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(n.Title), search) &&
			!strings.Contains(strings.ToLower(n.Content), search) {
			continue
		}
		matched = append(matched, n)
	}

	page := note.Page{Notes: []note.Note{}, TotalPages: note.TotalPages(len(matched), f.PerPage)}
	start := f.Offset()
	if start >= len(matched) {
		return page
	}
	end := min(start+f.PerPage, len(matched))
	page.Notes = append(page.Notes, matched[start:end]...)
	return page
}

// LoadFixtureJSON decodes a JSON file relative to the calling package.
func LoadFixtureJSON(t testing.TB, path string, dest any) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("load fixture %s: %v", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("decode fixture %s: %v", path, err)
	}
}
