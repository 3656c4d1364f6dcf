package listview

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/query"
)

// Styles are the lipgloss styles used by Render.
type Styles struct {
	Header  lipgloss.Style
	Title   lipgloss.Style
	Tag     lipgloss.Style
	Content lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Underline(true),
		Title:   lipgloss.NewStyle().Bold(true),
		Tag:     lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Padding(0, 1),
		Content: lipgloss.NewStyle().PaddingLeft(2),
		Muted:   lipgloss.NewStyle().Faint(true),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}

// Render writes the current state to w. Loading, failure and results each
// have their own output; a page kept from the previous fingerprint is marked
// as updating.
func (v *View) Render(w io.Writer) error {
	state := v.State()
	_, err := io.WriteString(w, v.styles.render(state))
	return err
}

func (s Styles) render(state State) string {
	var b strings.Builder
	b.WriteString(s.Header.Render(heading(state.Fingerprint)))
	b.WriteString("\n")

	page, ok := state.Page()
	switch {
	case state.Entry.Status == query.StatusError:
		msg := "unknown error"
		if state.Entry.Err != nil {
			msg = state.Entry.Err.Error()
		}
		b.WriteString(s.Error.Render("Could not load notes: " + msg))
		b.WriteString("\n")
		return b.String()
	case !ok:
		b.WriteString(s.Muted.Render("Loading notes..."))
		b.WriteString("\n")
		return b.String()
	}

	if state.Entry.Status == query.StatusPending || state.Entry.Fetching {
		b.WriteString(s.Muted.Render("Updating..."))
		b.WriteString("\n")
	}

	if len(page.Notes) == 0 {
		b.WriteString(s.Muted.Render("No notes found"))
		b.WriteString("\n")
		return b.String()
	}

	for _, n := range page.Notes {
		b.WriteString(s.renderNote(n))
	}
	b.WriteString(s.Muted.Render(fmt.Sprintf("Page %d of %d", state.Fingerprint.Page, max(page.TotalPages, 1))))
	b.WriteString("\n")
	return b.String()
}

func (s Styles) renderNote(n note.Note) string {
	line := lipgloss.JoinHorizontal(lipgloss.Top, s.Title.Render(n.Title), " ", s.Tag.Render("["+string(n.Tag)+"]"))
	out := line + "\n"
	if n.Content != "" {
		out += s.Content.Render(n.Content) + "\n"
	}
	return out
}

func heading(fp query.Fingerprint) string {
	tag := fp.Tag
	if tag == "" {
		tag = note.AllTags
	}
	h := "Notes: " + tag
	if fp.Query != "" {
		h += fmt.Sprintf(" matching %q", fp.Query)
	}
	return h
}
