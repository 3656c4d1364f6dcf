// Package note holds the NoteHub domain types shared by the backend, the
// gateway and the client side components.
package note

import (
	"time"

	"github.com/google/uuid"
)

// Tag is the category a note is filed under.
type Tag string

const (
	TagTodo     Tag = "Todo"
	TagWork     Tag = "Work"
	TagPersonal Tag = "Personal"
	TagMeeting  Tag = "Meeting"
	TagShopping Tag = "Shopping"
)

// AllTags is the sentinel route segment meaning "no tag filter".
const AllTags = "All"

// QueryNamespace groups every cached list query.
const QueryNamespace = "notes"

// Tags lists the fixed tag set in display order.
func Tags() []Tag {
	return []Tag{TagTodo, TagWork, TagPersonal, TagMeeting, TagShopping}
}

// Valid reports whether t is one of the known tags.
func (t Tag) Valid() bool {
	for _, known := range Tags() {
		if t == known {
			return true
		}
	}
	return false
}

func (t Tag) String() string { return string(t) }

// Field limits shared by client and backend validation.
const (
	TitleMinLength   = 3
	TitleMaxLength   = 50
	ContentMaxLength = 500
)

// Note is an immutable note as returned by the backend.
type Note struct {
	ID        uuid.UUID `json:"id" msgpack:"id"`
	Title     string    `json:"title" msgpack:"title"`
	Content   string    `json:"content" msgpack:"content"`
	Tag       Tag       `json:"tag" msgpack:"tag"`
	CreatedAt time.Time `json:"createdAt" msgpack:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" msgpack:"updated_at"`
}

// Draft is the payload used to create a note.
type Draft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Tag     Tag    `json:"tag"`
}

// InitialDraft returns the values a fresh creation form starts with.
func InitialDraft() Draft {
	return Draft{Tag: TagTodo}
}

// Page is one page of list results.
type Page struct {
	Notes      []Note `json:"notes" msgpack:"notes"`
	TotalPages int    `json:"totalPages" msgpack:"total_pages"`
}

// Filter paging defaults.
const (
	DefaultPerPage = 12
	MaxPerPage     = 48
)

// Filter describes a list query against the backend.
type Filter struct {
	Page    int
	PerPage int
	Search  string
	Tag     string
}

// Normalize clamps paging values into their accepted range.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	return f
}

// Offset is the number of rows skipped for the filter's page.
func (f Filter) Offset() int {
	f = f.Normalize()
	return (f.Page - 1) * f.PerPage
}

// TotalPages computes the page count for total rows at perPage rows per page.
func TotalPages(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
