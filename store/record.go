package store

import (
	"time"

	"github.com/goliatone/go-notehub/note"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record is the notes table row.
type Record struct {
	bun.BaseModel `bun:"table:notes,alias:n"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Title     string    `bun:"title,notnull"`
	Content   string    `bun:"content,notnull"`
	Tag       string    `bun:"tag,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// Note converts the row into the domain type.
func (r *Record) Note() note.Note {
	return note.Note{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		Tag:       note.Tag(r.Tag),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newRecord(d note.Draft, now time.Time) *Record {
	return &Record{
		Title:     d.Title,
		Content:   d.Content,
		Tag:       string(d.Tag),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Handlers are the go-repository-bun model handlers for Record.
func Handlers() repository.ModelHandlers[*Record] {
	return repository.ModelHandlers[*Record]{
		NewRecord: func() *Record { return &Record{} },
		GetID: func(r *Record) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Record, id uuid.UUID) {
			r.ID = id
		},
		GetIdentifier: func() string {
			return "title"
		},
	}
}

// NewRepository builds the notes repository on db.
func NewRepository(db *bun.DB) repository.Repository[*Record] {
	return repository.NewRepository(db, Handlers())
}
