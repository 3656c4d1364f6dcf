package testsupport

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-notehub/note"
	"github.com/google/uuid"
)

// ListCall records one ListNotes invocation.
type ListCall struct {
	Page  int
	Query string
	Tag   string
}

// FakeGateway is an in-memory notes API that counts calls. ListErr and
// CreateErr, when set, are returned instead of results. A non-nil Gate
// blocks ListNotes until it is closed or receives.
type FakeGateway struct {
	mu        sync.Mutex
	notes     []note.Note
	lists     []ListCall
	creates   []note.Draft
	ListErr   error
	CreateErr error
	Gate      chan struct{}
	Now       func() time.Time
}

// NewFakeGateway seeds the fake with notes, oldest first.
func NewFakeGateway(notes ...note.Note) *FakeGateway {
	return &FakeGateway{notes: append([]note.Note(nil), notes...), Now: time.Now}
}

func (g *FakeGateway) ListNotes(ctx context.Context, page int, query, tag string) (note.Page, error) {
	g.mu.Lock()
	g.lists = append(g.lists, ListCall{Page: page, Query: query, Tag: tag})
	gate := g.Gate
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return note.Page{}, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ListErr != nil {
		return note.Page{}, g.ListErr
	}
	return FilterNotes(g.notes, note.Filter{Page: page, Search: query, Tag: tag}), nil
}

func (g *FakeGateway) CreateNote(ctx context.Context, draft note.Draft) (note.Note, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.creates = append(g.creates, draft)
	if g.CreateErr != nil {
		return note.Note{}, g.CreateErr
	}

	now := g.Now().UTC()
	created := note.Note{
		ID:        uuid.New(),
		Title:     draft.Title,
		Content:   draft.Content,
		Tag:       draft.Tag,
		CreatedAt: now,
		UpdatedAt: now,
	}
	g.notes = append(g.notes, created)
	return created, nil
}

// ListCalls returns every ListNotes call so far.
func (g *FakeGateway) ListCalls() []ListCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ListCall(nil), g.lists...)
}

// Creates returns every draft passed to CreateNote.
func (g *FakeGateway) Creates() []note.Draft {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]note.Draft(nil), g.creates...)
}
