package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-notehub/cache"
	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/repositorycache"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open(Config{
		Driver: DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

// steppingClock advances one minute per call.
func steppingClock() func() time.Time {
	current := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
}

func seedNotes(t *testing.T, notes *Notes, drafts ...note.Draft) []note.Note {
	t.Helper()

	out := make([]note.Note, 0, len(drafts))
	for _, d := range drafts {
		created, err := notes.Create(context.Background(), d)
		if err != nil {
			t.Fatalf("Create(%q): %v", d.Title, err)
		}
		out = append(out, created)
	}
	return out
}

func TestNotes_CreateAndGet(t *testing.T) {
	notes := NewNotes(NewRepository(openTestDB(t)), WithClock(steppingClock()))
	ctx := context.Background()

	created, err := notes.Create(ctx, note.Draft{Title: "Buy milk", Tag: note.TagShopping})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}

	got, err := notes.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Buy milk" || got.Tag != note.TagShopping {
		t.Errorf("unexpected note %+v", got)
	}
}

func TestNotes_GetMissing(t *testing.T) {
	notes := NewNotes(NewRepository(openTestDB(t)))

	_, err := notes.Get(context.Background(), uuid.New())
	if !goerrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNotes_CreateRejectsInvalidDraft(t *testing.T) {
	notes := NewNotes(NewRepository(openTestDB(t)))
	ctx := context.Background()

	_, err := notes.Create(ctx, note.Draft{Title: "Hi", Tag: "Urgent"})
	if !note.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	fields, _ := goerrors.GetValidationErrors(err)
	if len(fields) != 2 || fields[0].Field != note.FieldTitle || fields[1].Field != note.FieldTag {
		t.Errorf("unexpected field errors %+v", fields)
	}

	page, err := notes.List(ctx, note.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Notes) != 0 {
		t.Errorf("expected nothing stored, got %d notes", len(page.Notes))
	}
}

func TestNotes_List(t *testing.T) {
	notes := NewNotes(NewRepository(openTestDB(t)), WithClock(steppingClock()))
	seedNotes(t, notes,
		note.Draft{Title: "Buy milk", Content: "two litres", Tag: note.TagShopping},
		note.Draft{Title: "Standup", Content: "daily sync", Tag: note.TagMeeting},
		note.Draft{Title: "Ship release", Content: "tag and publish", Tag: note.TagWork},
		note.Draft{Title: "Buy bread", Tag: note.TagShopping},
	)

	tests := []struct {
		name       string
		filter     note.Filter
		wantTitles []string
		wantPages  int
	}{
		{
			name:       "all newest first",
			filter:     note.Filter{},
			wantTitles: []string{"Buy bread", "Ship release", "Standup", "Buy milk"},
			wantPages:  1,
		},
		{
			name:       "by tag",
			filter:     note.Filter{Tag: "Shopping"},
			wantTitles: []string{"Buy bread", "Buy milk"},
			wantPages:  1,
		},
		{
			name:       "search matches content case insensitively",
			filter:     note.Filter{Search: "DAILY"},
			wantTitles: []string{"Standup"},
			wantPages:  1,
		},
		{
			name:       "search with tag",
			filter:     note.Filter{Search: "buy", Tag: "Work"},
			wantTitles: []string{},
			wantPages:  0,
		},
		{
			name:       "second page",
			filter:     note.Filter{Page: 2, PerPage: 3},
			wantTitles: []string{"Buy milk"},
			wantPages:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := notes.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if page.TotalPages != tt.wantPages {
				t.Errorf("expected %d pages, got %d", tt.wantPages, page.TotalPages)
			}
			if len(page.Notes) != len(tt.wantTitles) {
				t.Fatalf("expected %d notes, got %d", len(tt.wantTitles), len(page.Notes))
			}
			for i, title := range tt.wantTitles {
				if page.Notes[i].Title != title {
					t.Errorf("note %d: expected %q, got %q", i, title, page.Notes[i].Title)
				}
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if err := (Config{Driver: "mysql", DSN: "x"}).Validate(); err == nil {
		t.Error("expected unsupported driver to fail")
	}
	if _, err := Open(Config{Driver: DriverPostgres}); err == nil {
		t.Error("expected missing dsn to fail")
	}
}

func TestNotes_CachedRepositorySeesCreates(t *testing.T) {
	service, err := cache.NewCacheService(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("NewCacheService: %v", err)
	}
	cached := repositorycache.New(NewRepository(openTestDB(t)), service, cache.NewDefaultKeySerializer(),
		repositorycache.WithNamespace("notes"))
	notes := NewNotes(cached, WithClock(steppingClock()))
	ctx := context.Background()

	seedNotes(t, notes, note.Draft{Title: "Buy milk", Tag: note.TagShopping})

	first, err := notes.List(ctx, note.Filter{Tag: "Shopping"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if cached.TrackedKeys() != 1 {
		t.Fatalf("expected list to be cached, got %d keys", cached.TrackedKeys())
	}

	seedNotes(t, notes, note.Draft{Title: "Buy eggs", Tag: note.TagShopping})

	second, err := notes.List(ctx, note.Filter{Tag: "Shopping"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(first.Notes) != 1 || len(second.Notes) != 2 {
		t.Errorf("expected create to invalidate cached list, got %d then %d", len(first.Notes), len(second.Notes))
	}
}

func TestNotes_ListNotesUsesDefaultPageSize(t *testing.T) {
	notes := NewNotes(NewRepository(openTestDB(t)), WithClock(steppingClock()))
	for i := 0; i < note.DefaultPerPage+1; i++ {
		seedNotes(t, notes, note.Draft{Title: fmt.Sprintf("Chore %02d", i), Tag: note.TagTodo})
	}

	first, err := notes.ListNotes(context.Background(), 1, "", string(note.TagTodo))
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(first.Notes) != note.DefaultPerPage || first.TotalPages != 2 {
		t.Fatalf("page 1 = %d notes / %d pages, want %d / 2", len(first.Notes), first.TotalPages, note.DefaultPerPage)
	}

	second, err := notes.ListNotes(context.Background(), 2, "chore 00", "")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(second.Notes) != 0 {
		t.Errorf("page 2 of a single match should be empty, got %d", len(second.Notes))
	}
}
