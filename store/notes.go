package store

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/repositorycache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Notes implements the notes API on top of a record repository. The
// repository may be the plain bun repository or a cached decorator.
type Notes struct {
	repo   repository.Repository[*Record]
	now    func() time.Time
	logger *zap.Logger
}

// Option configures Notes.
type Option func(*Notes)

// WithClock overrides the timestamp source used on create.
func WithClock(now func() time.Time) Option {
	return func(n *Notes) { n.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notes) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotes creates the notes service.
func NewNotes(repo repository.Repository[*Record], opts ...Option) *Notes {
	n := &Notes{
		repo:   repo,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// List returns one page of notes, newest first. Search matches title or
// content case insensitively; Tag filters verbatim.
func (n *Notes) List(ctx context.Context, f note.Filter) (note.Page, error) {
	f = f.Normalize()

	criteria := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC", "id ASC"),
		repository.SelectPaginate(f.PerPage, f.Offset()),
	}
	if f.Tag != "" {
		criteria = append(criteria, repository.SelectBy("tag", "=", f.Tag))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		criteria = append(criteria, selectSearch(search))
	}

	records, total, err := n.repo.List(repositorycache.WithQueryKey(ctx, f), criteria...)
	if err != nil {
		n.logger.Error("list notes failed", zap.Error(err))
		return note.Page{}, err
	}

	page := note.Page{
		Notes:      make([]note.Note, 0, len(records)),
		TotalPages: note.TotalPages(total, f.PerPage),
	}
	for _, r := range records {
		page.Notes = append(page.Notes, r.Note())
	}

	n.logger.Debug("listed notes",
		zap.Int("page", f.Page),
		zap.String("tag", f.Tag),
		zap.String("search", f.Search),
		zap.Int("total", total),
	)
	return page, nil
}

// ListNotes lists one default sized page. It lets the page server prefetch
// in process instead of calling its own API.
func (n *Notes) ListNotes(ctx context.Context, page int, query, tag string) (note.Page, error) {
	return n.List(ctx, note.Filter{Page: page, PerPage: note.DefaultPerPage, Search: query, Tag: tag})
}

// Get returns the note with id.
func (n *Notes) Get(ctx context.Context, id uuid.UUID) (note.Note, error) {
	r, err := n.repo.GetByID(ctx, id.String())
	if err != nil {
		if isNotFound(err) {
			return note.Note{}, goerrors.New("note not found", goerrors.CategoryNotFound).
				WithCode(http.StatusNotFound).
				WithTextCode(goerrors.HTTPStatusToTextCode(http.StatusNotFound))
		}
		return note.Note{}, err
	}
	return r.Note(), nil
}

// Create validates d and stores it as a new note.
func (n *Notes) Create(ctx context.Context, d note.Draft) (note.Note, error) {
	if fields := d.FieldErrors(); len(fields) > 0 {
		return note.Note{}, note.NewValidationError(fields)
	}

	r, err := n.repo.Create(ctx, newRecord(d, n.now().UTC()))
	if err != nil {
		n.logger.Error("create note failed", zap.Error(err))
		return note.Note{}, err
	}

	n.logger.Info("note created", zap.Stringer("id", r.ID), zap.String("tag", r.Tag))
	return r.Note(), nil
}

func selectSearch(search string) repository.SelectCriteria {
	pattern := "%" + strings.ToLower(search) + "%"
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(?TableAlias.title) LIKE ?", pattern).
				WhereOr("LOWER(?TableAlias.content) LIKE ?", pattern)
		})
	}
}

// isNotFound recognises the repository's missing record error, which is a
// retryable wrapper around a categorised error.
func isNotFound(err error) bool {
	var rerr *goerrors.RetryableError
	if errors.As(err, &rerr) && rerr.BaseError != nil {
		return rerr.Category == repository.CategoryDatabaseNotFound
	}
	return goerrors.IsCategory(err, repository.CategoryDatabaseNotFound)
}
