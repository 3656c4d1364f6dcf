// Package session is the client side hydration boundary. A Session owns the
// long lived query client of one browser or terminal session and seeds it
// with the snapshot shipped by the page server before any view subscribes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/prefetch"
	"github.com/goliatone/go-notehub/query"
	"go.uber.org/zap"
)

// ErrAlreadyMounted is returned when a second snapshot is mounted.
var ErrAlreadyMounted = errors.New("session: snapshot already mounted")

// API is the backend surface a session needs.
type API interface {
	prefetch.Lister
	CreateNote(ctx context.Context, draft note.Draft) (note.Note, error)
}

// SnapshotSource loads the encoded snapshot of a page route.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, pageURL string) ([]byte, string, error)
}

// Session holds the client for the lifetime of the session.
type Session struct {
	api    API
	client *query.Client[note.Page]
	logger *zap.Logger

	mu      sync.Mutex
	mounted bool
}

// Option configures a Session.
type Option func(*config)

type config struct {
	logger    *zap.Logger
	queryOpts []query.Option
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithQueryOptions configures the session's query client.
func WithQueryOptions(opts ...query.Option) Option {
	return func(c *config) { c.queryOpts = append(c.queryOpts, opts...) }
}

// New creates a session whose client fetches through api.
func New(api API, opts ...Option) *Session {
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	queryOpts := append([]query.Option{query.WithLogger(cfg.logger)}, cfg.queryOpts...)
	return &Session{
		api:    api,
		client: query.New(prefetch.NotesFetcher(api), queryOpts...),
		logger: cfg.logger,
	}
}

// Client returns the session's query client.
func (s *Session) Client() *query.Client[note.Page] { return s.client }

// API returns the backend the session talks to.
func (s *Session) API() API { return s.api }

// Mount decodes snapshot and hydrates the client. It must run before the
// first subscription and only once per session.
func (s *Session) Mount(snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted {
		return ErrAlreadyMounted
	}

	snap, err := query.DecodeSnapshot[note.Page](snapshot)
	if err != nil {
		return fmt.Errorf("session: mount: %w", err)
	}

	applied := s.client.Hydrate(snap)
	s.mounted = true

	s.logger.Debug("session mounted", zap.Int("entries", applied))
	return nil
}

// Mounted reports whether a snapshot has been mounted.
func (s *Session) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

// LoadPage requests the snapshot of pageURL from src and mounts it. It
// returns the list fingerprint the page was rendered for.
func (s *Session) LoadPage(ctx context.Context, src SnapshotSource, pageURL string) (query.Fingerprint, error) {
	data, tag, err := src.FetchSnapshot(ctx, pageURL)
	if err != nil {
		return query.Fingerprint{}, err
	}
	if err := s.Mount(data); err != nil {
		return query.Fingerprint{}, err
	}
	return query.Fingerprint{Page: 1, Tag: tag}, nil
}
