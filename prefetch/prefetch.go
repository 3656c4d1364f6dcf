// Package prefetch runs the server side half of page rendering: it resolves
// the route into a list fingerprint, loads that page into a fresh query
// client and encodes the client state for transfer.
package prefetch

import (
	"context"
	"fmt"

	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/query"
	"go.uber.org/zap"
)

// Lister loads one page of notes.
type Lister interface {
	ListNotes(ctx context.Context, page int, query, tag string) (note.Page, error)
}

// ResolveTag maps the filter route segments to a tag. A missing first segment
// or the "All" sentinel means no tag filter; any other value is passed through
// unchecked.
func ResolveTag(segments []string) string {
	if len(segments) == 0 || segments[0] == note.AllTags {
		return ""
	}
	return segments[0]
}

// NotesKey is the query key of a notes list request.
func NotesKey(fp query.Fingerprint) query.Key {
	return query.NewKey(note.QueryNamespace, fp)
}

// NotesFetcher adapts a Lister to the query client fetch contract.
func NotesFetcher(l Lister) query.Fetcher[note.Page] {
	return func(ctx context.Context, key query.Key) (note.Page, error) {
		fp := key.Fingerprint
		return l.ListNotes(ctx, fp.Page, fp.Query, fp.Tag)
	}
}

// Result is the outcome of one prefetch.
type Result struct {
	Tag      string
	Key      query.Key
	Entry    query.Entry[note.Page]
	Snapshot []byte
}

// Step prefetches list pages for page requests.
type Step struct {
	lister Lister
	opts   []query.Option
	logger *zap.Logger
}

// Option configures a Step.
type Option func(*Step)

// WithQueryOptions passes options to every per request client.
func WithQueryOptions(opts ...query.Option) Option {
	return func(s *Step) { s.opts = append(s.opts, opts...) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Step) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(l Lister, opts ...Option) *Step {
	s := &Step{lister: l, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run prefetches the first page for segments into a client created for this
// call and returns its encoded snapshot. A failed fetch is recorded in the
// snapshot rather than returned; only encoding can fail.
func (s *Step) Run(ctx context.Context, segments []string) (Result, error) {
	tag := ResolveTag(segments)
	key := NotesKey(query.Fingerprint{Page: 1, Query: "", Tag: tag})

	client := query.New(NotesFetcher(s.lister), append([]query.Option{query.WithLogger(s.logger)}, s.opts...)...)
	client.Prefetch(ctx, key)

	entry, _ := client.Entry(key)
	if entry.Status == query.StatusError {
		s.logger.Warn("prefetch failed", zap.String("tag", tag), zap.Error(entry.Err))
	}

	snapshot, err := query.EncodeSnapshot(client.Dehydrate())
	if err != nil {
		return Result{}, fmt.Errorf("prefetch: %w", err)
	}

	s.logger.Debug("prefetched notes",
		zap.String("tag", tag),
		zap.String("status", string(entry.Status)),
		zap.Int("bytes", len(snapshot)),
	)

	return Result{Tag: tag, Key: key, Entry: entry, Snapshot: snapshot}, nil
}
