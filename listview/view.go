// Package listview drives an interactive notes list from a query client.
// The view holds the current fingerprint, keeps one subscription open for it
// and swaps the subscription whenever the page, search query or tag changes.
package listview

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/prefetch"
	"github.com/goliatone/go-notehub/query"
	"go.uber.org/zap"
)

// State is what the view shows at a point in time.
type State struct {
	Fingerprint query.Fingerprint
	Entry       query.Entry[note.Page]
	// Previous is the last successful page of any fingerprint, kept while
	// the current one has no data yet.
	Previous *note.Page
}

// Page returns the page to display: the current data once it exists,
// otherwise the previous page, if any.
func (s State) Page() (note.Page, bool) {
	if s.Entry.Status == query.StatusSuccess {
		return s.Entry.Data, true
	}
	if s.Previous != nil && s.Entry.Status == query.StatusPending {
		return *s.Previous, true
	}
	return note.Page{}, false
}

// View is an interactive list bound to one query client.
type View struct {
	client *query.Client[note.Page]
	logger *zap.Logger
	styles Styles

	mu      sync.Mutex
	parent  context.Context
	cancel  context.CancelFunc
	subID   uint64
	state   State
	closed  bool
	updates chan State
	wg      sync.WaitGroup

	// changes made before Start, replayed on top of its fingerprint
	pending []func(query.Fingerprint) query.Fingerprint
}

// Option configures a View.
type Option func(*View)

func WithLogger(logger *zap.Logger) Option {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithStyles overrides the render styles.
func WithStyles(s Styles) Option {
	return func(v *View) { v.styles = s }
}

// New creates a view reading from client. Nothing is subscribed until Start.
func New(client *query.Client[note.Page], opts ...Option) *View {
	v := &View{
		client:  client,
		logger:  zap.NewNop(),
		styles:  DefaultStyles(),
		updates: make(chan State, 1),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Start subscribes to fp. SetPage, SetQuery and SetTag calls made before the
// first Start are applied to fp in call order. Calling Start again replaces
// the fingerprint and the context the subscriptions run under.
func (v *View) Start(ctx context.Context, fp query.Fingerprint) {
	v.mu.Lock()
	defer v.mu.Unlock()

	fp = fp.Normalize()
	for _, change := range v.pending {
		fp = change(fp).Normalize()
	}
	v.pending = nil

	v.parent = ctx
	v.resubscribeLocked(fp)
}

// SetPage moves to page p.
func (v *View) SetPage(p int) {
	v.update(func(fp query.Fingerprint) query.Fingerprint {
		fp.Page = p
		return fp
	})
}

// SetQuery changes the search query and goes back to the first page.
func (v *View) SetQuery(q string) {
	v.update(func(fp query.Fingerprint) query.Fingerprint {
		fp.Query = q
		fp.Page = 1
		return fp
	})
}

// SetTag changes the tag filter and goes back to the first page. The "All"
// sentinel clears the filter.
func (v *View) SetTag(tag string) {
	v.update(func(fp query.Fingerprint) query.Fingerprint {
		fp.Tag = prefetch.ResolveTag([]string{tag})
		fp.Page = 1
		return fp
	})
}

// Fingerprint returns the fingerprint currently shown.
func (v *View) Fingerprint() query.Fingerprint {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Fingerprint
}

// State returns the latest state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Updates delivers states as they change. Only the latest undelivered state
// is kept. The channel is closed by Close.
func (v *View) Updates() <-chan State {
	return v.updates
}

// ErrClosed is returned by Wait once the view has been closed.
var ErrClosed = errors.New("listview: view closed")

// Wait blocks until the current fingerprint has settled on a result or an
// error, then returns that state.
func (v *View) Wait(ctx context.Context) (State, error) {
	for {
		s := v.State()
		if s.Entry.Status != query.StatusPending && !s.Entry.Fetching {
			return s, nil
		}
		select {
		case _, ok := <-v.updates:
			if !ok {
				return v.State(), ErrClosed
			}
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

// Close ends the subscription and closes Updates.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	if v.cancel != nil {
		v.cancel()
	}
	v.mu.Unlock()

	v.wg.Wait()
	close(v.updates)
}

func (v *View) update(change func(query.Fingerprint) query.Fingerprint) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.parent == nil {
		v.pending = append(v.pending, change)
		v.state.Fingerprint = change(v.state.Fingerprint).Normalize()
		return
	}
	next := change(v.state.Fingerprint).Normalize()
	if next == v.state.Fingerprint {
		return
	}
	v.resubscribeLocked(next)
}

func (v *View) resubscribeLocked(fp query.Fingerprint) {
	if v.closed {
		return
	}
	if v.cancel != nil {
		v.cancel()
	}

	if v.state.Entry.Status == query.StatusSuccess {
		data := v.state.Entry.Data
		v.state.Previous = &data
	}

	key := prefetch.NotesKey(fp)
	v.subID++
	id := v.subID
	v.state.Fingerprint = fp
	v.state.Entry = query.Entry[note.Page]{Key: key, Status: query.StatusPending}

	ctx, cancel := context.WithCancel(v.parent)
	v.cancel = cancel

	v.logger.Debug("list subscribed",
		zap.Int("page", fp.Page),
		zap.String("query", fp.Query),
		zap.String("tag", fp.Tag),
	)

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		for entry := range v.client.Subscribe(ctx, key) {
			if !v.apply(id, entry) {
				return
			}
		}
	}()
}

// apply stores entry when it belongs to the current subscription and reports
// whether that subscription is still current.
func (v *View) apply(id uint64, entry query.Entry[note.Page]) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if id != v.subID || v.closed {
		return false
	}
	v.state.Entry = entry
	if entry.Status == query.StatusSuccess {
		v.state.Previous = nil
	}
	v.publishLocked()
	return true
}

func (v *View) publishLocked() {
	state := v.state
	select {
	case v.updates <- state:
	default:
		select {
		case <-v.updates:
		default:
		}
		select {
		case v.updates <- state:
		default:
		}
	}
}
