package query

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultStaleTime is how long a successful entry counts as fresh.
const DefaultStaleTime = time.Minute

type options struct {
	staleTime time.Duration
	now       func() time.Time
	logger    *zap.Logger
	baseCtx   context.Context
}

// Option configures a Client.
type Option func(*options)

// WithStaleTime sets the staleness threshold. Zero makes every entry stale
// as soon as it is written.
func WithStaleTime(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.staleTime = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for fetch lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBaseContext bounds the lifetime of every fetch. A fetch keeps the values
// of the context that started it but not its cancellation, since other
// subscribers may share the result; cancelling the base context cancels all
// fetches still running. Invalidate falls back to it when given a nil context.
func WithBaseContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.baseCtx = ctx
		}
	}
}

func defaultOptions() options {
	return options{
		staleTime: DefaultStaleTime,
		now:       time.Now,
		logger:    zap.NewNop(),
		baseCtx:   context.Background(),
	}
}
