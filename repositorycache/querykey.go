package repositorycache

import "context"

type queryKeyContextKey struct{}

// WithQueryKey attaches the values that identify a read to ctx. The cached
// repository appends them to the cache key, which makes reads with criteria
// cacheable. Repeated calls append.
func WithQueryKey(ctx context.Context, parts ...any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(parts) == 0 {
		return ctx
	}

	combined := append(queryKeyFromContext(ctx), parts...)
	return context.WithValue(ctx, queryKeyContextKey{}, combined)
}

func queryKeyFromContext(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	if parts, ok := ctx.Value(queryKeyContextKey{}).([]any); ok {
		return append([]any(nil), parts...)
	}
	return nil
}
