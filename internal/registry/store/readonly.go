package store

import "context"

type readOnlyKey struct{}

// WithReadOnly marks ctx so that stores opened under it create nothing:
// no directories, no indexes. Opening a store that does not exist fails
// with a NotFoundError instead.
func WithReadOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, readOnlyKey{}, true)
}

// IsReadOnly reports whether ctx was marked by WithReadOnly.
func IsReadOnly(ctx context.Context) bool {
	ro, _ := ctx.Value(readOnlyKey{}).(bool)
	return ro
}
