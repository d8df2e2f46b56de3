// Package ctxkeys holds the context keys shared by the api package, its
// middleware and its handlers. It is a leaf package so none of them import
// each other for a key.
package ctxkeys

import "context"

// Key is the named type for all API context keys; context.Value compares
// type and value, so a plain string key from elsewhere cannot collide.
type Key string

const (
	// Username is the authenticated account, injected by AuthMiddleware from
	// the JWT subject.
	Username Key = "username"
)

// WithValue adds a ctxkeys.Key value to the context.
func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// Value returns the string stored under key, or "".
func Value(ctx context.Context, key Key) string {
	v, _ := ctx.Value(key).(string)
	return v
}
