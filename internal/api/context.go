package api

import (
	"context"

	"github.com/matiasleandrokruk/chatroute/internal/api/ctxkeys"
)

// WithUsername adds the authenticated username to the request context.
func WithUsername(ctx context.Context, username string) context.Context {
	return ctxkeys.WithValue(ctx, ctxkeys.Username, username)
}

// GetUsername retrieves the authenticated username from context.
func GetUsername(ctx context.Context) (string, error) {
	u := ctxkeys.Value(ctx, ctxkeys.Username)
	if u == "" {
		return "", ErrMissingUsername
	}
	return u, nil
}
