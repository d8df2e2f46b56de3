package api

import "errors"

var (
	// ErrMissingUsername is returned when no authenticated user is in context.
	ErrMissingUsername = errors.New("missing username in context")
)
