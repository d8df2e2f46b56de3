package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/matiasleandrokruk/chatroute/internal/api/ctxkeys"
)

const maxBodyBytes = 1 << 20

var errNoUser = errors.New("username not found in context")

// currentUsername retrieves the authenticated username injected by
// AuthMiddleware.
func currentUsername(ctx context.Context) (string, error) {
	u := ctxkeys.Value(ctx, ctxkeys.Username)
	if u == "" {
		return "", errNoUser
	}
	return u, nil
}

// decodeJSON decodes a bounded request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

// writeJSON writes v with statusCode.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		http.Error(w, `{"error":"failed to encode error response"}`, http.StatusInternalServerError)
	}
}
