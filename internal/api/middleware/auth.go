// Package middleware holds the HTTP middleware of the chatroute API: bearer
// JWT authentication and the structured access log.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/matiasleandrokruk/chatroute/internal/api/ctxkeys"
	pkgauth "github.com/matiasleandrokruk/chatroute/pkg/auth"
)

// UserLookup reports whether an account still exists.
type UserLookup interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// AuthMiddleware validates the Bearer JWT token and injects the username
// into context. It does not consult the user table.
func AuthMiddleware(next http.Handler) http.Handler {
	return Authenticate(nil)(next)
}

// Authenticate is AuthMiddleware with an account check: when users is not
// nil, a valid token for a deleted account is rejected.
//
// Flow:
//  1. Read "Authorization: Bearer <token>" header
//  2. Reject if missing or not Bearer scheme → 401
//  3. Parse + validate JWT → 401 on invalid/expired
//  4. Reject unknown accounts → 401
//  5. Inject ctxkeys.Username into context and call next
func Authenticate(users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}

			claims, err := pkgauth.ParseJWT(tokenString)
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			if users != nil {
				ok, err := users.Exists(r.Context(), claims.Username)
				if err != nil || !ok {
					writeUnauthorized(w, "could not validate credentials")
					return
				}
			}

			ctx := ctxkeys.WithValue(r.Context(), ctxkeys.Username, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
// Returns empty string if header is missing, wrong scheme, or token is empty.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	// Must start with "Bearer " (case-sensitive per RFC 7235)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// writeUnauthorized writes a 401 JSON response in the handlers' error shape.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
