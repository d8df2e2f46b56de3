package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/chatroute/internal/api/ctxkeys"
	"github.com/matiasleandrokruk/chatroute/internal/infra/sqlite"
)

// TestMain sets JWT_SECRET before any test runs; token issuance panics
// without it. Using TestMain instead of t.Setenv keeps t.Parallel() usable.
func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret-key-32-chars-min!!!") //nolint:errcheck
	os.Exit(m.Run())
}

// mustOpenDB opens a temp-file SQLite database with all migrations applied.
func mustOpenDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("sqlite.NewDB error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := sqlite.MigrateUp(context.Background(), db); err != nil {
		t.Fatalf("MigrateUp error = %v", err)
	}
	return db
}

// seedUser inserts an account row without going through bcrypt.
func seedUser(t *testing.T, db *sql.DB, username string) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO user_account (username, password_hash) VALUES (?, 'x')`, username); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
}

// asUser returns a router whose routes see username as the authenticated
// user, standing in for AuthMiddleware.
func asUser(username string) chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(ctxkeys.WithValue(req.Context(), ctxkeys.Username, username)))
		})
	})
	return r
}

// jsonRequest builds a request with a JSON body (nil body for nil v).
func jsonRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	var body bytes.Buffer
	if v != nil {
		if err := json.NewEncoder(&body).Encode(v); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return out
}
