// Package api wires the chi router: public health and auth routes, the
// JWT-protected /api/v1 surface and the chat websocket.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/chatroute/internal/api/handlers"
	apmiddleware "github.com/matiasleandrokruk/chatroute/internal/api/middleware"
	domainauth "github.com/matiasleandrokruk/chatroute/internal/domain/auth"
	"github.com/matiasleandrokruk/chatroute/internal/domain/conversation"
	"github.com/matiasleandrokruk/chatroute/internal/domain/generation"
	"github.com/matiasleandrokruk/chatroute/internal/domain/settings"
	"github.com/matiasleandrokruk/chatroute/internal/version"
)

const healthProbeTimeout = 2 * time.Second

// HealthChecker is an optional dependency probed by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterDeps are the services behind the routes.
type RouterDeps struct {
	Auth        domainauth.AuthService
	Settings    *settings.Store
	Rooms       *conversation.Store
	Dispatcher  *generation.Dispatcher
	Coordinator *generation.Coordinator
	Logger      *zap.Logger

	// LocalRuntime, when set, is reported by /health (the Ollama daemon).
	LocalRuntime HealthChecker

	// Sessions, when set, tracks websocket sessions for server shutdown.
	Sessions *handlers.SessionGroup
}

// NewRouter creates the chi router with all routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// ===== PUBLIC ROUTES (no auth required) =====

	r.Get("/health", healthHandler(deps.LocalRuntime))

	authHandler := handlers.NewAuthHandler(deps.Auth)
	r.Route("/auth", func(r chi.Router) {
		r.Use(apmiddleware.AuditMiddleware(logger))
		r.Post("/register", authHandler.Register) // POST /auth/register
		r.Post("/login", authHandler.Login)       // POST /auth/login
	})

	// The websocket carries the username in its path and checks it against
	// the room owner itself.
	chatHandler := handlers.NewChatHandler(handlers.ChatHandlerOptions{
		Users:       deps.Auth,
		Rooms:       deps.Rooms,
		Config:      deps.Settings,
		Dispatcher:  deps.Dispatcher,
		Coordinator: deps.Coordinator,
		Logger:      logger,
		Sessions:    deps.Sessions,
	})
	r.Get("/ws/chat/{roomId}/{username}", chatHandler.Serve)

	// ===== PROTECTED ROUTES (JWT required) =====

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apmiddleware.Authenticate(deps.Auth))
		r.Use(apmiddleware.AuditMiddleware(logger))

		r.Get("/me", meHandler)

		settingsHandler := handlers.NewSettingsHandler(deps.Settings)
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", settingsHandler.Get)       // GET /api/v1/settings
			r.Put("/", settingsHandler.Update)    // PUT /api/v1/settings
			r.Delete("/", settingsHandler.Delete) // DELETE /api/v1/settings
		})

		roomHandler := handlers.NewRoomHandler(deps.Rooms)
		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", roomHandler.CreateRoom)         // POST /api/v1/rooms
			r.Get("/", roomHandler.ListRooms)           // GET /api/v1/rooms
			r.Get("/{id}", roomHandler.GetRoom)         // GET /api/v1/rooms/{id}
			r.Put("/{id}", roomHandler.RenameRoom)      // PUT /api/v1/rooms/{id}
			r.Delete("/{id}", roomHandler.DeleteRoom)   // DELETE /api/v1/rooms/{id}
			r.Get("/{id}/history", roomHandler.History) // GET /api/v1/rooms/{id}/history
		})
	})

	return r
}

func healthHandler(local HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok", "version": version.Version}
		if local != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
			defer cancel()
			body["local_runtime"] = "ok"
			if err := local.HealthCheck(ctx); err != nil {
				body["local_runtime"] = "unreachable"
			}
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func meHandler(w http.ResponseWriter, r *http.Request) {
	username, err := GetUsername(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": username})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
