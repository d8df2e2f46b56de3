package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/chatroute/internal/api/ctxkeys"
)

// Outcome classifies a finished request for the audit log.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// AuditMiddleware writes one structured log line per request: action,
// entity, actor, status and duration. A nil logger passes through.
// Expected order in router: AuthMiddleware -> AuditMiddleware -> handlers,
// so the actor is known; unauthenticated requests are logged as "anonymous".
func AuditMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		log := logger.Named("audit")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r)

			actor := ctxkeys.Value(r.Context(), ctxkeys.Username)
			if actor == "" {
				actor = "anonymous"
			}
			action, entityType, entityID := actionFromRequest(r.Method, r.URL.Path)
			fields := []zap.Field{
				zap.String("action", action),
				zap.String("actor", actor),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status_code", recorder.statusCode),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("outcome", string(outcomeFromStatus(recorder.statusCode))),
			}
			if entityType != nil {
				fields = append(fields, zap.String("entity_type", *entityType))
			}
			if entityID != nil {
				fields = append(fields, zap.String("entity_id", *entityID))
			}
			log.Info("request", fields...)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets websocket upgrades pass through the recorder.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func outcomeFromStatus(statusCode int) Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300, statusCode == http.StatusSwitchingProtocols:
		return OutcomeSuccess
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return OutcomeDenied
	default:
		return OutcomeError
	}
}

func actionFromRequest(method, path string) (string, *string, *string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 3 || segments[0] != "api" || segments[1] != "v1" {
		action := strings.ToLower(method) + "_request"
		return action, nil, nil
	}

	entityType := singularEntity(segments[2])
	if entityType == "" {
		action := strings.ToLower(method) + "_request"
		return action, nil, nil
	}

	if len(segments) == 3 {
		action := actionForCollection(method, entityType)
		return action, strPtr(entityType), nil
	}

	entityID := segments[3]
	if len(segments) == 5 && segments[4] == "history" {
		return "get_" + entityType + "_history", strPtr(entityType), strPtr(entityID)
	}
	action := actionForEntity(method, entityType)
	return action, strPtr(entityType), strPtr(entityID)
}

func singularEntity(entity string) string {
	entityMap := map[string]string{
		"rooms":    "room",
		"settings": "settings",
		"me":       "account",
	}

	if value, ok := entityMap[entity]; ok {
		return value
	}
	return ""
}

func actionForCollection(method, entity string) string {
	switch method {
	case http.MethodPost:
		return "create_" + entity
	case http.MethodGet:
		if entity == "room" {
			return "list_" + entity
		}
		return "get_" + entity
	case http.MethodPut, http.MethodPatch:
		return "update_" + entity
	case http.MethodDelete:
		return "delete_" + entity
	}
	return strings.ToLower(method) + "_" + entity
}

func actionForEntity(method, entity string) string {
	if method == http.MethodGet {
		return "get_" + entity
	}
	if method == http.MethodPut || method == http.MethodPatch {
		return "update_" + entity
	}
	if method == http.MethodDelete {
		return "delete_" + entity
	}
	if method == http.MethodPost {
		return "create_" + entity
	}
	return strings.ToLower(method) + "_" + entity
}

func strPtr(v string) *string {
	return &v
}
