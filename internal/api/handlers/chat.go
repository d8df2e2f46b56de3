package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/chatroute/internal/domain/conversation"
	"github.com/matiasleandrokruk/chatroute/internal/domain/generation"
)

const (
	maxPromptBytes    = 64 << 10
	wsWriteTimeout    = 10 * time.Second
	invalidRoomIDText = "Error: Invalid room ID format"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// UserLookup reports whether an account exists.
type UserLookup interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// ChatHandlerOptions wires a ChatHandler.
type ChatHandlerOptions struct {
	Users       UserLookup
	Rooms       *conversation.Store
	Config      generation.ConfigProvider
	Dispatcher  *generation.Dispatcher
	Coordinator *generation.Coordinator
	Logger      *zap.Logger

	// Sessions tracks live connections for shutdown; nil gives the handler
	// a private group.
	Sessions *SessionGroup
}

// ChatHandler serves GET /ws/chat/{roomId}/{username}: one websocket per
// client, one session loop per websocket.
type ChatHandler struct {
	opts   ChatHandlerOptions
	logger *zap.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(opts ChatHandlerOptions) *ChatHandler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Sessions == nil {
		opts.Sessions = NewSessionGroup()
	}
	return &ChatHandler{opts: opts, logger: logger.Named("ws")}
}

// Serve upgrades the request and runs the session. Rejected connections are
// still accepted first and then closed, so browser clients see a clean
// close instead of a failed handshake.
func (h *ChatHandler) Serve(w http.ResponseWriter, r *http.Request) {
	// Registered before the upgrade, while http.Server still tracks the
	// connection, so no session can start after Shutdown returns.
	defer h.opts.Sessions.track()()

	roomID := chi.URLParam(r, "roomId")
	username := chi.URLParam(r, "username")
	log := h.logger.With(zap.String("room_id", roomID), zap.String("username", username))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxPromptBytes)

	ctx := r.Context()
	if _, err := uuid.Parse(roomID); err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(invalidRoomIDText))
		closeWith(conn, websocket.CloseNormalClosure, "")
		return
	}
	if ok, err := h.opts.Users.Exists(ctx, username); err != nil || !ok {
		log.Info("websocket rejected: unknown user", zap.Error(err))
		closeWith(conn, websocket.ClosePolicyViolation, "")
		return
	}
	room, err := h.opts.Rooms.GetRoom(ctx, roomID)
	if err != nil || room.Owner != username {
		log.Info("websocket rejected: room not found or not owned", zap.Error(err))
		closeWith(conn, websocket.ClosePolicyViolation, "")
		return
	}

	log.Info("websocket connected")
	session := generation.NewSession(generation.SessionOptions{
		ConversationID: room.ID,
		Conn:           &wsConn{conn: conn},
		Config:         h.opts.Config,
		Dispatcher:     h.opts.Dispatcher,
		Coordinator:    h.opts.Coordinator,
		History:        h.opts.Rooms.ForSender(username),
		Logger:         log,
	})
	if err := session.Run(ctx); err != nil {
		// Server shutdown.
		closeWith(conn, websocket.CloseGoingAway, "server shutting down")
		log.Info("websocket closed by server", zap.Error(err))
		return
	}
	log.Info("websocket disconnected")
}

// wsConn adapts a gorilla connection to generation.Conn. gorilla allows one
// concurrent reader and one concurrent writer; the session's reader goroutine
// is the only reader and the session loop the only writer.
type wsConn struct {
	conn *websocket.Conn
}

// ReadPrompt blocks in ReadMessage; ctx is not consulted because closing the
// connection is what unblocks a pending read.
func (c *wsConn) ReadPrompt(context.Context) (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return "", io.EOF
		}
		return "", err
	}
	return string(data), nil
}

func (c *wsConn) Send(ctx context.Context, text string) error {
	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return io.EOF
		}
		return err
	}
	return nil
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
