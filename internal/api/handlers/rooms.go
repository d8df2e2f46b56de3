package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/matiasleandrokruk/chatroute/internal/domain/conversation"
)

// RoomHandler serves chat rooms and their history. Every route only sees
// rooms owned by the authenticated user; someone else's room is a 404.
type RoomHandler struct {
	store *conversation.Store
}

// NewRoomHandler creates a RoomHandler.
func NewRoomHandler(store *conversation.Store) *RoomHandler {
	return &RoomHandler{store: store}
}

// RoomRequest is the body of POST /api/v1/rooms and PUT /api/v1/rooms/{id}.
type RoomRequest struct {
	RoomName string `json:"roomName"`
}

// HistoryResponse is the body of GET /api/v1/rooms/{id}/history.
type HistoryResponse struct {
	ChatroomID   string                      `json:"chatroom_id"`
	ChatroomName string                      `json:"chatroom_name"`
	Owner        string                      `json:"owner"`
	Messages     []conversation.HistoryEntry `json:"messages"`
}

// CreateRoom handles POST /api/v1/rooms. The name may also come as the
// roomName query parameter.
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	username, err := currentUsername(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	name, ok := readRoomName(w, r)
	if !ok {
		return
	}

	room, err := h.store.CreateRoom(r.Context(), username, name)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// ListRooms handles GET /api/v1/rooms.
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	username, err := currentUsername(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	rooms, err := h.store.ListRooms(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// GetRoom handles GET /api/v1/rooms/{id}.
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := h.ownedRoom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// RenameRoom handles PUT /api/v1/rooms/{id}.
func (h *RoomHandler) RenameRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := h.ownedRoom(w, r)
	if !ok {
		return
	}
	name, ok := readRoomName(w, r)
	if !ok {
		return
	}
	updated, err := h.store.RenameRoom(r.Context(), room.ID, name)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteRoom handles DELETE /api/v1/rooms/{id}.
func (h *RoomHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := h.ownedRoom(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteRoom(r.Context(), room.ID); err != nil {
		writeRoomError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /api/v1/rooms/{id}/history.
func (h *RoomHandler) History(w http.ResponseWriter, r *http.Request) {
	room, ok := h.ownedRoom(w, r)
	if !ok {
		return
	}
	entries, err := h.store.History(r.Context(), room.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		ChatroomID:   room.ID,
		ChatroomName: room.Name,
		Owner:        room.Owner,
		Messages:     entries,
	})
}

// ownedRoom resolves {id} to a room owned by the caller, writing the error
// response itself when it cannot.
func (h *RoomHandler) ownedRoom(w http.ResponseWriter, r *http.Request) (*conversation.Room, bool) {
	username, err := currentUsername(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return nil, false
	}
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return nil, false
	}
	room, err := h.store.GetRoom(r.Context(), id)
	if err != nil {
		writeRoomError(w, err)
		return nil, false
	}
	if room.Owner != username {
		writeError(w, http.StatusNotFound, "room not found")
		return nil, false
	}
	return room, true
}

func readRoomName(w http.ResponseWriter, r *http.Request) (string, bool) {
	if name := r.URL.Query().Get("roomName"); name != "" {
		return name, true
	}
	var req RoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return req.RoomName, true
}

func writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, conversation.ErrRoomExists):
		writeError(w, http.StatusConflict, "a room with this name already exists")
	case errors.Is(err, conversation.ErrInvalidRoomName):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "room operation failed")
	}
}
