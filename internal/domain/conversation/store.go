// Package conversation stores chat rooms and their turns in SQLite and is the
// history provider behind the session loop.
package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matiasleandrokruk/chatroute/internal/domain/generation"
	"github.com/matiasleandrokruk/chatroute/internal/infra/eventbus"
)

var (
	ErrRoomNotFound    = errors.New("conversation: room not found")
	ErrRoomExists      = errors.New("conversation: room name already used by this owner")
	ErrTurnNotFound    = errors.New("conversation: turn not found")
	ErrTurnCompleted   = errors.New("conversation: turn already completed")
	ErrInvalidRoomName = errors.New("conversation: room name must be 1-100 characters")
)

// Topics published on the event bus.
const (
	TopicTurnCreated   = "turn.created"
	TopicTurnCompleted = "turn.completed"
)

const maxRoomNameLen = 100

// Room is a named conversation owned by one user.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"roomName"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryEntry is one stored turn as shown in a room's history.
type HistoryEntry struct {
	ID             int64      `json:"conversation_id"`
	Query          string     `json:"query"`
	Response       string     `json:"response"`
	SenderUsername string     `json:"senderUsername"`
	CreatedAt      time.Time  `json:"timestamp"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// TurnEvent is the payload of both turn topics.
type TurnEvent struct {
	TurnID  int64
	RoomID  string
	Sender  string
	Length  int // prompt length on creation, response length on completion
	Elapsed time.Duration
}

// Store is the SQLite-backed room and turn store.
type Store struct {
	db  *sql.DB
	bus eventbus.EventBus
}

// NewStore creates a Store. bus may be nil.
func NewStore(db *sql.DB, bus eventbus.EventBus) *Store {
	return &Store{db: db, bus: bus}
}

// ===== ROOMS =====

// CreateRoom creates a room named name for owner.
func (s *Store) CreateRoom(ctx context.Context, owner, name string) (*Room, error) {
	name, err := validRoomName(name)
	if err != nil {
		return nil, err
	}
	room := &Room{
		ID:        uuid.NewString(),
		Name:      name,
		Owner:     owner,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_room (id, room_name, username, created_at) VALUES (?, ?, ?, ?)
	`, room.ID, room.Name, room.Owner, formatTime(room.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRoomExists
		}
		return nil, fmt.Errorf("conversation: create room: %w", err)
	}
	return room, nil
}

// ListRooms returns owner's rooms, oldest first.
func (s *Store) ListRooms(ctx context.Context, owner string) ([]*Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_name, username, created_at FROM chat_room
		WHERE username = ? ORDER BY created_at, id
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("conversation: list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []*Room{}
	for rows.Next() {
		var (
			r       Room
			created string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Owner, &created); err != nil {
			return nil, fmt.Errorf("conversation: scan room: %w", err)
		}
		r.CreatedAt = parseTime(created)
		rooms = append(rooms, &r)
	}
	return rooms, rows.Err()
}

// GetRoom returns the room with id, or ErrRoomNotFound.
func (s *Store) GetRoom(ctx context.Context, id string) (*Room, error) {
	var (
		r       Room
		created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, room_name, username, created_at FROM chat_room WHERE id = ?
	`, id).Scan(&r.ID, &r.Name, &r.Owner, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get room: %w", err)
	}
	r.CreatedAt = parseTime(created)
	return &r, nil
}

// RenameRoom changes a room's name.
func (s *Store) RenameRoom(ctx context.Context, id, name string) (*Room, error) {
	name, err := validRoomName(name)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE chat_room SET room_name = ? WHERE id = ?`, name, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRoomExists
		}
		return nil, fmt.Errorf("conversation: rename room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrRoomNotFound
	}
	return s.GetRoom(ctx, id)
}

// DeleteRoom removes a room and, by cascade, its turns.
func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_room WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("conversation: delete room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// History returns every turn of a room in chronological order, including
// unanswered ones.
func (s *Store) History(ctx context.Context, roomID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, response, sender_username, created_at, completed_at
		FROM conversation WHERE room_id = ? ORDER BY id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("conversation: history: %w", err)
	}
	defer rows.Close()

	out := []HistoryEntry{}
	for rows.Next() {
		var (
			e         HistoryEntry
			created   string
			completed sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Query, &e.Response, &e.SenderUsername, &created, &completed); err != nil {
			return nil, fmt.Errorf("conversation: scan turn: %w", err)
		}
		e.CreatedAt = parseTime(created)
		if completed.Valid {
			t := parseTime(completed.String)
			e.CompletedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ===== TURNS =====

// PriorTurns returns the answered turns of a room, oldest first.
func (s *Store) PriorTurns(ctx context.Context, roomID string) ([]generation.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, response, created_at FROM conversation
		WHERE room_id = ? AND response != '' ORDER BY id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("conversation: prior turns: %w", err)
	}
	defer rows.Close()

	var turns []generation.Turn
	for rows.Next() {
		var (
			t       generation.Turn
			created string
		)
		if err := rows.Scan(&t.ID, &t.Prompt, &t.Response, &created); err != nil {
			return nil, fmt.Errorf("conversation: scan turn: %w", err)
		}
		t.ConversationID = roomID
		t.CreatedAt = parseTime(created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// AppendTurn writes a new turn with an empty response and returns its id.
func (s *Store) AppendTurn(ctx context.Context, roomID, sender, prompt string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation (room_id, query, response, sender_username, created_at)
		VALUES (?, ?, '', ?, ?)
	`, roomID, prompt, sender, formatTime(time.Now().UTC()))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return 0, ErrRoomNotFound
		}
		return 0, fmt.Errorf("conversation: append turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("conversation: append turn id: %w", err)
	}
	s.publish(TopicTurnCreated, TurnEvent{TurnID: id, RoomID: roomID, Sender: sender, Length: len(prompt)})
	return id, nil
}

// CompleteTurn stores the response of a pre-written turn. The prompt is left
// untouched and a turn is completed at most once.
func (s *Store) CompleteTurn(ctx context.Context, turnID int64, response string) error {
	done := time.Now().UTC()
	var roomID, sender, created string
	err := s.db.QueryRowContext(ctx, `
		UPDATE conversation SET response = ?, completed_at = ?
		WHERE id = ? AND completed_at IS NULL
		RETURNING room_id, sender_username, created_at
	`, response, formatTime(done), turnID).Scan(&roomID, &sender, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return s.completeMiss(ctx, turnID)
	}
	if err != nil {
		return fmt.Errorf("conversation: complete turn: %w", err)
	}
	s.publish(TopicTurnCompleted, TurnEvent{
		TurnID:  turnID,
		RoomID:  roomID,
		Sender:  sender,
		Length:  len(response),
		Elapsed: done.Sub(parseTime(created)),
	})
	return nil
}

// completeMiss tells a missing turn from one that is already completed.
func (s *Store) completeMiss(ctx context.Context, turnID int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversation WHERE id = ?`, turnID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrTurnNotFound
	case err != nil:
		return fmt.Errorf("conversation: complete turn: %w", err)
	default:
		return ErrTurnCompleted
	}
}

// ForSender adapts the store to generation.HistoryProvider for one user's
// connection, stamping every new turn with sender.
func (s *Store) ForSender(sender string) generation.HistoryProvider {
	return senderHistory{store: s, sender: sender}
}

type senderHistory struct {
	store  *Store
	sender string
}

func (h senderHistory) PriorTurns(ctx context.Context, roomID string) ([]generation.Turn, error) {
	return h.store.PriorTurns(ctx, roomID)
}

func (h senderHistory) AppendTurn(ctx context.Context, roomID, prompt string) (int64, error) {
	return h.store.AppendTurn(ctx, roomID, h.sender, prompt)
}

func (h senderHistory) CompleteTurn(ctx context.Context, turnID int64, response string) error {
	return h.store.CompleteTurn(ctx, turnID, response)
}

func (s *Store) publish(topic string, evt TurnEvent) {
	if s.bus != nil {
		s.bus.Publish(topic, evt)
	}
}

func validRoomName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" || len(n) > maxRoomNameLen {
		return "", ErrInvalidRoomName
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
