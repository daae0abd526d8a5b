package room

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Use errors.Is against these.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("room already exists")
	ErrRoomFull      = errors.New("room is full")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrInvalidMove   = errors.New("invalid move")
)

// Specific causes, each wrapping one of the kinds above.
var (
	ErrRoomNotFound   = fmt.Errorf("room %w", ErrNotFound)
	ErrPlayerNotFound = fmt.Errorf("player %w", ErrNotFound)
	ErrWrongPhase     = fmt.Errorf("%w: not allowed in this phase", ErrInvalidMove)
	ErrUnknownToken   = fmt.Errorf("%w: unknown token", ErrInvalidMove)
	ErrAlreadyDrawn   = fmt.Errorf("%w: token already drawn", ErrInvalidMove)
)

// Error describes a rejected room operation. A rejected operation never
// changes the room and never publishes.
type Error struct {
	Op       string
	RoomID   string
	PlayerID string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.RoomID != "" {
		fmt.Fprintf(&b, " room=%s", e.RoomID)
	}
	if e.PlayerID != "" {
		fmt.Fprintf(&b, " player=%s", e.PlayerID)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op, roomID, playerID string, err error) error {
	return &Error{Op: op, RoomID: roomID, PlayerID: playerID, Err: err}
}

// Outcome names the kind of err for metrics labels: "ok" for nil,
// "internal" for errors outside the room taxonomy.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, ErrInvalidMove):
		return "invalid_move"
	default:
		return "internal"
	}
}
