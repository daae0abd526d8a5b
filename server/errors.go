package server

import (
	"errors"
	"net/http"

	"github.com/wfunc/poisonheart/room"
)

// ErrMalformedRequest marks requests the boundary could not decode or that
// lack required fields.
var ErrMalformedRequest = errors.New("malformed request")

type badRequest string

func (e badRequest) Error() string        { return string(e) }
func (e badRequest) Is(target error) bool { return target == ErrMalformedRequest }

const (
	errEmptyBody     = badRequest("Empty request body")
	errInvalidJSON   = badRequest("Invalid JSON in request body")
	errInvalidAction = badRequest("Invalid action")
)

func missing(field string) error {
	return badRequest(field + " is required")
}

// roomGone is sent to sessions still bound to a room that op removed.
func roomGone(op, roomID string) error {
	return &room.Error{Op: op, RoomID: roomID, Err: room.ErrRoomNotFound}
}

// statusFor maps an operation error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrAlreadyExists),
		errors.Is(err, room.ErrRoomFull),
		errors.Is(err, room.ErrNotYourTurn):
		return http.StatusConflict
	case errors.Is(err, room.ErrInvalidMove):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// outcome labels err for metrics.
func outcome(err error) string {
	if errors.Is(err, ErrMalformedRequest) {
		return "malformed"
	}
	return room.Outcome(err)
}
