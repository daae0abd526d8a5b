package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/wfunc/poisonheart/logger"
	"github.com/wfunc/poisonheart/models"
)

// actionRequest is the body of POST /api/game. heartColor is accepted as an
// alias of token.
type actionRequest struct {
	Action     string `json:"action"`
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
	PlayerID   string `json:"playerId"`
	Token      string `json:"token"`
	HeartColor string `json:"heartColor"`
}

func (r *actionRequest) token() string {
	if r.Token != "" {
		return r.Token
	}
	return r.HeartColor
}

var actionAliases = map[string]string{
	"select-secret-heart": "select-secret",
	"pick-heart":          "draw-token",
	"debug-rooms":         "list-rooms",
}

func canonicalAction(action string) string {
	if a, ok := actionAliases[action]; ok {
		return a
	}
	return action
}

type response map[string]interface{}

func (s *GameServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	rooms := s.roomManager.ListRoomIDs()
	writeJSON(w, http.StatusOK, response{
		"message":     "Poison Game API",
		"activeRooms": rooms,
		"totalRooms":  len(rooms),
	})
}

func (s *GameServer) handleAction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	action := "unknown"

	resp, err := func() (response, error) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			return nil, badRequest(err.Error())
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, errEmptyBody
		}
		var req actionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, errInvalidJSON
		}
		action = canonicalAction(req.Action)
		return s.dispatch(action, &req)
	}()
	if err == errInvalidAction {
		action = "invalid"
	}

	s.monitor.ObserveRequest(action, outcome(err), time.Since(start))
	if err != nil {
		logger.Log.Debugw("action rejected", "action", action, "error", err)
		writeJSON(w, statusFor(err), response{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GameServer) dispatch(action string, req *actionRequest) (response, error) {
	switch action {
	case "create-room":
		if req.PlayerID == "" {
			return nil, missing("playerId")
		}
		snap, err := s.roomManager.CreateRoom(req.PlayerName, req.PlayerID)
		if err != nil {
			return nil, err
		}
		s.refreshGauges()
		return response{"success": true, "roomId": snap.ID, "gameState": snap}, nil

	case "create-room-with-id":
		if req.RoomID == "" {
			return nil, missing("roomId")
		}
		if req.PlayerID == "" {
			return nil, missing("playerId")
		}
		snap, err := s.roomManager.CreateRoomWithID(req.RoomID, req.PlayerName, req.PlayerID)
		if err != nil {
			return nil, err
		}
		s.refreshGauges()
		return response{"success": true, "roomId": snap.ID, "gameState": snap}, nil

	case "join-room":
		if req.PlayerID == "" {
			return nil, missing("playerId")
		}
		snap, err := s.roomManager.JoinRoom(req.RoomID, req.PlayerName, req.PlayerID)
		if err != nil {
			return nil, err
		}
		return response{"success": true, "gameState": snap}, nil

	case "get-game":
		var state *models.Room
		if snap, ok := s.roomManager.GetRoom(req.RoomID); ok {
			state = &snap
		}
		return response{"gameState": state}, nil

	case "select-secret":
		snap, err := s.roomManager.SelectSecret(req.RoomID, req.PlayerID, req.token())
		if err != nil {
			return nil, err
		}
		return response{"success": true, "gameState": snap}, nil

	case "draw-token":
		snap, poisoned, err := s.roomManager.DrawToken(req.RoomID, req.PlayerID, req.token())
		if err != nil {
			return nil, err
		}
		return response{"success": true, "gameState": snap, "isPoisoned": poisoned}, nil

	case "reset-game":
		snap, err := s.roomManager.ResetGame(req.RoomID)
		if err != nil {
			return nil, err
		}
		return response{"success": true, "gameState": snap, "reset": true}, nil

	case "remove-room":
		if req.RoomID == "" {
			return nil, missing("roomId")
		}
		if err := s.removeRoom(req.RoomID); err != nil {
			return nil, err
		}
		return response{"success": true, "roomId": req.RoomID}, nil

	case "list-rooms":
		return response{"rooms": s.roomManager.ListRoomIDs()}, nil

	default:
		return nil, errInvalidAction
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnw("failed to write response", "error", err)
	}
}
