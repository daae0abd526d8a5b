package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/poisonheart/broadcast"
	"github.com/wfunc/poisonheart/models"
	"github.com/wfunc/poisonheart/monitor"
	"github.com/wfunc/poisonheart/network"
	"github.com/wfunc/poisonheart/room"
	"github.com/wfunc/poisonheart/token"
)

const waitFor = 2 * time.Second

type testEnv struct {
	server   *GameServer
	http     *httptest.Server
	rooms    *room.Manager
	notifier *broadcast.Notifier
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	n := broadcast.NewNotifier(16, nil)
	m := room.NewRoomManager(n)
	gs := NewGameServer("127.0.0.1:0", m, n, monitor.NewMonitor("test"), opts...)
	ts := httptest.NewServer(gs.Handler())
	t.Cleanup(func() {
		gs.Shutdown(context.Background())
		ts.Close()
		n.Close()
	})
	return &testEnv{server: gs, http: ts, rooms: m, notifier: n}
}

type apiResponse struct {
	Success    *bool        `json:"success"`
	Error      string       `json:"error"`
	RoomID     string       `json:"roomId"`
	GameState  *models.Room `json:"gameState"`
	IsPoisoned bool         `json:"isPoisoned"`
	Reset      bool         `json:"reset"`
	Rooms      []string     `json:"rooms"`
}

func (e *testEnv) post(t *testing.T, body string) (int, apiResponse) {
	t.Helper()
	resp, err := http.Post(e.http.URL+"/api/game", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *testEnv) action(t *testing.T, v map[string]interface{}) (int, apiResponse) {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return e.post(t, string(body))
}

func TestAPI_FullRound(t *testing.T) {
	env := newTestEnv(t)

	code, created := env.action(t, map[string]interface{}{"action": "create-room", "playerName": "Alice", "playerId": "p1"})
	require.Equal(t, http.StatusOK, code)
	require.True(t, *created.Success)
	require.Len(t, created.RoomID, 6)
	assert.Equal(t, strings.ToUpper(created.RoomID), created.RoomID)
	assert.Equal(t, models.PhaseWaiting, created.GameState.Phase)
	assert.Len(t, created.GameState.TokenPool, token.Size)
	roomID := created.RoomID

	code, joined := env.action(t, map[string]interface{}{"action": "join-room", "roomId": roomID, "playerName": "Bob", "playerId": "p2"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.PhaseSelecting, joined.GameState.Phase)

	code, _ = env.action(t, map[string]interface{}{"action": "select-secret", "roomId": roomID, "playerId": "p1", "token": token.At(0)})
	require.Equal(t, http.StatusOK, code)
	code, sel := env.action(t, map[string]interface{}{"action": "select-secret-heart", "roomId": roomID, "playerId": "p2", "heartColor": token.At(1)})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.PhasePlaying, sel.GameState.Phase)
	assert.Equal(t, "p1", sel.GameState.CurrentTurn)

	code, drew := env.action(t, map[string]interface{}{"action": "draw-token", "roomId": roomID, "playerId": "p1", "token": token.At(7)})
	require.Equal(t, http.StatusOK, code)
	assert.False(t, drew.IsPoisoned)
	assert.Equal(t, "p2", drew.GameState.CurrentTurn)

	code, drew = env.action(t, map[string]interface{}{"action": "pick-heart", "roomId": roomID, "playerId": "p2", "heartColor": token.At(0)})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, drew.IsPoisoned)
	assert.Equal(t, models.PhaseFinished, drew.GameState.Phase)
	require.NotNil(t, drew.GameState.Winner)
	assert.Equal(t, "p1", *drew.GameState.Winner)

	code, reset := env.action(t, map[string]interface{}{"action": "reset-game", "roomId": roomID})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, reset.Reset)
	assert.Equal(t, models.PhaseSelecting, reset.GameState.Phase)

	code, got := env.action(t, map[string]interface{}{"action": "get-game", "roomId": roomID})
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, got.GameState)
	assert.Len(t, got.GameState.Players, 2)

	code, list := env.action(t, map[string]interface{}{"action": "debug-rooms"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{roomID}, list.Rooms)
}

func TestAPI_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.rooms.CreateRoomWithID("R1", "Alice", "p1")
	require.NoError(t, err)

	code, resp := env.post(t, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Empty request body", resp.Error)

	code, resp = env.post(t, "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid JSON in request body", resp.Error)

	code, resp = env.post(t, `{"action":"teleport"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid action", resp.Error)

	code, resp = env.post(t, `{"action":"create-room","playerName":"NoID"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "playerId is required", resp.Error)

	code, resp = env.post(t, `{"action":"create-room-with-id","roomId":"R1","playerName":"Carol","playerId":"p3"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, *resp.Success)

	code, _ = env.post(t, `{"action":"join-room","roomId":"nope","playerName":"Bob","playerId":"p2"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.post(t, `{"action":"join-room","roomId":"R1","playerName":"Bob","playerId":"p2"}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = env.post(t, `{"action":"join-room","roomId":"R1","playerName":"Carol","playerId":"p3"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = env.post(t, fmt.Sprintf(`{"action":"select-secret","roomId":"R1","playerId":"p1","token":%q}`, "#000000"))
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = env.post(t, fmt.Sprintf(`{"action":"select-secret","roomId":"R1","playerId":"p1","token":%q}`, token.At(0)))
	require.Equal(t, http.StatusOK, code)
	code, _ = env.post(t, fmt.Sprintf(`{"action":"select-secret","roomId":"R1","playerId":"p2","token":%q}`, token.At(1)))
	require.Equal(t, http.StatusOK, code)

	code, _ = env.post(t, fmt.Sprintf(`{"action":"draw-token","roomId":"R1","playerId":"p2","token":%q}`, token.At(2)))
	assert.Equal(t, http.StatusConflict, code, "not p2's turn")

	code, resp = env.post(t, `{"action":"get-game","roomId":"missing"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, resp.GameState)
}

func TestAPI_Status(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.rooms.CreateRoomWithID("B", "Alice", "p1")
	require.NoError(t, err)
	_, err = env.rooms.CreateRoomWithID("A", "Bob", "p2")
	require.NoError(t, err)

	resp, err := http.Get(env.http.URL + "/api/game")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var body struct {
		Message     string   `json:"message"`
		ActiveRooms []string `json:"activeRooms"`
		TotalRooms  int      `json:"totalRooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Poison Game API", body.Message)
	assert.Equal(t, []string{"A", "B"}, body.ActiveRooms)
	assert.Equal(t, 2, body.TotalRooms)
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	req, err := http.NewRequest(http.MethodPut, env.http.URL+"/api/game", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errEmptyBody, http.StatusBadRequest},
		{missing("roomId"), http.StatusBadRequest},
		{&room.Error{Op: "join-room", Err: room.ErrRoomNotFound}, http.StatusNotFound},
		{&room.Error{Op: "draw-token", Err: room.ErrPlayerNotFound}, http.StatusNotFound},
		{room.ErrAlreadyExists, http.StatusConflict},
		{room.ErrRoomFull, http.StatusConflict},
		{room.ErrNotYourTurn, http.StatusConflict},
		{room.ErrAlreadyDrawn, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
	assert.Equal(t, "malformed", outcome(errInvalidAction))
	assert.Equal(t, "ok", outcome(nil))
}

// openStream reads SSE frames (blocks separated by a blank line) into a channel.
func openStream(t *testing.T, url string) (*http.Response, <-chan string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	frames := make(chan string, 64)
	go func() {
		defer close(frames)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		var frame []string
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				frames <- strings.Join(frame, "\n")
				frame = nil
				continue
			}
			frame = append(frame, line)
		}
	}()
	return resp, frames, cancel
}

func nextState(t *testing.T, frames <-chan string) models.Room {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case frame, ok := <-frames:
			require.True(t, ok, "stream ended")
			if !strings.HasPrefix(frame, "data: ") {
				continue
			}
			var snap models.Room
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &snap))
			return snap
		case <-deadline:
			t.Fatal("no state frame")
		}
	}
}

func TestEvents_StreamsRoomState(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.rooms.CreateRoomWithID("R1", "Alice", "p1")
	require.NoError(t, err)

	resp, frames, cancel := openStream(t, env.http.URL+"/api/game/events/R1")
	defer cancel()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	initial := nextState(t, frames)
	assert.Equal(t, "R1", initial.ID)
	assert.Equal(t, models.PhaseWaiting, initial.Phase)
	assert.Equal(t, 1, env.notifier.Count("R1"))

	_, err = env.rooms.JoinRoom("R1", "Bob", "p2")
	require.NoError(t, err)
	update := nextState(t, frames)
	assert.Equal(t, models.PhaseSelecting, update.Phase)
	assert.Len(t, update.Players, 2)

	_, err = env.rooms.ResetGame("R1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseSelecting, nextState(t, frames).Phase)

	cancel()
	require.Eventually(t, func() bool { return env.notifier.Count("R1") == 0 }, waitFor, 5*time.Millisecond)
}

func TestEvents_Heartbeat(t *testing.T) {
	env := newTestEnv(t, WithKeepAliveInterval(30*time.Millisecond))
	_, err := env.rooms.CreateRoomWithID("R1", "Alice", "p1")
	require.NoError(t, err)

	_, frames, cancel := openStream(t, env.http.URL+"/api/game/events/R1")
	defer cancel()
	nextState(t, frames)

	deadline := time.After(waitFor)
	for {
		select {
		case frame := <-frames:
			if frame == ": heartbeat" {
				return
			}
		case <-deadline:
			t.Fatal("no heartbeat")
		}
	}
}

func TestEvents_UnknownRoom(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.http.URL + "/api/game/events/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, env.notifier.Total())
}

// streamEnds fails unless frames is closed within waitFor.
func streamEnds(t *testing.T, frames <-chan string) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream still open")
		}
	}
}

func TestEvents_ReleasesTimersOnDisconnect(t *testing.T) {
	env := newTestEnv(t, WithKeepAliveInterval(20*time.Millisecond))
	_, err := env.rooms.CreateRoomWithID("R1", "Alice", "p1")
	require.NoError(t, err)
	base := env.server.timers.Len()

	for range 20 {
		_, frames, cancel := openStream(t, env.http.URL+"/api/game/events/R1")
		nextState(t, frames)
		cancel()
		streamEnds(t, frames)
	}

	require.Eventually(t, func() bool {
		return env.server.timers.Len() == base && env.notifier.Count("R1") == 0
	}, waitFor, 5*time.Millisecond)
}

func TestSweeper_EvictsIdleRooms(t *testing.T) {
	// keep-alive stays at its 30s default: the stream must not wait for a heartbeat
	env := newTestEnv(t, WithRoomTTL(200*time.Millisecond))
	_, err := env.rooms.CreateRoomWithID("R1", "Alice", "p1")
	require.NoError(t, err)

	_, frames, cancel := openStream(t, env.http.URL+"/api/game/events/R1")
	defer cancel()
	nextState(t, frames)

	require.Eventually(t, func() bool {
		_, ok := env.rooms.GetRoom("R1")
		return !ok
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return env.notifier.Count("R1") == 0 }, waitFor, 5*time.Millisecond)
	streamEnds(t, frames)
}

func TestAPI_RemoveRoom(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.rooms.CreateRoomWithID("R1", "Alice", "p1")
	require.NoError(t, err)
	base := env.server.timers.Len()

	_, frames, cancel := openStream(t, env.http.URL+"/api/game/events/R1")
	defer cancel()
	nextState(t, frames)

	watcher := env.dial(t)
	watcher.send(t, network.MsgTypeSubscribe, network.Request{RoomID: "R1", PlayerID: "p1"})
	watcher.state(t, phaseIs(models.PhaseWaiting))
	require.Equal(t, 2, env.notifier.Count("R1"))

	code, resp := env.action(t, map[string]interface{}{"action": "remove-room", "roomId": "R1"})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, *resp.Success)
	assert.Equal(t, "R1", resp.RoomID)

	_, ok := env.rooms.GetRoom("R1")
	assert.False(t, ok)
	assert.Equal(t, 0, env.notifier.Count("R1"))
	streamEnds(t, frames)

	gone := watcher.nextError(t)
	assert.Equal(t, http.StatusNotFound, gone.Code)
	assert.Contains(t, gone.Message, "remove-room room=R1")
	assert.Empty(t, env.server.sessionManager.GetByRoomID("R1"))

	// only the WebSocket keep-alive is still scheduled
	require.Eventually(t, func() bool { return env.server.timers.Len() == base+1 }, waitFor, 5*time.Millisecond)

	code, _ = env.action(t, map[string]interface{}{"action": "remove-room", "roomId": "R1"})
	assert.Equal(t, http.StatusNotFound, code)
	code, resp = env.action(t, map[string]interface{}{"action": "remove-room"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "roomId is required", resp.Error)
}
