package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/poisonheart/broadcast"
	"github.com/wfunc/poisonheart/logger"
	"github.com/wfunc/poisonheart/monitor"
	"github.com/wfunc/poisonheart/room"
	"github.com/wfunc/poisonheart/services"
	"github.com/wfunc/poisonheart/session"
	"github.com/wfunc/poisonheart/timer"
)

const (
	// DefaultKeepAliveInterval spaces SSE heartbeats and WebSocket keep-alives.
	DefaultKeepAliveInterval = 30 * time.Second

	gaugeInterval = 5 * time.Second
	maxBodyBytes  = 64 << 10
)

// GameServer is the network boundary: a JSON action API, an SSE stream and
// a WebSocket stream, all driving one room.Manager.
type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	notifier       *broadcast.Notifier
	recorder       *services.ResultRecorder
	monitor        *monitor.Monitor
	timers         *timer.TimerManager
	keepAlive      time.Duration
	roomTTL        time.Duration
	httpServer     *http.Server
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

type Option func(*GameServer)

// WithKeepAliveInterval sets the heartbeat period of streaming connections.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(s *GameServer) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// WithRoomTTL evicts rooms idle for longer than d. Zero disables eviction.
func WithRoomTTL(d time.Duration) Option {
	return func(s *GameServer) { s.roomTTL = d }
}

// WithResultRecorder lets evicted rooms be forgotten by the recorder.
func WithResultRecorder(r *services.ResultRecorder) Option {
	return func(s *GameServer) { s.recorder = r }
}

// NewGameServer builds the server. notifier must be the publisher (or part
// of the publisher) rooms was created with.
func NewGameServer(addr string, rooms *room.Manager, notifier *broadcast.Notifier, mon *monitor.Monitor, opts ...Option) *GameServer {
	s := &GameServer{
		addr:           addr,
		roomManager:    rooms,
		sessionManager: session.NewManager(),
		notifier:       notifier,
		monitor:        mon,
		keepAlive:      DefaultKeepAliveInterval,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.timers = timer.NewTimerManagerWithResolution(resolutionFor(s.keepAlive))
	s.timers.AddTimer(gaugeInterval, gaugeInterval, s.refreshGauges)
	if s.roomTTL > 0 {
		sweep := s.roomTTL / 2
		s.timers.AddTimer(sweep, sweep, s.sweepIdleRooms)
	}
	return s
}

// resolutionFor keeps timer granularity well below the keep-alive period.
func resolutionFor(keepAlive time.Duration) time.Duration {
	res := keepAlive / 5
	switch {
	case res < 5*time.Millisecond:
		return 5 * time.Millisecond
	case res > timer.DefaultResolution:
		return timer.DefaultResolution
	}
	return res
}

// Handler returns the HTTP routes.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/game", s.handleStatus)
	mux.HandleFunc("POST /api/game", s.handleAction)
	mux.HandleFunc("GET /api/game/events/{roomId}", s.handleEvents)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Start serves until Shutdown is called.
func (s *GameServer) Start() error {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	logger.Log.Infof("Game server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends every stream, stops the HTTP server and the timers.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		s.sessionManager.CloseAll()
		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
		s.timers.Stop()
	})
	return err
}

func (s *GameServer) refreshGauges() {
	s.monitor.SetActiveRooms(s.roomManager.Count())
}

func (s *GameServer) sweepIdleRooms() {
	for _, roomID := range s.roomManager.EvictIdle(s.roomTTL, time.Now()) {
		s.dropRoom("expire", roomID)
	}
	s.refreshGauges()
}

// removeRoom deletes roomID from the registry and releases what was attached to it.
func (s *GameServer) removeRoom(roomID string) error {
	if !s.roomManager.RemoveRoom(roomID) {
		return roomGone("remove-room", roomID)
	}
	s.dropRoom("remove-room", roomID)
	s.refreshGauges()
	return nil
}

// dropRoom releases everything still attached to a room that has already
// left the registry: its subscribers and event streams, the recorder's
// round state and the WebSocket sessions bound to it.
func (s *GameServer) dropRoom(op, roomID string) {
	dropped := s.notifier.UnsubscribeAll(roomID)
	if s.recorder != nil {
		s.recorder.Forget(roomID)
	}
	for _, sess := range s.sessionManager.GetByRoomID(roomID) {
		sess.Bind("", "")
		s.sendError(sess, 0, roomGone(op, roomID))
	}
	logger.Log.Infow("room dropped", "room", roomID, "op", op, "subscribers", dropped)
}
