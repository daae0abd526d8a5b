// session/session.go
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/poisonheart/models"
	"github.com/wfunc/poisonheart/network"
)

// Session is one live WebSocket connection. It subscribes to at most one
// room at a time and relays that room's snapshots to the peer.
type Session struct {
	id         string
	Conn       network.Connection
	CreatedAt  time.Time
	roomID     string
	playerID   string
	lastActive time.Time
	keepAlive  int64 // timer id, 0 when none
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
	}
}

// ID identifies the session as a notifier subscriber.
func (s *Session) ID() string {
	return s.id
}

// Bind records the room this session follows and the player acting through it.
// An empty playerID keeps the previous one.
func (s *Session) Bind(roomID, playerID string) (previousRoom string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	previousRoom = s.roomID
	s.roomID = roomID
	if playerID != "" {
		s.playerID = playerID
	}
	return previousRoom
}

func (s *Session) RoomID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID
}

func (s *Session) PlayerID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.playerID
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) SetKeepAlive(timerID int64) {
	s.mutex.Lock()
	s.keepAlive = timerID
	s.mutex.Unlock()
}

func (s *Session) KeepAlive() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.keepAlive
}

func (s *Session) Send(msgID uint16, data []byte) error {
	return s.Conn.Send(msgID, data)
}

// SendJSON marshals v and sends it under msgID.
func (s *Session) SendJSON(msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Conn.Send(msgID, data)
}

// Deliver pushes a room snapshot to the peer.
func (s *Session) Deliver(snapshot models.Room) error {
	return s.SendJSON(network.MsgTypeRoomState, snapshot)
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID()] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// GetByRoomID returns the sessions currently following roomID.
func (m *Manager) GetByRoomID(roomID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.RoomID() == roomID {
			result = append(result, session)
		}
	}
	return result
}

// CloseAll closes every connection. Read loops then observe the error and
// clean up after themselves.
func (m *Manager) CloseAll() {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mutex.RUnlock()

	for _, session := range sessions {
		session.Close()
	}
}
