package room

import (
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/sasha-s/go-deadlock"

	"github.com/wfunc/poisonheart/logger"
	"github.com/wfunc/poisonheart/models"
	"github.com/wfunc/poisonheart/token"
)

const (
	roomIDLength   = 6
	roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxIDAttempts  = 16
)

// Manager 管理所有房间. The map lock only guards lookup and membership;
// transitions lock the individual room, so rooms never contend.
type Manager struct {
	rooms          map[string]*Room
	publisher      Publisher
	newID          func() string
	exclusiveDraws bool
	mutex          deadlock.RWMutex
}

type Option func(*Manager)

// WithIDGenerator replaces the random room id generator used by CreateRoom.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// WithExclusiveDraws refuses a draw of a token the opponent already drew.
// By default only repeating one's own draw is refused.
func WithExclusiveDraws() Option {
	return func(m *Manager) { m.exclusiveDraws = true }
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(publisher Publisher, opts ...Option) *Manager {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	m := &Manager{
		rooms:     make(map[string]*Room),
		publisher: publisher,
		newID:     RandomRoomID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RandomRoomID returns six random upper-case base36 characters.
func RandomRoomID() string {
	var b strings.Builder
	for range roomIDLength {
		b.WriteByte(roomIDAlphabet[rand.IntN(len(roomIDAlphabet))])
	}
	return b.String()
}

// CreateRoom creates a room under a freshly generated id.
func (m *Manager) CreateRoom(playerName, playerID string) (models.Room, error) {
	var err error
	for range maxIDAttempts {
		var snap models.Room
		snap, err = m.CreateRoomWithID(m.newID(), playerName, playerID)
		if err == nil {
			return snap, nil
		}
	}
	return models.Room{}, err
}

// CreateRoomWithID registers a new room. An existing room is never
// overwritten.
func (m *Manager) CreateRoomWithID(roomID, playerName, playerID string) (models.Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.rooms[roomID]; exists {
		return models.Room{}, opError("create-room", roomID, playerID, ErrAlreadyExists)
	}

	r := NewRoom(roomID, playerName, playerID, m.publisher)
	r.exclusiveDraws = m.exclusiveDraws
	m.rooms[roomID] = r
	// Publish before the map lock is released so no transition on the new
	// room can be observed ahead of its creation.
	snap := r.publishCurrent()

	logger.Log.Infow("room created", "room", roomID, "player", playerID, "rooms", len(m.rooms))
	return snap, nil
}

// JoinRoom seats a second player.
func (m *Manager) JoinRoom(roomID, playerName, playerID string) (models.Room, error) {
	r, err := m.lookup("join-room", roomID, playerID)
	if err != nil {
		return models.Room{}, err
	}
	return r.Join(playerName, playerID)
}

// SelectSecret records a player's poison token.
func (m *Manager) SelectSecret(roomID, playerID string, t token.Token) (models.Room, error) {
	r, err := m.lookup("select-secret", roomID, playerID)
	if err != nil {
		return models.Room{}, err
	}
	return r.SelectSecret(playerID, t)
}

// DrawToken performs one draw and reports whether it was poisoned.
func (m *Manager) DrawToken(roomID, playerID string, t token.Token) (models.Room, bool, error) {
	r, err := m.lookup("draw-token", roomID, playerID)
	if err != nil {
		return models.Room{}, false, err
	}
	return r.Draw(playerID, t)
}

// ResetGame starts a new round in place.
func (m *Manager) ResetGame(roomID string) (models.Room, error) {
	r, err := m.lookup("reset-game", roomID, "")
	if err != nil {
		return models.Room{}, err
	}
	return r.Reset(), nil
}

// GetRoom 从管理器中获取一个房间快照
func (m *Manager) GetRoom(roomID string) (models.Room, bool) {
	m.mutex.RLock()
	r, exists := m.rooms[roomID]
	m.mutex.RUnlock()

	if !exists {
		return models.Room{}, false
	}
	return r.Snapshot(), true
}

// Observe runs fn against the room's current snapshot with mutations held
// off, so a subscriber registered inside fn sees every later change and
// nothing earlier. It returns false if the room does not exist.
func (m *Manager) Observe(roomID string, fn func(snapshot models.Room)) bool {
	m.mutex.RLock()
	r, exists := m.rooms[roomID]
	m.mutex.RUnlock()

	if !exists {
		return false
	}
	r.Observe(fn)
	return true
}

// ListRoomIDs returns all room ids in sorted order.
func (m *Manager) ListRoomIDs() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// RemoveRoom 从管理器中移除一个房间
func (m *Manager) RemoveRoom(roomID string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.rooms[roomID]; !exists {
		return false
	}
	delete(m.rooms, roomID)
	logger.Log.Infow("room removed", "room", roomID, "rooms", len(m.rooms))
	return true
}

// EvictIdle removes every room whose last mutation is older than ttl and
// returns their ids.
func (m *Manager) EvictIdle(ttl time.Duration, now time.Time) []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var evicted []string
	for id, r := range m.rooms {
		if now.Sub(r.LastActive()) > ttl {
			delete(m.rooms, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	if len(evicted) > 0 {
		logger.Log.Infow("idle rooms evicted", "rooms", evicted, "remaining", len(m.rooms))
	}
	return evicted
}

func (m *Manager) lookup(op, roomID, playerID string) (*Room, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	r, exists := m.rooms[roomID]
	if !exists {
		return nil, opError(op, roomID, playerID, ErrRoomNotFound)
	}
	return r, nil
}
