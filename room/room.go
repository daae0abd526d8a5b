// room/room.go
package room

import (
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"

	"github.com/wfunc/poisonheart/logger"
	"github.com/wfunc/poisonheart/models"
	"github.com/wfunc/poisonheart/state"
	"github.com/wfunc/poisonheart/token"
)

// MaxPlayers is fixed: the game is strictly two-player.
const MaxPlayers = 2

// Room 是游戏房间的核心结构. All exported methods lock the room, so
// transitions on one room are serialized and readers always see a whole
// transition or none of it.
type Room struct {
	ID          string
	CreatedAt   time.Time
	players     []*models.Player // join order
	currentTurn string
	winner      *string
	machine     *state.BaseStateMachine
	publisher   Publisher
	// exclusiveDraws refuses tokens the opponent already drew.
	exclusiveDraws bool
	updatedAt      time.Time
	mutex          deadlock.RWMutex
}

// NewRoom creates a room in the waiting phase with its creator as the only
// player.
func NewRoom(id, playerName, playerID string, publisher Publisher) *Room {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	now := time.Now()
	r := &Room{
		ID:        id,
		CreatedAt: now,
		updatedAt: now,
		publisher: publisher,
		players:   []*models.Player{newPlayer(playerID, playerName)},
	}
	r.machine = state.NewGameMachine(r)
	r.machine.OnEnter(models.PhasePlaying, func(models.Phase) {
		// fixed first-mover rule
		r.currentTurn = r.players[0].ID
	})
	return r
}

func newPlayer(id, name string) *models.Player {
	return &models.Player{ID: id, Name: name, DrawnTokens: []string{}}
}

// --- 实现 state.RoomContext 接口 ---

func (r *Room) PlayerCount() int {
	return len(r.players)
}

func (r *Room) AllSecretsChosen() bool {
	for _, p := range r.players {
		if p.SecretToken == nil {
			return false
		}
	}
	return true
}

func (r *Room) HasWinner() bool {
	return r.winner != nil
}

// --- 房间核心逻辑 ---

// Join adds a second player and moves the room to selecting. Joining again
// with an id that is already seated returns the current state unchanged.
func (r *Room) Join(playerName, playerID string) (models.Room, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.player(playerID) != nil {
		return r.snapshot(), nil
	}
	if len(r.players) >= MaxPlayers {
		return models.Room{}, opError("join-room", r.ID, playerID, ErrRoomFull)
	}

	r.players = append(r.players, newPlayer(playerID, playerName))
	r.mustChange(models.PhaseSelecting)

	logger.Log.Infow("player joined", "room", r.ID, "player", playerID, "name", playerName)
	return r.commit(), nil
}

// SelectSecret records the player's poison token. The last choice wins
// while the room is selecting; once both players have chosen, play starts
// with the first-joined player.
func (r *Room) SelectSecret(playerID string, t token.Token) (models.Room, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p := r.player(playerID)
	if p == nil {
		return models.Room{}, opError("select-secret", r.ID, playerID, ErrPlayerNotFound)
	}
	if r.machine.GetCurrentState() != models.PhaseSelecting {
		return models.Room{}, opError("select-secret", r.ID, playerID, ErrWrongPhase)
	}
	if !token.Valid(t) {
		return models.Room{}, opError("select-secret", r.ID, playerID, ErrUnknownToken)
	}

	secret := t
	p.SecretToken = &secret
	if r.machine.CanTransition(models.PhasePlaying) {
		r.mustChange(models.PhasePlaying)
	}

	logger.Log.Infow("secret selected", "room", r.ID, "player", playerID, "phase", r.machine.GetCurrentState())
	return r.commit(), nil
}

// Draw claims t for the player whose turn it is. Drawing the opponent's
// secret eliminates the drawer and ends the round; any other draw passes
// the turn.
func (r *Room) Draw(playerID string, t token.Token) (snapshot models.Room, poisoned bool, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	const op = "draw-token"
	actor := r.player(playerID)
	if actor == nil {
		return models.Room{}, false, opError(op, r.ID, playerID, ErrPlayerNotFound)
	}
	if r.machine.GetCurrentState() != models.PhasePlaying {
		return models.Room{}, false, opError(op, r.ID, playerID, ErrWrongPhase)
	}
	if r.currentTurn != playerID {
		return models.Room{}, false, opError(op, r.ID, playerID, ErrNotYourTurn)
	}
	if !token.Valid(t) {
		return models.Room{}, false, opError(op, r.ID, playerID, ErrUnknownToken)
	}
	opponent := r.opponent(playerID)
	if actor.HasDrawn(t) || (r.exclusiveDraws && opponent.HasDrawn(t)) {
		return models.Room{}, false, opError(op, r.ID, playerID, ErrAlreadyDrawn)
	}

	poisoned = opponent.SecretToken != nil && *opponent.SecretToken == t
	actor.DrawnTokens = append(actor.DrawnTokens, t)

	if poisoned {
		actor.IsEliminated = true
		winner := opponent.ID
		r.winner = &winner
		r.mustChange(models.PhaseFinished)
		logger.Log.Infow("player poisoned", "room", r.ID, "player", playerID, "winner", winner)
	} else {
		r.currentTurn = opponent.ID
		logger.Log.Debugw("token drawn", "room", r.ID, "player", playerID, "token", t)
	}

	return r.commit(), poisoned, nil
}

// Reset clears every round-scoped field and returns a full room to
// selecting. Player identities and names are kept.
func (r *Room) Reset() models.Room {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, p := range r.players {
		p.SecretToken = nil
		p.IsEliminated = false
		p.DrawnTokens = []string{}
	}
	r.currentTurn = ""
	r.winner = nil
	if len(r.players) == MaxPlayers {
		r.mustChange(models.PhaseSelecting)
	}

	logger.Log.Infow("game reset", "room", r.ID, "phase", r.machine.GetCurrentState())
	return r.commit()
}

// Snapshot returns a consistent copy of the room.
func (r *Room) Snapshot() models.Room {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.snapshot()
}

// Observe calls fn with the current snapshot while holding the read lock.
// No mutation, and so no publish, can happen until fn returns.
func (r *Room) Observe(fn func(snapshot models.Room)) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	fn(r.snapshot())
}

// LastActive returns the time of the last accepted mutation.
func (r *Room) LastActive() time.Time {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.updatedAt
}

// publishCurrent publishes the current snapshot. Used when the room is
// first registered.
func (r *Room) publishCurrent() models.Room {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.commit()
}

// commit stamps the mutation and publishes the new snapshot. Must be called
// with the write lock held so notifications follow mutation order.
func (r *Room) commit() models.Room {
	r.updatedAt = time.Now()
	snap := r.snapshot()
	r.publisher.Publish(r.ID, snap.Clone())
	return snap
}

func (r *Room) mustChange(to models.Phase) {
	if err := r.machine.ChangeState(to); err != nil {
		panic(fmt.Sprintf("room %s: invariant violated: %v", r.ID, err))
	}
}

func (r *Room) player(id string) *models.Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) opponent(id string) *models.Player {
	for _, p := range r.players {
		if p.ID != id {
			return p
		}
	}
	return nil
}

func (r *Room) snapshot() models.Room {
	snap := models.Room{
		ID:          r.ID,
		Players:     make([]models.Player, len(r.players)),
		TokenPool:   token.Catalog(),
		CurrentTurn: r.currentTurn,
		Phase:       r.machine.GetCurrentState(),
		Winner:      r.winner,
	}
	for i, p := range r.players {
		snap.Players[i] = *p
	}
	return snap.Clone()
}
