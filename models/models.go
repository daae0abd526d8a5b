// models/models.go
package models

import (
	"time"
)

// Phase is the room's stage in the game state machine.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseSelecting Phase = "selecting"
	PhasePlaying   Phase = "playing"
	PhaseFinished  Phase = "finished"
)

// Player 玩家在房间内的状态
type Player struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	SecretToken  *string  `json:"secretToken"`
	IsEliminated bool     `json:"isEliminated"`
	DrawnTokens  []string `json:"drawnTokens"`
}

// HasDrawn reports whether the player already drew t this round.
func (p *Player) HasDrawn(t string) bool {
	for _, d := range p.DrawnTokens {
		if d == t {
			return true
		}
	}
	return false
}

// Room is a full, self-contained snapshot of one room. Snapshots never share
// memory with the live room, so they are safe to hand to other goroutines.
type Room struct {
	ID          string   `json:"id"`
	Players     []Player `json:"players"`
	TokenPool   []string `json:"tokenPool"`
	CurrentTurn string   `json:"currentTurn"`
	Phase       Phase    `json:"phase"`
	Winner      *string  `json:"winner"`
}

// Player returns the player with the given id, or nil.
func (r *Room) Player(id string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the snapshot.
func (r Room) Clone() Room {
	out := r
	out.TokenPool = append([]string(nil), r.TokenPool...)
	out.Players = make([]Player, len(r.Players))
	for i, p := range r.Players {
		out.Players[i] = p
		out.Players[i].DrawnTokens = append([]string{}, p.DrawnTokens...)
		if p.SecretToken != nil {
			s := *p.SecretToken
			out.Players[i].SecretToken = &s
		}
	}
	if r.Winner != nil {
		w := *r.Winner
		out.Winner = &w
	}
	return out
}

// GameRecord 一局结束后的归档记录
type GameRecord struct {
	RoomID       string    `json:"room_id"`
	WinnerID     string    `json:"winner_id"`
	WinnerName   string    `json:"winner_name"`
	LoserID      string    `json:"loser_id"`
	LoserName    string    `json:"loser_name"`
	WinnerSecret string    `json:"winner_secret"`
	LoserSecret  string    `json:"loser_secret"`
	Draws        int       `json:"draws"`
	FinishedAt   time.Time `json:"finished_at"`
}

// NewGameRecord builds the archive record for a finished snapshot. It
// returns false if the snapshot is not a finished two-player round.
func NewGameRecord(r Room, at time.Time) (GameRecord, bool) {
	if r.Phase != PhaseFinished || r.Winner == nil || len(r.Players) != 2 {
		return GameRecord{}, false
	}
	winner := r.Player(*r.Winner)
	if winner == nil {
		return GameRecord{}, false
	}
	var loser *Player
	for i := range r.Players {
		if r.Players[i].ID != winner.ID {
			loser = &r.Players[i]
		}
	}

	rec := GameRecord{
		RoomID:     r.ID,
		WinnerID:   winner.ID,
		WinnerName: winner.Name,
		LoserID:    loser.ID,
		LoserName:  loser.Name,
		FinishedAt: at,
	}
	for _, p := range r.Players {
		rec.Draws += len(p.DrawnTokens)
	}
	if winner.SecretToken != nil {
		rec.WinnerSecret = *winner.SecretToken
	}
	if loser.SecretToken != nil {
		rec.LoserSecret = *loser.SecretToken
	}
	return rec, true
}
