package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/poisonheart/models"
	"github.com/wfunc/poisonheart/room"
	"github.com/wfunc/poisonheart/token"
)

// MockDatabase is an in-memory persistence.Database.
type MockDatabase struct {
	mutex   sync.Mutex
	records []models.GameRecord
	saveErr error
	closed  bool
}

func (m *MockDatabase) SaveGameRecord(_ context.Context, record models.GameRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = append(m.records, record)
	return nil
}

func (m *MockDatabase) ListGameRecords(_ context.Context, roomID string, limit int) ([]models.GameRecord, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var out []models.GameRecord
	for i := len(m.records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if roomID == "" || m.records[i].RoomID == roomID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *MockDatabase) Close() error {
	m.closed = true
	return nil
}

func (m *MockDatabase) count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.records)
}

type counter struct{ n atomic.Int64 }

func (c *counter) IncGamesFinished() { c.n.Add(1) }

// playRound drives roomID to Finished: p1 draws p2's secret on the first turn.
func playRound(t *testing.T, m *room.Manager, roomID string) {
	t.Helper()
	_, err := m.SelectSecret(roomID, "p1", token.At(0))
	require.NoError(t, err)
	_, err = m.SelectSecret(roomID, "p2", token.At(1))
	require.NoError(t, err)
	_, poisoned, err := m.DrawToken(roomID, "p1", token.At(1))
	require.NoError(t, err)
	require.True(t, poisoned)
}

func TestResultRecorder_RecordsFinishedRound(t *testing.T) {
	db := &MockDatabase{}
	games := &counter{}
	rec := NewResultRecorder(db, games, 0)

	m := room.NewRoomManager(rec)
	_, err := m.CreateRoomWithID("R1", "Alice", "p1")
	require.NoError(t, err)
	_, err = m.JoinRoom("R1", "Bob", "p2")
	require.NoError(t, err)
	playRound(t, m, "R1")

	rec.Close()

	require.Equal(t, 1, db.count())
	got := db.records[0]
	assert.Equal(t, "R1", got.RoomID)
	assert.Equal(t, "p2", got.WinnerID)
	assert.Equal(t, "Bob", got.WinnerName)
	assert.Equal(t, "p1", got.LoserID)
	assert.Equal(t, token.At(1), got.WinnerSecret)
	assert.Equal(t, token.At(0), got.LoserSecret)
	assert.Equal(t, 1, got.Draws)
	assert.Equal(t, int64(1), games.n.Load())
}

func TestResultRecorder_OncePerRound(t *testing.T) {
	db := &MockDatabase{}
	rec := NewResultRecorder(db, nil, 0)

	finished := models.Room{
		ID:     "R1",
		Phase:  models.PhaseFinished,
		Winner: strPtr("p2"),
		Players: []models.Player{
			{ID: "p1", Name: "Alice", IsEliminated: true},
			{ID: "p2", Name: "Bob"},
		},
	}
	rec.Publish("R1", finished)
	rec.Publish("R1", finished)

	// a new round re-arms the room
	rec.Publish("R1", models.Room{ID: "R1", Phase: models.PhaseSelecting})
	rec.Publish("R1", finished)

	rec.Close()
	assert.Equal(t, 2, db.count())
}

func TestResultRecorder_IgnoresIncompleteSnapshots(t *testing.T) {
	db := &MockDatabase{}
	rec := NewResultRecorder(db, nil, 0)

	rec.Publish("R1", models.Room{ID: "R1", Phase: models.PhasePlaying})
	rec.Publish("R2", models.Room{ID: "R2", Phase: models.PhaseFinished}) // no winner

	rec.Close()
	assert.Equal(t, 0, db.count())
}

func TestResultRecorder_SaveErrorIsNotFatal(t *testing.T) {
	db := &MockDatabase{saveErr: errors.New("db down")}
	games := &counter{}
	rec := NewResultRecorder(db, games, 0)

	m := room.NewRoomManager(rec)
	_, err := m.CreateRoomWithID("R1", "Alice", "p1")
	require.NoError(t, err)
	_, err = m.JoinRoom("R1", "Bob", "p2")
	require.NoError(t, err)
	playRound(t, m, "R1")

	rec.Close()
	assert.Equal(t, int64(1), games.n.Load())
	assert.Equal(t, 0, db.count())
}

func TestResultRecorder_PublishAfterClose(t *testing.T) {
	rec := NewResultRecorder(nil, nil, 1)
	rec.Close()
	rec.Close()

	assert.NotPanics(t, func() {
		rec.Publish("R1", models.Room{
			ID:      "R1",
			Phase:   models.PhaseFinished,
			Winner:  strPtr("p2"),
			Players: []models.Player{{ID: "p1"}, {ID: "p2"}},
		})
	})
}

func TestResultRecorder_History(t *testing.T) {
	db := &MockDatabase{records: []models.GameRecord{
		{RoomID: "R1", FinishedAt: time.Unix(1, 0)},
		{RoomID: "R2", FinishedAt: time.Unix(2, 0)},
		{RoomID: "R1", FinishedAt: time.Unix(3, 0)},
	}}
	rec := NewResultRecorder(db, nil, 0)
	defer rec.Close()

	all, err := rec.History(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	r1, err := rec.History(context.Background(), "R1", 1)
	require.NoError(t, err)
	require.Len(t, r1, 1)
	assert.Equal(t, time.Unix(3, 0), r1[0].FinishedAt)

	_, err = NewResultRecorder(nil, nil, 0).History(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrNoArchive)
}

func strPtr(s string) *string { return &s }
