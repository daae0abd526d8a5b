// services/result_recorder.go
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/poisonheart/logger"
	"github.com/wfunc/poisonheart/models"
	"github.com/wfunc/poisonheart/persistence"
	"github.com/wfunc/poisonheart/room"
)

// DefaultQueueSize bounds the records waiting to be written.
const DefaultQueueSize = 64

const saveTimeout = 5 * time.Second

// ErrNoArchive is returned by History when no database is configured.
var ErrNoArchive = errors.New("game archive is not configured")

// GameCounter is told about every finished round.
type GameCounter interface {
	IncGamesFinished()
}

// ResultRecorder archives finished rounds. It is a room.Publisher, so it sees
// every snapshot, but it only acts on the first finished snapshot of a round.
// Writes happen on a worker goroutine; Publish never waits on the database.
type ResultRecorder struct {
	db       persistence.Database
	counter  GameCounter
	records  chan models.GameRecord
	finished map[string]bool // rooms whose current round is already recorded
	closed   bool
	now      func() time.Time
	done     chan struct{}
	mutex    sync.Mutex
}

var _ room.Publisher = (*ResultRecorder)(nil)

// NewResultRecorder starts the writer. db and counter may be nil.
func NewResultRecorder(db persistence.Database, counter GameCounter, queueSize int) *ResultRecorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	r := &ResultRecorder{
		db:       db,
		counter:  counter,
		records:  make(chan models.GameRecord, queueSize),
		finished: make(map[string]bool),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *ResultRecorder) Publish(roomID string, snapshot models.Room) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if snapshot.Phase != models.PhaseFinished {
		delete(r.finished, roomID)
		return
	}
	if r.closed || r.finished[roomID] {
		return
	}
	record, ok := models.NewGameRecord(snapshot, r.now())
	if !ok {
		return
	}
	r.finished[roomID] = true

	select {
	case r.records <- record:
	default:
		logger.Log.Warnw("game record dropped, archive queue full", "room", roomID)
	}
}

// Forget drops per-room state, for rooms that were removed.
func (r *ResultRecorder) Forget(roomID string) {
	r.mutex.Lock()
	delete(r.finished, roomID)
	r.mutex.Unlock()
}

func (r *ResultRecorder) run() {
	defer close(r.done)
	for record := range r.records {
		if r.counter != nil {
			r.counter.IncGamesFinished()
		}
		if r.db == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := r.db.SaveGameRecord(ctx, record); err != nil {
			logger.Log.Errorw("failed to save game record", "room", record.RoomID, "error", err)
		} else {
			logger.Log.Infow("game record saved", "room", record.RoomID, "winner", record.WinnerID)
		}
		cancel()
	}
}

// History lists archived rounds, newest first. An empty roomID lists all rooms.
func (r *ResultRecorder) History(ctx context.Context, roomID string, limit int) ([]models.GameRecord, error) {
	if r.db == nil {
		return nil, ErrNoArchive
	}
	return r.db.ListGameRecords(ctx, roomID, limit)
}

// Close flushes queued records and stops the writer.
func (r *ResultRecorder) Close() {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.records)
	r.mutex.Unlock()
	<-r.done
}
