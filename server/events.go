package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/wfunc/poisonheart/logger"
	"github.com/wfunc/poisonheart/models"
)

var errStreamClosed = errors.New("event stream closed")

// eventStream is the notifier subscriber behind one SSE response. Deliver
// hands snapshots to the handler goroutine, which owns the ResponseWriter.
type eventStream struct {
	id      string
	updates chan models.Room
	beats   chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newEventStream() *eventStream {
	return &eventStream{
		id:      uuid.NewString(),
		updates: make(chan models.Room),
		beats:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (e *eventStream) ID() string { return e.id }

func (e *eventStream) Deliver(snapshot models.Room) error {
	select {
	case e.updates <- snapshot:
		return nil
	case <-e.done:
		return errStreamClosed
	}
}

func (e *eventStream) heartbeat() {
	select {
	case e.beats <- struct{}{}:
	default:
	}
}

// Detached ends the stream when the notifier drops its room.
func (e *eventStream) Detached(string) { e.close() }

func (e *eventStream) close() {
	e.once.Do(func() { close(e.done) })
}

func (s *GameServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	stream := newEventStream()
	subscribed := s.roomManager.Observe(roomID, func(initial models.Room) {
		s.notifier.SubscribeWith(roomID, stream, initial)
	})
	if !subscribed {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	beat := s.timers.AddTimer(s.keepAlive, s.keepAlive, stream.heartbeat)
	s.monitor.IncOnlineSessions()
	defer func() {
		stream.close()
		s.notifier.Unsubscribe(roomID, stream.ID())
		s.timers.RemoveTimer(beat)
		s.monitor.DecOnlineSessions()
		logger.Log.Debugw("event stream closed", "room", roomID, "stream", stream.ID())
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.Log.Debugw("event stream opened", "room", roomID, "stream", stream.ID())

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.shutdownChan:
			return
		case <-stream.done:
			return
		case snapshot := <-stream.updates:
			if err := writeEvent(w, snapshot); err != nil {
				return
			}
			flusher.Flush()
		case <-stream.beats:
			// the room may have been removed while this stream subscribed
			if _, ok := s.roomManager.GetRoom(roomID); !ok {
				return
			}
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, snapshot models.Room) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
