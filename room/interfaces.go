package room

import "github.com/wfunc/poisonheart/models"

// Publisher receives every accepted room snapshot. Publish is called while
// the room is still locked, so implementations must hand the snapshot off
// without blocking. This is defined here to break the import cycle between
// room and broadcast.
type Publisher interface {
	Publish(roomID string, snapshot models.Room)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(roomID string, snapshot models.Room)

func (f PublisherFunc) Publish(roomID string, snapshot models.Room) {
	f(roomID, snapshot)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, models.Room) {}
