// broadcast/broadcast.go
package broadcast

import (
	"fmt"

	"github.com/sasha-s/go-deadlock"

	"github.com/wfunc/poisonheart/logger"
	"github.com/wfunc/poisonheart/models"
	"github.com/wfunc/poisonheart/room"
)

// DefaultBufferSize is the per-subscriber queue length used when none is given.
const DefaultBufferSize = 16

// Subscriber receives room snapshots. Deliver is only ever called from the
// subscriber's own goroutine, one snapshot at a time, in publish order.
type Subscriber interface {
	ID() string
	Deliver(snapshot models.Room) error
}

type funcSubscriber struct {
	id string
	fn func(models.Room) error
}

func (s funcSubscriber) ID() string { return s.id }
func (s funcSubscriber) Deliver(snapshot models.Room) error { return s.fn(snapshot) }

// NewSubscriber adapts fn to a Subscriber identified by id.
func NewSubscriber(id string, fn func(models.Room) error) Subscriber {
	return funcSubscriber{id: id, fn: fn}
}

// Detacher is implemented by subscribers that must learn when the notifier
// drops them itself, through UnsubscribeAll or Close. Detached is called with
// the notifier locked and must not block.
type Detacher interface {
	Detached(roomID string)
}

// Observer is told about delivery problems and subscriber counts.
type Observer interface {
	NotificationDropped(roomID string)
	NotificationFailed(roomID string)
	SetSubscribers(n int)
}

// Notifier fans room snapshots out to subscribers. Every subscriber owns a
// bounded queue drained by its own goroutine: Publish never waits on a
// subscriber, and a slow or stuck subscriber only loses its own oldest
// queued snapshots.
type Notifier struct {
	rooms      map[string]map[string]*mailbox // roomID -> subscriberID -> mailbox
	total      int
	bufferSize int
	observer   Observer
	mutex      deadlock.RWMutex
}

var _ room.Publisher = (*Notifier)(nil)

func NewNotifier(bufferSize int, observer Observer) *Notifier {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Notifier{
		rooms:      make(map[string]map[string]*mailbox),
		bufferSize: bufferSize,
		observer:   observer,
	}
}

// Subscribe registers sub for roomID. It returns false, and changes
// nothing, if a subscriber with the same id is already registered there.
func (n *Notifier) Subscribe(roomID string, sub Subscriber) bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	subs, exists := n.rooms[roomID]
	if !exists {
		subs = make(map[string]*mailbox)
		n.rooms[roomID] = subs
	}
	if _, dup := subs[sub.ID()]; dup {
		return false
	}

	mb := newMailbox(roomID, sub, n.bufferSize, n.observer)
	subs[sub.ID()] = mb
	n.total++
	n.reportTotal()
	go mb.run()

	logger.Log.Debugw("subscriber added", "room", roomID, "subscriber", sub.ID(), "count", len(subs))
	return true
}

// SubscribeWith registers sub and queues initial for it ahead of anything
// published later. Call it from inside room.Manager.Observe so initial is
// exactly the state before the next publish. Like Subscribe it returns false
// and queues nothing when sub is already registered for roomID.
func (n *Notifier) SubscribeWith(roomID string, sub Subscriber, initial models.Room) bool {
	if !n.Subscribe(roomID, sub) {
		return false
	}

	n.mutex.RLock()
	defer n.mutex.RUnlock()
	mb, exists := n.rooms[roomID][sub.ID()]
	if !exists {
		return false
	}
	mb.offer(initial.Clone())
	return true
}

// Unsubscribe removes the subscriber and stops its goroutine. An emptied
// room entry is pruned.
func (n *Notifier) Unsubscribe(roomID, subscriberID string) bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	subs, exists := n.rooms[roomID]
	if !exists {
		return false
	}
	mb, exists := subs[subscriberID]
	if !exists {
		return false
	}

	mb.stop()
	delete(subs, subscriberID)
	if len(subs) == 0 {
		delete(n.rooms, roomID)
	}
	n.total--
	n.reportTotal()

	logger.Log.Debugw("subscriber removed", "room", roomID, "subscriber", subscriberID, "count", len(subs))
	return true
}

// UnsubscribeAll drops every subscriber of roomID and returns how many there
// were. Subscribers implementing Detacher are told.
func (n *Notifier) UnsubscribeAll(roomID string) int {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	subs := n.rooms[roomID]
	for _, mb := range subs {
		mb.stop()
		mb.detach()
	}
	delete(n.rooms, roomID)
	n.total -= len(subs)
	n.reportTotal()
	return len(subs)
}

// Publish queues snapshot for every current subscriber of roomID.
func (n *Notifier) Publish(roomID string, snapshot models.Room) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	for _, mb := range n.rooms[roomID] {
		mb.offer(snapshot.Clone())
	}
}

// Count returns the number of subscribers of roomID.
func (n *Notifier) Count(roomID string) int {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return len(n.rooms[roomID])
}

// Total returns the number of subscribers across all rooms.
func (n *Notifier) Total() int {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.total
}

// Close removes every subscriber.
func (n *Notifier) Close() {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	for roomID, subs := range n.rooms {
		for _, mb := range subs {
			mb.stop()
			mb.detach()
		}
		delete(n.rooms, roomID)
	}
	n.total = 0
	n.reportTotal()
}

func (n *Notifier) reportTotal() {
	if n.observer != nil {
		n.observer.SetSubscribers(n.total)
	}
}

type mailbox struct {
	roomID   string
	sub      Subscriber
	queue    chan models.Room
	done     chan struct{}
	observer Observer
}

func newMailbox(roomID string, sub Subscriber, size int, observer Observer) *mailbox {
	return &mailbox{
		roomID:   roomID,
		sub:      sub,
		queue:    make(chan models.Room, size),
		done:     make(chan struct{}),
		observer: observer,
	}
}

// offer enqueues without blocking, discarding the oldest queued snapshot
// when the queue is full.
func (mb *mailbox) offer(snapshot models.Room) {
	for {
		select {
		case mb.queue <- snapshot:
			return
		default:
		}

		select {
		case <-mb.queue:
			logger.Log.Warnw("subscriber queue full, dropping oldest snapshot", "room", mb.roomID, "subscriber", mb.sub.ID())
			if mb.observer != nil {
				mb.observer.NotificationDropped(mb.roomID)
			}
		default:
		}
	}
}

func (mb *mailbox) stop() {
	close(mb.done)
}

func (mb *mailbox) detach() {
	if d, ok := mb.sub.(Detacher); ok {
		d.Detached(mb.roomID)
	}
}

func (mb *mailbox) run() {
	for {
		select {
		case <-mb.done:
			return
		case snapshot := <-mb.queue:
			select {
			case <-mb.done:
				return
			default:
			}
			mb.deliver(snapshot)
		}
	}
}

// deliver never lets a subscriber failure escape: errors and panics are
// logged and the subscriber stays registered.
func (mb *mailbox) deliver(snapshot models.Room) {
	defer func() {
		if r := recover(); r != nil {
			mb.failed(fmt.Errorf("panic: %v", r))
		}
	}()
	if err := mb.sub.Deliver(snapshot); err != nil {
		mb.failed(err)
	}
}

func (mb *mailbox) failed(err error) {
	logger.Log.Warnw("subscriber delivery failed", "room", mb.roomID, "subscriber", mb.sub.ID(), "error", err)
	if mb.observer != nil {
		mb.observer.NotificationFailed(mb.roomID)
	}
}

// Fanout publishes to several publishers in order.
type Fanout []room.Publisher

func (f Fanout) Publish(roomID string, snapshot models.Room) {
	for _, p := range f {
		p.Publish(roomID, snapshot)
	}
}
