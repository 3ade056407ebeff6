package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/inquest/pkg/models"
)

// Subscriber is one live consumer of a session's event stream. It owns a
// bounded queue fed by the broadcaster; a subscriber that cannot keep up is
// evicted (Dropped fires) rather than ever blocking the worker.
//
// Consumers read Events until it is closed (terminal close) while also
// selecting on Dropped.
type Subscriber struct {
	id      string
	fromSeq int64

	events  chan models.Event
	dropped chan struct{}

	dropOnce  sync.Once
	closeOnce sync.Once
}

func newSubscriber(fromSeq int64, capacity int) *Subscriber {
	return &Subscriber{
		id:      uuid.New().String(),
		fromSeq: fromSeq,
		events:  make(chan models.Event, capacity),
		dropped: make(chan struct{}),
	}
}

// ID returns the subscriber id (used in logs only).
func (s *Subscriber) ID() string { return s.id }

// FromSeq returns the cursor the subscriber was created with.
func (s *Subscriber) FromSeq() int64 { return s.fromSeq }

// Events is the live event queue. Closed when the session reaches a
// terminal status and all events have been enqueued.
func (s *Subscriber) Events() <-chan models.Event { return s.events }

// Dropped is closed when the subscriber has been evicted for slow
// consumption. At most one eviction is ever observed.
func (s *Subscriber) Dropped() <-chan struct{} { return s.dropped }

// tryEnqueue attempts a non-blocking enqueue. Returns false if the queue
// is full, in which case the caller evicts the subscriber.
func (s *Subscriber) tryEnqueue(e models.Event) bool {
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

// drop fires the eviction signal. Idempotent.
func (s *Subscriber) drop() {
	s.dropOnce.Do(func() { close(s.dropped) })
}

// closeTerminal closes the event queue after the final event. Idempotent.
func (s *Subscriber) closeTerminal() {
	s.closeOnce.Do(func() { close(s.events) })
}
