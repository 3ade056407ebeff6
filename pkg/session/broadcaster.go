package session

import (
	"log/slog"
	"time"

	"github.com/codeready-toolchain/inquest/pkg/models"
)

// Append stamps the payload with the next sequence number, writes it to
// history, and fans it out to every current subscriber. Only the session's
// worker calls Append, so enqueues for a given subscriber stay FIFO.
//
// The lock covers the history write and the subscriber-set snapshot only;
// enqueues happen outside the lock and never block; a subscriber whose
// queue is full is evicted on the spot.
//
// Returns the stamped event. Appends on a terminal session are dropped:
// terminality is part of the event contract.
func (r *Record) Append(payload models.Payload) (models.Event, bool) {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		slog.Warn("Dropping event append on terminal session",
			"session_id", r.id, "kind", payload.EventKind())
		return models.Event{}, false
	}

	event := models.NewEvent(int64(len(r.history))+1, payload)
	r.history = append(r.history, event)
	r.updatedAt = time.Now()

	subs := r.snapshotSubsLocked()
	r.mu.Unlock()

	r.fanOut(event, subs)
	return event, true
}

// Finish performs the terminal transition: sets the final status (and
// diagnosis, when completed), then closes every subscriber queue so
// readers unblock and complete their responses. Idempotent.
func (r *Record) Finish(status models.Status, finalMessage string) {
	if !status.Terminal() {
		panic("session: Finish called with non-terminal status " + string(status))
	}

	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.status = status
	r.finalMessage = finalMessage
	r.updatedAt = time.Now()
	subs := r.snapshotSubsLocked()
	r.mu.Unlock()

	for _, sub := range subs {
		sub.closeTerminal()
	}
}

// Subscribe registers a new subscriber and returns it together with the
// replay segment: all history events with seq > fromSeq, snapshotted
// atomically with the registration so the caller sees no gap and no
// duplicate between replay and live tail.
//
// On an already-terminal session the returned subscriber's queue is
// closed; the caller streams the replay and completes.
func (r *Record) Subscribe(fromSeq int64) (*Subscriber, []models.Event) {
	sub := newSubscriber(fromSeq, r.queueCap)

	r.mu.Lock()
	var replay []models.Event
	for _, e := range r.history {
		if e.Seq > fromSeq {
			replay = append(replay, e)
		}
	}
	terminal := r.status.Terminal()
	if !terminal {
		r.subs[sub] = struct{}{}
	}
	r.mu.Unlock()

	if terminal {
		sub.closeTerminal()
	}
	return sub, replay
}

// Unsubscribe removes a subscriber (client disconnect). The underlying run
// is unaffected; later reconnects still receive the outcome.
func (r *Record) Unsubscribe(sub *Subscriber) {
	r.mu.Lock()
	delete(r.subs, sub)
	r.mu.Unlock()
}

// SubscriberCount returns the number of live subscribers. Used by tests to
// poll instead of sleeping.
func (r *Record) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// snapshotSubsLocked copies the subscriber set. Caller holds r.mu.
func (r *Record) snapshotSubsLocked() []*Subscriber {
	subs := make([]*Subscriber, 0, len(r.subs))
	for sub := range r.subs {
		subs = append(subs, sub)
	}
	return subs
}

// fanOut delivers the event to each snapshotted subscriber without
// blocking. Overflow evicts: the subscriber gets its drop signal and is
// removed from the set so the worker never waits on a slow consumer.
func (r *Record) fanOut(event models.Event, subs []*Subscriber) {
	var evicted []*Subscriber
	for _, sub := range subs {
		if !sub.tryEnqueue(event) {
			sub.drop()
			evicted = append(evicted, sub)
		}
	}
	if len(evicted) == 0 {
		return
	}

	r.mu.Lock()
	for _, sub := range evicted {
		delete(r.subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range evicted {
		slog.Warn("Evicted slow subscriber",
			"session_id", r.id, "subscriber_id", sub.ID(), "seq", event.Seq)
	}
}
