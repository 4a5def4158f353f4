// Package events delivers title-generation progress to subscribers in
// real time: an in-process broker fans events out to per-subscriber
// queues, and a WebSocket connection manager bridges them to clients.
package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/quorumlabs/council/pkg/models"
)

// TitleEvent is the envelope delivered to push subscribers.
type TitleEvent struct {
	Type           string             `json:"type"`
	ConversationID string             `json:"conversation_id"`
	Status         models.TitleStatus `json:"status"`
	// Data carries the generated title on complete, a thinking delta on
	// thinking, or an error message on error.
	Data string `json:"data,omitempty"`
}

// EventTypeTitleStatus is the type field of every title progress envelope.
const EventTypeTitleStatus = "title.status"

// CloseReasonLagged is the close reason handed to subscribers that were
// dropped for not keeping up.
const CloseReasonLagged = "subscriber_lagged"

// subscriberBuffer is each subscriber's queue depth. A subscriber that
// falls this far behind is dropped rather than back-pressuring publishers.
const subscriberBuffer = 64

// Subscription is one subscriber's handle. Events arrive on C until the
// subscription ends; after C is closed, CloseReason reports why.
type Subscription struct {
	id string
	ch chan TitleEvent

	mu     sync.Mutex
	reason string
}

// C returns the subscriber's event channel.
func (s *Subscription) C() <-chan TitleEvent { return s.ch }

// CloseReason returns the close reason ("" for an orderly close,
// CloseReasonLagged when the subscriber was dropped). Valid after C is
// closed.
func (s *Subscription) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Subscription) setReason(reason string) {
	s.mu.Lock()
	s.reason = reason
	s.mu.Unlock()
}

// Broker fans title events out to subscribers. Delivery is best-effort and
// fire-and-forget: there is no replay buffer, and a subscriber that attaches
// after an event fires does not receive it.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]*Subscription)}
}

// Subscribe registers a new subscriber. Returns nil when the broker has
// already shut down.
func (b *Broker) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	sub := &Subscription{
		id: uuid.New().String(),
		ch: make(chan TitleEvent, subscriberBuffer),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish delivers an event to every subscriber without blocking. Slow
// subscribers are dropped with CloseReasonLagged.
func (b *Broker) Publish(ev TitleEvent) {
	ev.Type = EventTypeTitleStatus

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("Dropping lagged push subscriber", "subscriber_id", id)
			sub.setReason(CloseReasonLagged)
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops all subscribers and rejects future subscriptions.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
