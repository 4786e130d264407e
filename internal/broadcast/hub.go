// Package broadcast provides the per-challenge publish/subscribe hub.
// Delivery is at-most-once and best-effort: publishing never blocks, so a
// slow or disconnected subscriber can never delay a settlement.
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType identifies a challenge channel event.
type EventType string

const (
	EventSnapshot           EventType = "snapshot"
	EventRosterChanged      EventType = "roster-changed"
	EventChallengeStarted   EventType = "challenge-started"
	EventPlayerFailed       EventType = "player-failed"
	EventChallengeCompleted EventType = "challenge-completed"
)

// Event is one message on a challenge channel.
type Event struct {
	ID          string    `json:"id"`
	ChallengeID string    `json:"challenge_id"`
	Type        EventType `json:"type"`
	At          time.Time `json:"at"`
	Payload     any       `json:"payload,omitempty"`
}

// subscriberBuffer is the per-subscriber channel capacity. Events beyond it
// are dropped for that subscriber only.
const subscriberBuffer = 16

// Subscription is one subscriber's handle on a challenge channel.
type Subscription struct {
	hub         *Hub
	challengeID string
	ch          chan Event
	closeOnce   sync.Once
}

// Events returns the subscriber's event channel. It is closed on
// Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Unsubscribe detaches the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.hub.remove(s)
}

// Hub fans events out to the subscribers of each challenge channel.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe attaches a subscriber to a challenge channel. The snapshot is
// delivered immediately as the first event; every subsequent state change on
// that channel follows until Unsubscribe.
func (h *Hub) Subscribe(challengeID string, snapshot any) *Subscription {
	sub := &Subscription{
		hub:         h,
		challengeID: challengeID,
		ch:          make(chan Event, subscriberBuffer),
	}

	h.mu.Lock()
	if h.subs[challengeID] == nil {
		h.subs[challengeID] = make(map[*Subscription]struct{})
	}
	h.subs[challengeID][sub] = struct{}{}
	h.mu.Unlock()

	// Buffered and freshly created, so the snapshot always fits.
	sub.ch <- newEvent(challengeID, EventSnapshot, snapshot)
	return sub
}

// Publish sends an event to every subscriber of the challenge channel.
// Subscribers whose buffers are full miss this event.
func (h *Hub) Publish(challengeID string, eventType EventType, payload any) {
	ev := newEvent(challengeID, eventType, payload)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[challengeID] {
		select {
		case sub.ch <- ev:
		default:
			log.Warn().
				Str("challenge_id", challengeID).
				Str("event", string(eventType)).
				Msg("Dropping event for slow subscriber")
		}
	}
}

// SubscriberCount returns the number of subscribers on a challenge channel.
func (h *Hub) SubscriberCount(challengeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[challengeID])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if set, ok := h.subs[sub.challengeID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.challengeID)
		}
	}
	h.mu.Unlock()

	sub.closeOnce.Do(func() { close(sub.ch) })
}

func newEvent(challengeID string, eventType EventType, payload any) Event {
	return Event{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		Type:        eventType,
		At:          time.Now(),
		Payload:     payload,
	}
}
