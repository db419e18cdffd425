// services/claim_events.go
package services

import (
	"sync"
	"time"

	"game-rewards-system/models"

	"github.com/jonboulle/clockwork"
)

// ClaimEvent is one state transition of a feature's claim.
type ClaimEvent struct {
	FeatureKey string            `json:"feature_key"`
	State      models.ClaimState `json:"state"`
	At         time.Time         `json:"at"`
}

// ClaimEventHub fans claim transitions out to subscribers. Slow subscribers
// miss events instead of blocking claims.
type ClaimEventHub struct {
	Clock clockwork.Clock

	mu     sync.Mutex
	nextID int
	subs   map[int]chan ClaimEvent
}

func NewClaimEventHub(clock clockwork.Clock) *ClaimEventHub {
	return &ClaimEventHub{Clock: clock, subs: make(map[int]chan ClaimEvent)}
}

// Subscribe returns a channel of future events and a function that closes it.
func (h *ClaimEventHub) Subscribe(buffer int) (<-chan ClaimEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan ClaimEvent, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish matches the ClaimReconciler transition hook.
func (h *ClaimEventHub) Publish(featureKey string, state models.ClaimState) {
	ev := ClaimEvent{FeatureKey: featureKey, State: state, At: h.Clock.Now()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the number of open subscriptions.
func (h *ClaimEventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
