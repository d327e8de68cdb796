// Package server governs the sent/delivered/seen lifecycle of in-flight
// messages via the DeliveryTracker type.
package server

import (
	"sync"

	"github.com/whisperwire/whisperwire/internal/model"
)

var statusRank = map[model.Status]int{
	model.StatusSent:      0,
	model.StatusDelivered: 1,
	model.StatusSeen:      2,
}

type inflight struct {
	status model.Status
	sender string
}

// DeliveryTracker owns the authoritative in-flight delivery status for each
// message id. Status is strictly monotonic: it may only advance
// sent -> delivered -> seen, and seen is terminal. Out-of-order or duplicate
// transitions are expected under concurrent delivery and are silent no-ops,
// never errors.
type DeliveryTracker struct {
	mu     sync.Mutex
	states map[string]inflight
}

// NewDeliveryTracker creates an empty tracker.
func NewDeliveryTracker() *DeliveryTracker {
	return &DeliveryTracker{states: make(map[string]inflight)}
}

// Create records a freshly accepted message at status "sent", remembering
// its sender so a later seen transition can notify them.
func (t *DeliveryTracker) Create(id, sender string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.states[id]; ok {
		return
	}
	t.states[id] = inflight{status: model.StatusSent, sender: sender}
}

// MarkDelivered advances sent -> delivered. It reports whether the state
// actually changed; repeats and calls after seen are no-ops since network
// delays can cause the delivery path to be evaluated more than once.
func (t *DeliveryTracker) MarkDelivered(id string) bool {
	return t.advance(id, model.StatusDelivered) != nil
}

// MarkSeen advances to the terminal seen state. Both delivered -> seen and
// the direct sent -> seen path are accepted; a recipient may mark a message
// seen without an explicit delivered step (client-side catch-up). When the
// state changes it returns the original sender so the caller can notify
// them; otherwise it returns ok=false.
func (t *DeliveryTracker) MarkSeen(id string) (sender string, ok bool) {
	entry := t.advance(id, model.StatusSeen)
	if entry == nil {
		return "", false
	}
	return entry.sender, true
}

// Status returns the tracked state for id, if any.
func (t *DeliveryTracker) Status(id string) (model.Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.states[id]
	if !ok {
		return "", false
	}
	return entry.status, true
}

// advance moves id forward to target if that is a strictly later state,
// returning the updated entry, or nil when nothing changed. Ids unknown to
// the tracker are adopted at the target state: a seen acknowledgment may
// arrive for a message persisted before a restart, and that must still be a
// valid transition rather than a fault. Adopted entries carry no sender.
func (t *DeliveryTracker) advance(id string, target model.Status) *inflight {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.states[id]
	if !ok {
		entry = inflight{status: target}
		t.states[id] = entry
		return &entry
	}
	if statusRank[target] <= statusRank[entry.status] {
		return nil
	}
	entry.status = target
	t.states[id] = entry
	return &entry
}
