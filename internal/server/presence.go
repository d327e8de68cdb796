// Package server derives the online-user snapshot and pushes it to connected
// peers via the Presence type.
package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/whisperwire/whisperwire/internal/model"
)

// DefaultStatusLabel is assigned to users that never set a custom status.
const DefaultStatusLabel = "Active"

// Presence computes the presence snapshot from the registry and broadcasts
// it to every registered connection. The snapshot is never persisted; it is
// recomputed in full on every registry or status-label change. Full-snapshot
// broadcasts are O(connected users) per change, which is acceptable at the
// connection counts this server targets.
type Presence struct {
	registry *Registry
	log      *zap.Logger

	mu     sync.Mutex
	labels map[string]string
}

// NewPresence creates a broadcaster over the given registry.
func NewPresence(registry *Registry, log *zap.Logger) *Presence {
	return &Presence{
		registry: registry,
		log:      log,
		labels:   make(map[string]string),
	}
}

// SetStatus updates the per-user status label. The caller is expected to
// follow up with Broadcast.
func (p *Presence) SetStatus(username, label string) {
	if username == "" || label == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.labels[username] = label
}

// Forget drops the status label for a user that left the registry.
func (p *Presence) Forget(username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.labels, username)
}

// Snapshot is a pure projection of the current registry state: every
// registered username paired with its status label, sorted by username.
func (p *Presence) Snapshot() []model.PresenceEntry {
	names := p.registry.Usernames()

	p.mu.Lock()
	defer p.mu.Unlock()

	entries := make([]model.PresenceEntry, 0, len(names))
	for _, name := range names {
		label, ok := p.labels[name]
		if !ok {
			label = DefaultStatusLabel
		}
		entries = append(entries, model.PresenceEntry{Username: name, Status: label})
	}
	return entries
}

// Broadcast pushes the full snapshot to every registered connection. A peer
// whose send buffer is full simply misses this update; its own lifecycle
// will remove it from the registry soon enough.
func (p *Presence) Broadcast() {
	payload, err := encodeEvent(EventPresenceSnapshot, p.Snapshot())
	if err != nil {
		p.log.Error("encode presence snapshot", zap.Error(err))
		return
	}

	for _, c := range p.registry.Clients() {
		if !c.enqueue(payload) {
			p.log.Warn("presence push dropped", zap.String("username", c.Username()))
		}
	}
}
