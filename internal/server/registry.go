// Package server tracks which users currently hold a live connection via the
// Registry type.
package server

import (
	"sort"
	"sync"
)

// Registry is the single source of truth for "who is online". It maps a
// username to its currently active client connection. A username holds at
// most one connection; registering again overwrites the previous binding
// (last-write-wins, to tolerate reconnects and multiple tabs).
//
// The registry only mutates its map. Broadcasting the resulting presence
// change is the caller's responsibility, which keeps registry logic testable
// without a live transport.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Client
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Client)}
}

// Register binds username to c, overwriting any prior binding for that
// username. It returns the superseded client, if any, so the caller can
// decide what to do with the stale session.
func (r *Registry) Register(username string, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[username]
	r.conns[username] = c
	if prev == c {
		return nil
	}
	return prev
}

// Unregister removes the binding for c's username only if c is still the
// registered connection. A disconnect of a superseded session must not evict
// the newer one, so a mismatched handle is a no-op. It reports whether a
// binding was actually removed.
func (r *Registry) Unregister(c *Client) bool {
	username := c.Username()
	if username == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[username] != c {
		return false
	}
	delete(r.conns, username)
	return true
}

// Lookup returns the live connection for username, if any.
func (r *Registry) Lookup(username string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[username]
	return c, ok
}

// Usernames returns a sorted snapshot of all registered usernames.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clients returns a snapshot of all registered connections.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		clients = append(clients, c)
	}
	return clients
}
