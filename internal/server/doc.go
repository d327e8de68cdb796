// Package server implements the Whisperwire presence-and-delivery core: a
// WebSocket hub tracking which users are online, a router relaying private
// messages through their sent/delivered/seen lifecycle, and a presence
// broadcaster pushing the online-user list to every connected peer.
//
// The implementation is organized into specialized files for the registry,
// delivery tracking, routing, presence, clients, and HTTP handlers to keep
// the codebase maintainable and testable as the project grows.
package server
