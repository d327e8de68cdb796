// Package model defines the shared data types for messages and presence.
package model

import "time"

// Status is the delivery state attached to a private message. It only ever
// advances sent -> delivered -> seen; seen is terminal.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// Message represents one private communication between two users.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
}

// PresenceEntry is one row of the presence snapshot pushed to peers.
type PresenceEntry struct {
	Username string `json:"username"`
	Status   string `json:"status,omitempty"`
}
