// Package store defines the durable storage contracts consumed by the chat
// core and their SQLite implementation.
package store

import (
	"context"
	"errors"

	"github.com/whisperwire/whisperwire/internal/model"
)

// ErrDuplicateUser is returned by CreateUser when the username is taken.
var ErrDuplicateUser = errors.New("user already exists")

// MessageStore is the durable, queryable append-log of private messages.
type MessageStore interface {
	// Append persists a new message with its initial status.
	Append(ctx context.Context, msg *model.Message) error
	// FindByParticipants returns every message exchanged between the two
	// users, in either direction, ordered by ascending timestamp.
	FindByParticipants(ctx context.Context, userA, userB string) ([]model.Message, error)
	// UpdateStatus records a delivery status change for a message id.
	UpdateStatus(ctx context.Context, id string, status model.Status) error
}

// CredentialStore holds user accounts for the signup/login glue. The chat
// core itself never consults it; identity is asserted at connection time.
type CredentialStore interface {
	CreateUser(ctx context.Context, username, password string) error
	VerifyCredentials(ctx context.Context, username, password string) (bool, error)
}
