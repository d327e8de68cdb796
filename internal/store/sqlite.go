package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/whisperwire/whisperwire/internal/model"
)

// timeLayout is a fixed-width RFC3339 variant; padding the fractional part
// keeps lexicographic order equal to chronological order in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite implements MessageStore and CredentialStore on a local SQLite file.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLite{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id        TEXT PRIMARY KEY,
			sender    TEXT NOT NULL,
			receiver  TEXT NOT NULL,
			text      TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			status    TEXT NOT NULL DEFAULT 'sent'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender, receiver, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair_rev ON messages(receiver, sender, timestamp)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Append persists a new message. The message's own status is stored so the
// caller controls the initial state.
func (s *SQLite) Append(ctx context.Context, msg *model.Message) error {
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO messages (id, sender, receiver, text, timestamp, status) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.Sender, msg.Receiver, msg.Text,
		msg.Timestamp.UTC().Format(timeLayout), string(msg.Status),
	)
	if err != nil {
		return fmt.Errorf("append message %s: %w", msg.ID, err)
	}
	return nil
}

// FindByParticipants returns the conversation between userA and userB in both
// directions, ascending by timestamp.
func (s *SQLite) FindByParticipants(ctx context.Context, userA, userB string) ([]model.Message, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, sender, receiver, text, timestamp, status
		FROM messages
		WHERE (sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)
		ORDER BY timestamp ASC`,
		userA, userB, userB, userA,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var ts, status string
		if err := rows.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Text, &ts, &status); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp of message %s: %w", m.ID, err)
		}
		m.Status = model.Status(status)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// UpdateStatus records a delivery status change. Updating an unknown id is
// not an error; the row count is simply zero.
func (s *SQLite) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	_, err := s.conn.ExecContext(ctx,
		"UPDATE messages SET status = ? WHERE id = ?",
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("update status of message %s: %w", id, err)
	}
	return nil
}

// CreateUser stores a new account with a bcrypt password hash.
func (s *SQLite) CreateUser(ctx context.Context, username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		"INSERT INTO users (username, password) VALUES (?, ?)",
		username, string(hashed),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateUser
		}
		return fmt.Errorf("create user %s: %w", username, err)
	}
	return nil
}

// VerifyCredentials reports whether the username exists and the password
// matches. An unknown user is (false, nil), not an error.
func (s *SQLite) VerifyCredentials(ctx context.Context, username, password string) (bool, error) {
	var hashed string
	err := s.conn.QueryRowContext(ctx,
		"SELECT password FROM users WHERE username = ?", username,
	).Scan(&hashed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load user %s: %w", username, err)
	}

	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil, nil
}
