package server

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whisperwire/whisperwire/internal/model"
)

// newTestClient builds a client with a buffered send channel and no live
// connection; unit tests inspect the channel instead of running the pumps.
func newTestClient(username string) *Client {
	c := &Client{
		send: make(chan []byte, sendBufferSize),
		log:  zap.NewNop(),
	}
	if username != "" {
		c.setUsername(username)
	}
	return c
}

// recvEvent pops the next queued frame from a test client.
func recvEvent(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	default:
		t.Fatal("expected a queued event, found none")
		return Envelope{}
	}
}

func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("expected no queued event, got %s", raw)
	default:
	}
}

func decodePayload[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

var errStoreDown = errors.New("store unavailable")

// fakeMessageStore records appends and status updates in memory.
type fakeMessageStore struct {
	mu         sync.Mutex
	messages   []model.Message
	statuses   map[string]model.Status
	failAppend bool
	failUpdate bool
	failQuery  bool
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{statuses: make(map[string]model.Status)}
}

func (f *fakeMessageStore) Append(_ context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend {
		return errStoreDown
	}
	f.messages = append(f.messages, *msg)
	f.statuses[msg.ID] = msg.Status
	return nil
}

func (f *fakeMessageStore) FindByParticipants(_ context.Context, userA, userB string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failQuery {
		return nil, errStoreDown
	}

	var out []model.Message
	for _, m := range f.messages {
		if (m.Sender == userA && m.Receiver == userB) || (m.Sender == userB && m.Receiver == userA) {
			m.Status = f.statuses[m.ID]
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (f *fakeMessageStore) UpdateStatus(_ context.Context, id string, status model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return errStoreDown
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeMessageStore) status(id string) model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}
