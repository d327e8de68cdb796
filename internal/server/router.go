// Package server routes private messages between connections via the Router
// type: persist, advance delivery state, fan out.
package server

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/whisperwire/whisperwire/internal/model"
	"github.com/whisperwire/whisperwire/internal/store"
)

// Router receives outbound message events, persists them, advances their
// delivery state, and fans them out to the correct connections.
//
// Delivery is best-effort and at-most-once: a store failure is logged, the
// recipient fan-out for that message is skipped, and the sender's optimistic
// acknowledgment is not rolled back. Nothing here retries and nothing here
// is fatal to a connection loop.
type Router struct {
	registry *Registry
	tracker  *DeliveryTracker
	messages store.MessageStore
	log      *zap.Logger
}

// NewRouter wires the router to its registry, tracker, and message store.
func NewRouter(registry *Registry, tracker *DeliveryTracker, messages store.MessageStore, log *zap.Logger) *Router {
	return &Router{
		registry: registry,
		tracker:  tracker,
		messages: messages,
		log:      log,
	}
}

// SendPrivate accepts an outbound message from the connection from. Sender,
// receiver, and text must all be non-empty; malformed input is silently
// dropped rather than erroring the connection. The sender is always echoed
// the message at status "sent". If the receiver is registered the message is
// delivered to them and advanced to "delivered"; otherwise it stays "sent"
// and surfaces as backlog on the receiver's next history load.
func (rt *Router) SendPrivate(ctx context.Context, from *Client, sender, receiver, text, id string) {
	if sender == "" || receiver == "" || text == "" {
		rt.log.Debug("dropping malformed message",
			zap.String("sender", sender), zap.String("receiver", receiver))
		return
	}
	if id == "" {
		id = newMessageID()
	}

	msg := &model.Message{
		ID:        id,
		Sender:    sender,
		Receiver:  receiver,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Status:    model.StatusSent,
	}
	rt.tracker.Create(id, sender)

	persisted := true
	if err := rt.messages.Append(ctx, msg); err != nil {
		rt.log.Error("persist message", zap.String("id", id), zap.Error(err))
		persisted = false
	}

	from.sendEvent(EventMessageDelivered, msg)

	if !persisted {
		return
	}

	peer, online := rt.registry.Lookup(receiver)
	if !online {
		return
	}
	if !rt.tracker.MarkDelivered(id) {
		return
	}

	msg.Status = model.StatusDelivered
	if err := rt.messages.UpdateStatus(ctx, id, model.StatusDelivered); err != nil {
		rt.log.Error("persist delivered status", zap.String("id", id), zap.Error(err))
	}
	peer.sendEvent(EventMessageDelivered, msg)
}

// MarkSeen handles a seen acknowledgment from a recipient: advance the
// tracker, persist the terminal status, and notify the original sender's
// connection if they are still registered.
func (rt *Router) MarkSeen(ctx context.Context, id string) {
	if id == "" {
		return
	}

	sender, changed := rt.tracker.MarkSeen(id)
	if !changed {
		return
	}

	if err := rt.messages.UpdateStatus(ctx, id, model.StatusSeen); err != nil {
		rt.log.Error("persist seen status", zap.String("id", id), zap.Error(err))
	}

	if sender == "" {
		return
	}
	if origin, ok := rt.registry.Lookup(sender); ok {
		origin.sendEvent(EventStatusUpdated, StatusUpdatePayload{ID: id, Status: model.StatusSeen})
	}
}

// LoadHistory sends the full conversation between userA and userB, ascending
// by timestamp, to the requesting connection. Read-only; no state changes.
func (rt *Router) LoadHistory(ctx context.Context, to *Client, userA, userB string) {
	if userA == "" || userB == "" {
		return
	}

	messages, err := rt.messages.FindByParticipants(ctx, userA, userB)
	if err != nil {
		rt.log.Error("load history",
			zap.String("userA", userA), zap.String("userB", userB), zap.Error(err))
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	to.sendEvent(EventChatHistory, messages)
}

// RelayTyping forwards a transient typing signal to the receiver if they are
// registered. Fire-and-forget: no persistence, no delivery state, no retry.
func (rt *Router) RelayTyping(sender, receiver string) {
	if sender == "" || receiver == "" {
		return
	}
	if peer, ok := rt.registry.Lookup(receiver); ok {
		peer.sendEvent(EventTypingIndicator, TypingIndicatorPayload{Sender: sender})
	}
}

func newMessageID() string {
	id, err := uuid.NewV4()
	if err != nil {
		// NewV4 only fails when the system entropy source does; fall back
		// to a timestamp id rather than dropping the message.
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return id.String()
}
