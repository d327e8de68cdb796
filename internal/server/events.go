// Package server defines the JSON event envelope and payload types exchanged
// with clients over the WebSocket transport.
package server

import (
	"encoding/json"

	"github.com/whisperwire/whisperwire/internal/model"
)

// Inbound event names accepted from clients.
const (
	EventIdentify        = "identify"
	EventRequestHistory  = "requestHistory"
	EventSendMessage     = "sendMessage"
	EventAcknowledgeSeen = "acknowledgeSeen"
	EventNotifyTyping    = "notifyTyping"
)

// Outbound event names pushed to clients.
const (
	EventPresenceSnapshot = "presenceSnapshot"
	EventChatHistory      = "chatHistory"
	EventMessageDelivered = "messageDelivered"
	EventStatusUpdated    = "statusUpdated"
	EventTypingIndicator  = "typingIndicator"
)

// Envelope wraps every frame on the wire: an event name plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// IdentifyPayload binds a username to the current connection. The optional
// status label seeds the presence snapshot entry for this user.
type IdentifyPayload struct {
	Username string `json:"username"`
	Status   string `json:"status,omitempty"`
}

// HistoryRequestPayload asks for the conversation between two users.
type HistoryRequestPayload struct {
	UserA string `json:"userA"`
	UserB string `json:"userB"`
}

// SendMessagePayload carries an outbound private message. ID is optional;
// the router generates one when absent.
type SendMessagePayload struct {
	ID       string `json:"id,omitempty"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Text     string `json:"text"`
}

// SeenPayload acknowledges that the recipient has seen a message.
type SeenPayload struct {
	ID string `json:"id"`
}

// TypingPayload signals that sender is typing to receiver.
type TypingPayload struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

// StatusUpdatePayload notifies the original sender of a status transition.
type StatusUpdatePayload struct {
	ID     string       `json:"id"`
	Status model.Status `json:"status"`
}

// TypingIndicatorPayload is the transient typing signal relayed to a peer.
type TypingIndicatorPayload struct {
	Sender string `json:"sender"`
}

// encodeEvent marshals an envelope with the given payload. Payload types are
// all marshalable structs, so errors only occur on programmer mistakes.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
