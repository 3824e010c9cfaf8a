package api

import (
	"encoding/json"
)

// Websocket event names
const (
	EventNewMessage  = "newMessage"
	EventOnlineUsers = "getOnlineUsers"
	EventMessageSeen = "messageSeen"
)

// Envelope is the frame exchanged over a websocket session.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MessageSeenEvent is sent by a client after it displayed a pushed message.
type MessageSeenEvent struct {
	MessageID string `json:"messageId"`
}

// EncodeEvent builds the wire frame for an outbound event.
func EncodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
