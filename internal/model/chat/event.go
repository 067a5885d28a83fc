package chat

import (
	"encoding/json"
	"time"
)

// Wire event names shared by the websocket protocol.
const (
	EventIdentify       = "identify"
	EventRestoreChat    = "restore-chat"
	EventVisitorOnline  = "visitor-online"
	EventVisitorOffline = "visitor-offline"
	EventAdminOnline    = "admin-online"
	EventVisitorMessage = "visitor-message"
	EventAdminResponse  = "admin-response"
	EventTyping         = "typing"
	EventActiveSessions = "active-sessions"
)

// Identify types.
const (
	IdentifyVisitor = "visitor"
	IdentifyAdmin   = "admin"
)

// Envelope is the frame every websocket message travels in.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is an event the server sends to a connection.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// IdentifyPayload is the first event on every connection.
type IdentifyPayload struct {
	Type      string `json:"type" validate:"required,oneof=visitor admin"`
	SessionID string `json:"sessionId,omitempty" validate:"required_if=Type visitor,max=128"`
	Token     string `json:"token,omitempty" validate:"required_if=Type admin"`
}

// VisitorMessagePayload is sent by a visitor. The timestamp is informational
// only; the server stamps messages on receipt.
type VisitorMessagePayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message" validate:"required"`
	Timestamp string `json:"timestamp,omitempty"`
}

// AdminResponsePayload is sent by staff to answer a visitor.
type AdminResponsePayload struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	Message   string `json:"message" validate:"required"`
}

// TypingPayload toggles the typing indicator of the other party.
type TypingPayload struct {
	SessionID string `json:"sessionId,omitempty" validate:"max=128"`
	Typing    *bool  `json:"typing,omitempty"`
}

// PresenceEvent announces a visitor session coming online or going offline.
type PresenceEvent struct {
	SessionID string `json:"sessionId"`
}

// VisitorMessageEvent is the rebroadcast of a visitor message to staff.
type VisitorMessageEvent struct {
	SessionID string    `json:"sessionId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AdminResponseEvent delivers a staff or automatic reply to the visitor.
type AdminResponseEvent struct {
	SessionID string  `json:"sessionId"`
	Message   Message `json:"message"`
}

// TypingEvent is the forwarded typing indicator.
type TypingEvent struct {
	SessionID string `json:"sessionId"`
	From      Sender `json:"from"`
	Typing    bool   `json:"typing"`
}

// Inbound is any decoded client event.
type Inbound interface {
	EventName() string
}

func (IdentifyPayload) EventName() string       { return EventIdentify }
func (VisitorMessagePayload) EventName() string { return EventVisitorMessage }
func (AdminResponsePayload) EventName() string  { return EventAdminResponse }
func (TypingPayload) EventName() string         { return EventTyping }
