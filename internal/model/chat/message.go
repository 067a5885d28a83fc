package chat

import "time"

// Sender identifies which side of the conversation wrote a message.
type Sender string

const (
	SenderVisitor Sender = "visitor"
	SenderAdmin   Sender = "admin"
)

// Message is one immutable chat line. Text is sender supplied and must be
// escaped by whatever renders it as HTML.
type Message struct {
	From      Sender    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Auto      bool      `json:"auto,omitempty"`
}
