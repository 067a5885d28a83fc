package chat

import "time"

// Session is the durable conversation record of one website visitor, keyed by
// the client generated session id.
type Session struct {
	ID        string    `json:"sessionId"`
	Online    bool      `json:"online"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy that shares no backing storage with s.
func (s Session) Clone() Session {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

// Summary is the condensed view staff consoles use for their session list.
type Summary struct {
	SessionID    string    `json:"sessionId"`
	Online       bool      `json:"online"`
	MessageCount int       `json:"messageCount"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summarize builds the console summary for s.
func (s Session) Summarize() Summary {
	summary := Summary{
		SessionID:    s.ID,
		Online:       s.Online,
		MessageCount: len(s.Messages),
		UpdatedAt:    s.UpdatedAt,
	}
	if n := len(s.Messages); n > 0 {
		last := s.Messages[n-1]
		summary.LastMessage = &last
	}
	return summary
}
