package models

import "time"

// Message is append-only; it is removed only together with its match.
type Message struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"matchId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary returns the last-message summary for this message.
func (m Message) Summary() *LastMessage {
	content := m.Content
	if m.Type != MessageTypeText {
		content = "[System message]"
	}
	return &LastMessage{Content: content, SenderID: m.SenderID, Timestamp: m.Timestamp}
}
