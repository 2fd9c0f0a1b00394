package models

import "time"

// Match pairs exactly two users. Participants never change after creation
// and an archived match is never mutated again.
type Match struct {
	ID                      string                         `json:"id"`
	Participants            []string                       `json:"participants"`
	Status                  string                         `json:"status"`
	CreatedAt               time.Time                      `json:"createdAt"`
	UpdatedAt               time.Time                      `json:"updatedAt"`
	AnonymousPhaseEnds      time.Time                      `json:"anonymousPhaseEnds"`
	RevealRequestedBy       string                         `json:"revealRequestedBy,omitempty"`
	RevealedAt              *time.Time                     `json:"revealedAt,omitempty"`
	ArchivedAt              *time.Time                     `json:"archivedAt,omitempty"`
	ArchivedReason          string                         `json:"archivedReason,omitempty"`
	ParticipantInfo         map[string]ParticipantInfo     `json:"participantInfo,omitempty"`
	LastMessage             *LastMessage                   `json:"lastMessage,omitempty"`
	RevealedParticipantInfo map[string]RevealedParticipant `json:"revealedParticipantInfo,omitempty"`

	// Version increments on every committed mutation. Adapters without
	// native row locks use it for optimistic concurrency.
	Version int64 `json:"-"`
}

// ParticipantInfo records when each participant entered the pool.
type ParticipantInfo struct {
	JoinedAt time.Time `json:"joinedAt"`
}

// LastMessage summarises the most recent message in a match.
type LastMessage struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

// RevealedParticipant is the identity exposed after a mutual reveal.
type RevealedParticipant struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// HasParticipant reports whether userID is one of the two participants.
func (m *Match) HasParticipant(userID string) bool {
	for _, p := range m.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not userID.
func (m *Match) OtherParticipant(userID string) string {
	for _, p := range m.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// IsLive reports whether the match still holds its participants.
func (m *Match) IsLive() bool {
	return m.Status != StatusArchived
}

// Clone returns a deep copy so mutators never alias stored state.
func (m *Match) Clone() *Match {
	c := *m
	c.Participants = append([]string(nil), m.Participants...)
	if m.RevealedAt != nil {
		t := *m.RevealedAt
		c.RevealedAt = &t
	}
	if m.ArchivedAt != nil {
		t := *m.ArchivedAt
		c.ArchivedAt = &t
	}
	if m.ParticipantInfo != nil {
		c.ParticipantInfo = make(map[string]ParticipantInfo, len(m.ParticipantInfo))
		for k, v := range m.ParticipantInfo {
			c.ParticipantInfo[k] = v
		}
	}
	if m.LastMessage != nil {
		lm := *m.LastMessage
		c.LastMessage = &lm
	}
	if m.RevealedParticipantInfo != nil {
		c.RevealedParticipantInfo = make(map[string]RevealedParticipant, len(m.RevealedParticipantInfo))
		for k, v := range m.RevealedParticipantInfo {
			c.RevealedParticipantInfo[k] = v
		}
	}
	return &c
}

// MatchPointer is the per-user reference to the match they are in.
type MatchPointer struct {
	UserID         string    `json:"userId"`
	CurrentMatchID string    `json:"currentMatchId,omitempty"`
	LastMatchAt    time.Time `json:"lastMatchAt"`
}
