package mongo

import (
	"time"

	"blindshake_server/models"
)

const (
	seekersCollection  = "seekers"
	matchesCollection  = "matches"
	messagesCollection = "match_messages"
	pointersCollection = "match_pointers"
)

type seekerDoc struct {
	UserID      string    `bson:"_id"`
	Latitude    float64   `bson:"latitude"`
	Longitude   float64   `bson:"longitude"`
	Geocell     string    `bson:"geocell"`
	JoinedAt    time.Time `bson:"joinedAt"`
	ExpiresAt   time.Time `bson:"expiresAt"`
	DisplayHint string    `bson:"displayHint,omitempty"`
}

type lastMessageDoc struct {
	Content   string    `bson:"content"`
	SenderID  string    `bson:"senderId"`
	Timestamp time.Time `bson:"timestamp"`
}

type revealedDoc struct {
	DisplayName string `bson:"displayName"`
	PhotoURL    string `bson:"photoURL,omitempty"`
}

type matchDoc struct {
	ID                      string                 `bson:"_id"`
	Participants            []string               `bson:"participants"`
	Status                  string                 `bson:"status"`
	CreatedAt               time.Time              `bson:"createdAt"`
	UpdatedAt               time.Time              `bson:"updatedAt"`
	AnonymousPhaseEnds      time.Time              `bson:"anonymousPhaseEnds"`
	RevealRequestedBy       string                 `bson:"revealRequestedBy,omitempty"`
	RevealedAt              *time.Time             `bson:"revealedAt,omitempty"`
	ArchivedAt              *time.Time             `bson:"archivedAt,omitempty"`
	ArchivedReason          string                 `bson:"archivedReason,omitempty"`
	ParticipantJoinedAt     map[string]time.Time   `bson:"participantInfo,omitempty"`
	LastMessage             *lastMessageDoc        `bson:"lastMessage,omitempty"`
	RevealedParticipantInfo map[string]revealedDoc `bson:"revealedParticipantInfo,omitempty"`
	Version                 int64                  `bson:"version"`
}

type messageDoc struct {
	ID        string    `bson:"_id"`
	MatchID   string    `bson:"matchId"`
	SenderID  string    `bson:"senderId"`
	Content   string    `bson:"content"`
	Type      string    `bson:"type"`
	Timestamp time.Time `bson:"timestamp"`
}

func toSeekerDoc(s *models.Seeker) seekerDoc {
	return seekerDoc{
		UserID:      s.UserID,
		Latitude:    s.Location.Latitude,
		Longitude:   s.Location.Longitude,
		Geocell:     s.Geocell,
		JoinedAt:    s.JoinedAt,
		ExpiresAt:   s.ExpiresAt,
		DisplayHint: s.DisplayHint,
	}
}

func (d seekerDoc) toModel() models.Seeker {
	return models.Seeker{
		UserID:      d.UserID,
		Location:    models.Location{Latitude: d.Latitude, Longitude: d.Longitude},
		Geocell:     d.Geocell,
		JoinedAt:    d.JoinedAt.UTC(),
		ExpiresAt:   d.ExpiresAt.UTC(),
		DisplayHint: d.DisplayHint,
	}
}

func toMatchDoc(m *models.Match) matchDoc {
	d := matchDoc{
		ID:                 m.ID,
		Participants:       m.Participants,
		Status:             m.Status,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
		AnonymousPhaseEnds: m.AnonymousPhaseEnds,
		RevealRequestedBy:  m.RevealRequestedBy,
		RevealedAt:         m.RevealedAt,
		ArchivedAt:         m.ArchivedAt,
		ArchivedReason:     m.ArchivedReason,
		Version:            m.Version,
	}
	if len(m.ParticipantInfo) > 0 {
		d.ParticipantJoinedAt = make(map[string]time.Time, len(m.ParticipantInfo))
		for id, info := range m.ParticipantInfo {
			d.ParticipantJoinedAt[id] = info.JoinedAt
		}
	}
	if m.LastMessage != nil {
		d.LastMessage = &lastMessageDoc{
			Content:   m.LastMessage.Content,
			SenderID:  m.LastMessage.SenderID,
			Timestamp: m.LastMessage.Timestamp,
		}
	}
	if len(m.RevealedParticipantInfo) > 0 {
		d.RevealedParticipantInfo = make(map[string]revealedDoc, len(m.RevealedParticipantInfo))
		for id, r := range m.RevealedParticipantInfo {
			d.RevealedParticipantInfo[id] = revealedDoc{DisplayName: r.DisplayName, PhotoURL: r.PhotoURL}
		}
	}
	return d
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (d matchDoc) toModel() *models.Match {
	m := &models.Match{
		ID:                 d.ID,
		Participants:       append([]string(nil), d.Participants...),
		Status:             d.Status,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
		AnonymousPhaseEnds: d.AnonymousPhaseEnds.UTC(),
		RevealRequestedBy:  d.RevealRequestedBy,
		RevealedAt:         utcPtr(d.RevealedAt),
		ArchivedAt:         utcPtr(d.ArchivedAt),
		ArchivedReason:     d.ArchivedReason,
		Version:            d.Version,
	}
	if len(d.ParticipantJoinedAt) > 0 {
		m.ParticipantInfo = make(map[string]models.ParticipantInfo, len(d.ParticipantJoinedAt))
		for id, t := range d.ParticipantJoinedAt {
			m.ParticipantInfo[id] = models.ParticipantInfo{JoinedAt: t.UTC()}
		}
	}
	if d.LastMessage != nil {
		m.LastMessage = &models.LastMessage{
			Content:   d.LastMessage.Content,
			SenderID:  d.LastMessage.SenderID,
			Timestamp: d.LastMessage.Timestamp.UTC(),
		}
	}
	if len(d.RevealedParticipantInfo) > 0 {
		m.RevealedParticipantInfo = make(map[string]models.RevealedParticipant, len(d.RevealedParticipantInfo))
		for id, r := range d.RevealedParticipantInfo {
			m.RevealedParticipantInfo[id] = models.RevealedParticipant{DisplayName: r.DisplayName, PhotoURL: r.PhotoURL}
		}
	}
	return m
}

func toMessageDoc(msg *models.Message) messageDoc {
	return messageDoc{
		ID:        msg.ID,
		MatchID:   msg.MatchID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		Type:      msg.Type,
		Timestamp: msg.Timestamp,
	}
}

func (d messageDoc) toModel() models.Message {
	return models.Message{
		ID:        d.ID,
		MatchID:   d.MatchID,
		SenderID:  d.SenderID,
		Content:   d.Content,
		Type:      d.Type,
		Timestamp: d.Timestamp.UTC(),
	}
}
