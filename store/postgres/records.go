package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"blindshake_server/models"
)

type seekerRecord struct {
	bun.BaseModel `bun:"table:seekers,alias:sk"`

	UserID      string    `bun:"user_id,pk"`
	Latitude    float64   `bun:"latitude,notnull"`
	Longitude   float64   `bun:"longitude,notnull"`
	Geocell     string    `bun:"geocell,notnull"`
	JoinedAt    time.Time `bun:"joined_at,notnull"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
	DisplayHint string    `bun:"display_hint"`
}

type matchRecord struct {
	bun.BaseModel `bun:"table:matches,alias:m"`

	ID                      string                                `bun:"id,pk"`
	User1ID                 string                                `bun:"user1_id,notnull"`
	User2ID                 string                                `bun:"user2_id,notnull"`
	Status                  string                                `bun:"status,notnull"`
	CreatedAt               time.Time                             `bun:"created_at,notnull"`
	UpdatedAt               time.Time                             `bun:"updated_at,notnull"`
	AnonymousPhaseEnds      time.Time                             `bun:"anonymous_phase_ends,notnull"`
	RevealRequestedBy       string                                `bun:"reveal_requested_by"`
	RevealedAt              *time.Time                            `bun:"revealed_at"`
	ArchivedAt              *time.Time                            `bun:"archived_at"`
	ArchivedReason          string                                `bun:"archived_reason"`
	ParticipantInfo         map[string]models.ParticipantInfo     `bun:"participant_info,type:jsonb"`
	LastMessage             *models.LastMessage                   `bun:"last_message,type:jsonb"`
	RevealedParticipantInfo map[string]models.RevealedParticipant `bun:"revealed_participant_info,type:jsonb"`
	Version                 int64                                 `bun:"version,notnull"`
}

type messageRecord struct {
	bun.BaseModel `bun:"table:match_messages,alias:mm"`

	ID       string    `bun:"id,pk"`
	MatchID  string    `bun:"match_id,notnull"`
	SenderID string    `bun:"sender_id,notnull"`
	Content  string    `bun:"content,notnull"`
	Type     string    `bun:"type,notnull"`
	SentAt   time.Time `bun:"sent_at,notnull"`
}

type pointerRecord struct {
	bun.BaseModel `bun:"table:match_pointers,alias:mp"`

	UserID         string    `bun:"user_id,pk"`
	CurrentMatchID string    `bun:"current_match_id,notnull"`
	LastMatchAt    time.Time `bun:"last_match_at,notnull"`
}

func toSeekerRecord(s *models.Seeker) *seekerRecord {
	return &seekerRecord{
		UserID:      s.UserID,
		Latitude:    s.Location.Latitude,
		Longitude:   s.Location.Longitude,
		Geocell:     s.Geocell,
		JoinedAt:    s.JoinedAt,
		ExpiresAt:   s.ExpiresAt,
		DisplayHint: s.DisplayHint,
	}
}

func (r *seekerRecord) toModel() models.Seeker {
	return models.Seeker{
		UserID:      r.UserID,
		Location:    models.Location{Latitude: r.Latitude, Longitude: r.Longitude},
		Geocell:     r.Geocell,
		JoinedAt:    r.JoinedAt.UTC(),
		ExpiresAt:   r.ExpiresAt.UTC(),
		DisplayHint: r.DisplayHint,
	}
}

func toMatchRecord(m *models.Match) *matchRecord {
	r := &matchRecord{
		ID:                      m.ID,
		Status:                  m.Status,
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
		AnonymousPhaseEnds:      m.AnonymousPhaseEnds,
		RevealRequestedBy:       m.RevealRequestedBy,
		RevealedAt:              m.RevealedAt,
		ArchivedAt:              m.ArchivedAt,
		ArchivedReason:          m.ArchivedReason,
		ParticipantInfo:         m.ParticipantInfo,
		LastMessage:             m.LastMessage,
		RevealedParticipantInfo: m.RevealedParticipantInfo,
		Version:                 m.Version,
	}
	if len(m.Participants) == 2 {
		r.User1ID, r.User2ID = m.Participants[0], m.Participants[1]
	}
	return r
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (r *matchRecord) toModel() *models.Match {
	return &models.Match{
		ID:                      r.ID,
		Participants:            []string{r.User1ID, r.User2ID},
		Status:                  r.Status,
		CreatedAt:               r.CreatedAt.UTC(),
		UpdatedAt:               r.UpdatedAt.UTC(),
		AnonymousPhaseEnds:      r.AnonymousPhaseEnds.UTC(),
		RevealRequestedBy:       r.RevealRequestedBy,
		RevealedAt:              utcPtr(r.RevealedAt),
		ArchivedAt:              utcPtr(r.ArchivedAt),
		ArchivedReason:          r.ArchivedReason,
		ParticipantInfo:         r.ParticipantInfo,
		LastMessage:             r.LastMessage,
		RevealedParticipantInfo: r.RevealedParticipantInfo,
		Version:                 r.Version,
	}
}

func toMessageRecord(msg *models.Message) *messageRecord {
	return &messageRecord{
		ID:       msg.ID,
		MatchID:  msg.MatchID,
		SenderID: msg.SenderID,
		Content:  msg.Content,
		Type:     msg.Type,
		SentAt:   msg.Timestamp,
	}
}

func (r *messageRecord) toModel() models.Message {
	return models.Message{
		ID:        r.ID,
		MatchID:   r.MatchID,
		SenderID:  r.SenderID,
		Content:   r.Content,
		Type:      r.Type,
		Timestamp: r.SentAt.UTC(),
	}
}
