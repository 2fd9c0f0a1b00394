package dynamo

import (
	"fmt"
	"time"

	"blindshake_server/models"
)

// Table names, prefixed per deployment.
type Tables struct {
	Seekers  string
	Matches  string
	Messages string
	Pointers string
}

func NewTables(prefix string) Tables {
	return Tables{
		Seekers:  prefix + "ActiveSeekers",
		Matches:  prefix + "Matches",
		Messages: prefix + "MatchMessages",
		Pointers: prefix + "UserMatches",
	}
}

// Secondary indexes the adapter queries.
const (
	CellIndex       = "cellBucket-geocell-index"
	PhaseEndsIndex  = "status-anonymousPhaseEnds-index"
	ArchivedAtIndex = "status-archivedAt-index"
	User1Index      = "user1Id-index"
	User2Index      = "user2Id-index"
)

// Seekers are partitioned on a short geocell prefix so the cell index can
// serve begins_with queries on the full geocell.
const cellBucketPrecision = 2

type seekerItem struct {
	UserID      string  `dynamodbav:"userId"`
	Latitude    float64 `dynamodbav:"latitude"`
	Longitude   float64 `dynamodbav:"longitude"`
	Geocell     string  `dynamodbav:"geocell"`
	CellBucket  string  `dynamodbav:"cellBucket"`
	JoinedAt    int64   `dynamodbav:"joinedAt"`
	ExpiresAt   int64   `dynamodbav:"expiresAt"`
	TTL         int64   `dynamodbav:"ttl"`
	DisplayHint string  `dynamodbav:"displayHint,omitempty"`
}

type lastMessageItem struct {
	Content   string `dynamodbav:"content"`
	SenderID  string `dynamodbav:"senderId"`
	Timestamp int64  `dynamodbav:"timestamp"`
}

type revealedItem struct {
	DisplayName string `dynamodbav:"displayName"`
	PhotoURL    string `dynamodbav:"photoURL,omitempty"`
}

type matchItem struct {
	MatchID                 string                  `dynamodbav:"matchId"`
	User1ID                 string                  `dynamodbav:"user1Id"`
	User2ID                 string                  `dynamodbav:"user2Id"`
	Status                  string                  `dynamodbav:"status"`
	CreatedAt               int64                   `dynamodbav:"createdAt"`
	UpdatedAt               int64                   `dynamodbav:"updatedAt"`
	AnonymousPhaseEnds      int64                   `dynamodbav:"anonymousPhaseEnds"`
	RevealRequestedBy       string                  `dynamodbav:"revealRequestedBy,omitempty"`
	RevealedAt              *int64                  `dynamodbav:"revealedAt,omitempty"`
	ArchivedAt              *int64                  `dynamodbav:"archivedAt,omitempty"`
	ArchivedReason          string                  `dynamodbav:"archivedReason,omitempty"`
	ParticipantJoinedAt     map[string]int64        `dynamodbav:"participantInfo,omitempty"`
	LastMessage             *lastMessageItem        `dynamodbav:"lastMessage,omitempty"`
	RevealedParticipantInfo map[string]revealedItem `dynamodbav:"revealedParticipantInfo,omitempty"`
	Version                 int64                   `dynamodbav:"version"`
}

type messageItem struct {
	MatchID   string `dynamodbav:"matchId"`
	SortKey   string `dynamodbav:"sortKey"`
	MessageID string `dynamodbav:"messageId"`
	SenderID  string `dynamodbav:"senderId"`
	Content   string `dynamodbav:"content"`
	Type      string `dynamodbav:"type"`
	Timestamp int64  `dynamodbav:"timestamp"`
}

type pointerItem struct {
	UserID         string `dynamodbav:"userId"`
	CurrentMatchID string `dynamodbav:"currentMatchId,omitempty"`
	LastMatchAt    int64  `dynamodbav:"lastMatchAt"`
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func optionalMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func optionalTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}

func toSeekerItem(s *models.Seeker) seekerItem {
	bucket := s.Geocell
	if len(bucket) > cellBucketPrecision {
		bucket = bucket[:cellBucketPrecision]
	}
	return seekerItem{
		UserID:      s.UserID,
		Latitude:    s.Location.Latitude,
		Longitude:   s.Location.Longitude,
		Geocell:     s.Geocell,
		CellBucket:  bucket,
		JoinedAt:    millis(s.JoinedAt),
		ExpiresAt:   millis(s.ExpiresAt),
		TTL:         s.ExpiresAt.Unix(),
		DisplayHint: s.DisplayHint,
	}
}

func (it seekerItem) toModel() models.Seeker {
	return models.Seeker{
		UserID:      it.UserID,
		Location:    models.Location{Latitude: it.Latitude, Longitude: it.Longitude},
		Geocell:     it.Geocell,
		JoinedAt:    fromMillis(it.JoinedAt),
		ExpiresAt:   fromMillis(it.ExpiresAt),
		DisplayHint: it.DisplayHint,
	}
}

func toMatchItem(m *models.Match) matchItem {
	it := matchItem{
		MatchID:            m.ID,
		Status:             m.Status,
		CreatedAt:          millis(m.CreatedAt),
		UpdatedAt:          millis(m.UpdatedAt),
		AnonymousPhaseEnds: millis(m.AnonymousPhaseEnds),
		RevealRequestedBy:  m.RevealRequestedBy,
		RevealedAt:         optionalMillis(m.RevealedAt),
		ArchivedAt:         optionalMillis(m.ArchivedAt),
		ArchivedReason:     m.ArchivedReason,
		Version:            m.Version,
	}
	if len(m.Participants) == 2 {
		it.User1ID, it.User2ID = m.Participants[0], m.Participants[1]
	}
	if len(m.ParticipantInfo) > 0 {
		it.ParticipantJoinedAt = make(map[string]int64, len(m.ParticipantInfo))
		for id, info := range m.ParticipantInfo {
			it.ParticipantJoinedAt[id] = millis(info.JoinedAt)
		}
	}
	if m.LastMessage != nil {
		it.LastMessage = &lastMessageItem{
			Content:   m.LastMessage.Content,
			SenderID:  m.LastMessage.SenderID,
			Timestamp: millis(m.LastMessage.Timestamp),
		}
	}
	if len(m.RevealedParticipantInfo) > 0 {
		it.RevealedParticipantInfo = make(map[string]revealedItem, len(m.RevealedParticipantInfo))
		for id, r := range m.RevealedParticipantInfo {
			it.RevealedParticipantInfo[id] = revealedItem{DisplayName: r.DisplayName, PhotoURL: r.PhotoURL}
		}
	}
	return it
}

func (it matchItem) toModel() *models.Match {
	m := &models.Match{
		ID:                 it.MatchID,
		Participants:       []string{it.User1ID, it.User2ID},
		Status:             it.Status,
		CreatedAt:          fromMillis(it.CreatedAt),
		UpdatedAt:          fromMillis(it.UpdatedAt),
		AnonymousPhaseEnds: fromMillis(it.AnonymousPhaseEnds),
		RevealRequestedBy:  it.RevealRequestedBy,
		RevealedAt:         optionalTime(it.RevealedAt),
		ArchivedAt:         optionalTime(it.ArchivedAt),
		ArchivedReason:     it.ArchivedReason,
		Version:            it.Version,
	}
	if len(it.ParticipantJoinedAt) > 0 {
		m.ParticipantInfo = make(map[string]models.ParticipantInfo, len(it.ParticipantJoinedAt))
		for id, ms := range it.ParticipantJoinedAt {
			m.ParticipantInfo[id] = models.ParticipantInfo{JoinedAt: fromMillis(ms)}
		}
	}
	if it.LastMessage != nil {
		m.LastMessage = &models.LastMessage{
			Content:   it.LastMessage.Content,
			SenderID:  it.LastMessage.SenderID,
			Timestamp: fromMillis(it.LastMessage.Timestamp),
		}
	}
	if len(it.RevealedParticipantInfo) > 0 {
		m.RevealedParticipantInfo = make(map[string]models.RevealedParticipant, len(it.RevealedParticipantInfo))
		for id, r := range it.RevealedParticipantInfo {
			m.RevealedParticipantInfo[id] = models.RevealedParticipant{DisplayName: r.DisplayName, PhotoURL: r.PhotoURL}
		}
	}
	return m
}

// messageSortKey orders messages by time, then id, within a match
// partition.
func messageSortKey(msg *models.Message) string {
	return fmt.Sprintf("%013d#%s", millis(msg.Timestamp), msg.ID)
}

func toMessageItem(msg *models.Message) messageItem {
	return messageItem{
		MatchID:   msg.MatchID,
		SortKey:   messageSortKey(msg),
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		Type:      msg.Type,
		Timestamp: millis(msg.Timestamp),
	}
}

func (it messageItem) toModel() models.Message {
	return models.Message{
		ID:        it.MessageID,
		MatchID:   it.MatchID,
		SenderID:  it.SenderID,
		Content:   it.Content,
		Type:      it.Type,
		Timestamp: fromMillis(it.Timestamp),
	}
}
