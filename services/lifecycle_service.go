package services

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"blindshake_server/apperrors"
	"blindshake_server/models"
	"blindshake_server/store"
)

// System message texts.
const (
	revealWaitingText   = "One user wants to reveal identities. Waiting for the other to decide..."
	revealBothText      = "Both users chose to reveal their identities!"
	revealDeclinedText  = "One user declined to reveal identities. The chat has ended."
	autoExpiredText     = "This chat has been automatically archived after 24 hours of inactivity."
	participantLeftText = "The other participant left the chat. The chat has ended."
)

// LifecycleService owns every match state transition. Each transition is
// one store.UpdateMatch call, so transitions on a match never interleave.
type LifecycleService struct {
	matches  store.MatchStore
	profiles ProfileDirectory
	photos   PhotoSigner
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
	opts     LifecycleOptions
}

func NewLifecycleService(
	matches store.MatchStore,
	profiles ProfileDirectory,
	photos PhotoSigner,
	notifier Notifier,
	clock Clock,
	logger *slog.Logger,
	opts LifecycleOptions,
) *LifecycleService {
	if photos == nil {
		photos = PassthroughSigner()
	}
	if notifier == nil {
		notifier = NopNotifier()
	}
	return &LifecycleService{
		matches:  matches,
		profiles: profiles,
		photos:   photos,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		opts:     opts,
	}
}

// RevealResult is the outcome of a reveal request.
type RevealResult struct {
	Revealed        bool `json:"revealed"`
	WaitingForOther bool `json:"waitingForOther,omitempty"`
}

func systemMessage(matchID, content string, now time.Time) *models.Message {
	return &models.Message{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		SenderID:  models.SystemSenderID,
		Content:   content,
		Type:      models.MessageTypeSystem,
		Timestamp: now,
	}
}

// appendMessage records msg as the match's latest activity.
func appendMessage(m *models.Match, msg *models.Message) {
	m.LastMessage = msg.Summary()
	m.UpdatedAt = msg.Timestamp
}

// archive moves m to its terminal state.
func archive(m *models.Match, reason string, now time.Time) {
	m.Status = models.StatusArchived
	m.ArchivedAt = &now
	m.ArchivedReason = reason
	m.RevealRequestedBy = ""
}

func checkParticipant(m *models.Match, userID string) error {
	if !m.HasParticipant(userID) {
		return apperrors.ErrNotParticipant
	}
	return nil
}

// update runs mutate and maps store failures to caller-facing errors.
// Errors produced by mutate pass through unchanged.
func (l *LifecycleService) update(ctx context.Context, op, matchID string, mutate store.MatchMutator) (*models.Match, error) {
	m, err := l.matches.UpdateMatch(ctx, matchID, mutate)
	if err == nil {
		return m, nil
	}
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return nil, err
	case errors.Is(err, store.ErrNotFound):
		return nil, apperrors.ErrMatchNotFound
	default:
		l.logger.Error("match transaction failed", "op", op, "matchId", matchID, "error", err)
		return nil, apperrors.ErrStoreFailed(op, err)
	}
}

func (l *LifecycleService) notifyMessage(ctx context.Context, msg *models.Message) {
	if msg == nil {
		return
	}
	if err := l.notifier.MessageAppended(ctx, msg); err != nil {
		l.logger.Warn("failed to deliver message", "matchId", msg.MatchID, "messageId", msg.ID, "error", err)
	}
}

func (l *LifecycleService) notifyMatch(ctx context.Context, m *models.Match) {
	if err := l.notifier.MatchUpdated(ctx, m); err != nil {
		l.logger.Warn("failed to deliver match update", "matchId", m.ID, "error", err)
	}
}

// SendMessage appends a participant's message to a live match.
func (l *LifecycleService) SendMessage(ctx context.Context, userID, matchID, content, msgType string) (*models.Message, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthenticated
	}
	if matchID == "" {
		return nil, apperrors.ErrMissingMatchID
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > l.opts.MaxContentLength {
		return nil, apperrors.ErrContentTooLong
	}
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !models.IsValidMessageType(msgType) {
		return nil, apperrors.ErrInvalidMessageType
	}

	var msg *models.Message
	_, err := l.update(ctx, "send message", matchID, func(m *models.Match) (*store.MatchUpdate, error) {
		if err := checkParticipant(m, userID); err != nil {
			return nil, err
		}
		if m.Status == models.StatusArchived {
			return nil, apperrors.ErrMatchArchived
		}
		msg = &models.Message{
			ID:        uuid.NewString(),
			MatchID:   matchID,
			SenderID:  userID,
			Content:   content,
			Type:      msgType,
			Timestamp: l.clock.Now(),
		}
		appendMessage(m, msg)
		return &store.MatchUpdate{Message: msg}, nil
	})
	if err != nil {
		l.logger.Warn("send message rejected", "matchId", matchID, "userId", userID, "code", apperrors.CodeOf(err))
		return nil, err
	}

	l.logger.Info("message sent", "matchId", matchID, "userId", userID, "messageId", msg.ID, "type", msgType)
	l.notifyMessage(ctx, msg)
	return msg, nil
}

// RequestReveal records the caller's consent. The second participant to
// consent reveals the match.
func (l *LifecycleService) RequestReveal(ctx context.Context, userID, matchID string) (*RevealResult, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthenticated
	}
	if matchID == "" {
		return nil, apperrors.ErrMissingMatchID
	}

	var (
		result RevealResult
		msg    *models.Message
	)
	m, err := l.update(ctx, "process reveal request", matchID, func(m *models.Match) (*store.MatchUpdate, error) {
		if err := checkParticipant(m, userID); err != nil {
			return nil, err
		}
		switch m.Status {
		case models.StatusArchived:
			return nil, apperrors.ErrMatchArchived
		case models.StatusRevealed:
			return nil, apperrors.ErrNotAnonymous
		}
		now := l.clock.Now()
		if now.Before(m.AnonymousPhaseEnds) {
			return nil, apperrors.ErrPhaseActive
		}

		switch m.RevealRequestedBy {
		case userID:
			return nil, apperrors.ErrAlreadyRequested
		case "":
			m.RevealRequestedBy = userID
			msg = systemMessage(m.ID, revealWaitingText, now)
			result = RevealResult{Revealed: false, WaitingForOther: true}
		default:
			m.Status = models.StatusRevealed
			m.RevealRequestedBy = ""
			m.RevealedAt = &now
			msg = systemMessage(m.ID, revealBothText, now)
			result = RevealResult{Revealed: true}
		}
		appendMessage(m, msg)
		return &store.MatchUpdate{Message: msg}, nil
	})
	if err != nil {
		l.logger.Warn("reveal request rejected", "matchId", matchID, "userId", userID, "code", apperrors.CodeOf(err))
		return nil, err
	}

	l.logger.Info("reveal requested", "matchId", matchID, "userId", userID, "revealed", result.Revealed)
	l.notifyMessage(ctx, msg)
	if result.Revealed {
		if enriched := l.enrichRevealed(ctx, m); enriched != nil {
			m = enriched
		}
		l.notifyMatch(ctx, m)
	}
	return &result, nil
}

// enrichRevealed stores both participants' public identity on a revealed
// match. It runs after the reveal committed and never undoes it.
func (l *LifecycleService) enrichRevealed(ctx context.Context, m *models.Match) *models.Match {
	if l.profiles == nil {
		return nil
	}
	info := make(map[string]models.RevealedParticipant, len(m.Participants))
	for _, userID := range m.Participants {
		profile, err := l.profiles.GetProfile(ctx, userID)
		if err != nil {
			l.logger.Warn("failed to load profile for reveal", "matchId", m.ID, "userId", userID, "error", err)
			return nil
		}
		photoURL := profile.PhotoURL
		if photoURL != "" {
			signed, err := l.photos.SignPhotoURL(ctx, photoURL)
			if err != nil {
				l.logger.Warn("failed to sign photo url", "matchId", m.ID, "userId", userID, "error", err)
				signed = ""
			}
			photoURL = signed
		}
		info[userID] = models.RevealedParticipant{DisplayName: profile.DisplayName, PhotoURL: photoURL}
	}

	enriched, err := l.matches.UpdateMatch(ctx, m.ID, func(m *models.Match) (*store.MatchUpdate, error) {
		if m.Status != models.StatusRevealed {
			return nil, nil
		}
		m.RevealedParticipantInfo = info
		return &store.MatchUpdate{}, nil
	})
	if err != nil {
		l.logger.Warn("failed to store revealed identities", "matchId", m.ID, "error", err)
		return nil
	}
	return enriched
}

// DeclineReveal archives the match when the other participant has a
// pending reveal request.
func (l *LifecycleService) DeclineReveal(ctx context.Context, userID, matchID string) error {
	if userID == "" {
		return apperrors.ErrUnauthenticated
	}
	if matchID == "" {
		return apperrors.ErrMissingMatchID
	}

	var msg *models.Message
	m, err := l.update(ctx, "decline reveal", matchID, func(m *models.Match) (*store.MatchUpdate, error) {
		if err := checkParticipant(m, userID); err != nil {
			return nil, err
		}
		switch m.Status {
		case models.StatusArchived:
			return nil, apperrors.ErrMatchArchived
		case models.StatusRevealed:
			return nil, apperrors.ErrNotAnonymous
		}
		if m.RevealRequestedBy == "" || m.RevealRequestedBy == userID {
			return nil, apperrors.ErrNoPendingReveal
		}
		now := l.clock.Now()
		archive(m, models.ArchivedReasonRevealDeclined, now)
		msg = systemMessage(m.ID, revealDeclinedText, now)
		appendMessage(m, msg)
		return &store.MatchUpdate{Message: msg, ClearPointers: true}, nil
	})
	if err != nil {
		l.logger.Warn("decline rejected", "matchId", matchID, "userId", userID, "code", apperrors.CodeOf(err))
		return err
	}

	l.logger.Info("reveal declined, match archived", "matchId", matchID, "userId", userID)
	l.notifyMessage(ctx, msg)
	l.notifyMatch(ctx, m)
	return nil
}

// LeaveMatch lets a participant end a live match in either phase.
func (l *LifecycleService) LeaveMatch(ctx context.Context, userID, matchID string) error {
	if userID == "" {
		return apperrors.ErrUnauthenticated
	}
	if matchID == "" {
		return apperrors.ErrMissingMatchID
	}

	var msg *models.Message
	m, err := l.update(ctx, "leave match", matchID, func(m *models.Match) (*store.MatchUpdate, error) {
		if err := checkParticipant(m, userID); err != nil {
			return nil, err
		}
		if m.Status == models.StatusArchived {
			return nil, apperrors.ErrMatchArchived
		}
		now := l.clock.Now()
		archive(m, models.ArchivedReasonParticipantLeft, now)
		msg = systemMessage(m.ID, participantLeftText, now)
		appendMessage(m, msg)
		return &store.MatchUpdate{Message: msg, ClearPointers: true}, nil
	})
	if err != nil {
		l.logger.Warn("leave rejected", "matchId", matchID, "userId", userID, "code", apperrors.CodeOf(err))
		return err
	}

	l.logger.Info("participant left match", "matchId", matchID, "userId", userID)
	l.notifyMessage(ctx, msg)
	l.notifyMatch(ctx, m)
	return nil
}

// AutoExpire archives an anonymous match whose anonymous phase ended more
// than the grace window before now. It reports whether this call archived
// the match; a match that no longer qualifies is left alone.
func (l *LifecycleService) AutoExpire(ctx context.Context, matchID string, now time.Time) (bool, error) {
	var msg *models.Message
	m, err := l.update(ctx, "auto-archive match", matchID, func(m *models.Match) (*store.MatchUpdate, error) {
		msg = nil
		if m.Status != models.StatusAnonymous || !l.pastGrace(m, now) {
			return nil, nil
		}
		archive(m, models.ArchivedReasonAutoExpired, now)
		msg = systemMessage(m.ID, autoExpiredText, now)
		appendMessage(m, msg)
		return &store.MatchUpdate{Message: msg, ClearPointers: true}, nil
	})
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	l.logger.Info("match auto-archived", "matchId", matchID)
	l.notifyMessage(ctx, msg)
	l.notifyMatch(ctx, m)
	return true, nil
}

func (l *LifecycleService) pastGrace(m *models.Match, now time.Time) bool {
	return now.Sub(m.AnonymousPhaseEnds) > l.opts.GraceWindow
}

// ParticipantView is how one participant sees the other.
type ParticipantView struct {
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// MatchView is a match as shown to one of its participants.
type MatchView struct {
	ID                    string              `json:"matchId"`
	Status                string              `json:"status"`
	CreatedAt             time.Time           `json:"createdAt"`
	AnonymousPhaseEnds    time.Time           `json:"anonymousPhaseEnds"`
	RevealRequestedByMe   bool                `json:"revealRequestedByMe"`
	RevealRequestedByThem bool                `json:"revealRequestedByThem"`
	RevealedAt            *time.Time          `json:"revealedAt,omitempty"`
	ArchivedAt            *time.Time          `json:"archivedAt,omitempty"`
	ArchivedReason        string              `json:"archivedReason,omitempty"`
	LastMessage           *models.LastMessage `json:"lastMessage,omitempty"`
	OtherUser             ParticipantView     `json:"otherUser"`
}

func newMatchView(m *models.Match, viewer string) *MatchView {
	other := m.OtherParticipant(viewer)
	v := &MatchView{
		ID:                    m.ID,
		Status:                m.Status,
		CreatedAt:             m.CreatedAt,
		AnonymousPhaseEnds:    m.AnonymousPhaseEnds,
		RevealRequestedByMe:   m.RevealRequestedBy == viewer,
		RevealRequestedByThem: m.RevealRequestedBy == other,
		RevealedAt:            m.RevealedAt,
		ArchivedAt:            m.ArchivedAt,
		ArchivedReason:        m.ArchivedReason,
		LastMessage:           m.LastMessage,
		OtherUser:             ParticipantView{DisplayName: models.AnonymousDisplayName},
	}
	if m.RevealedAt != nil {
		v.OtherUser.UserID = other
		if info, ok := m.RevealedParticipantInfo[other]; ok {
			v.OtherUser.DisplayName = info.DisplayName
			v.OtherUser.PhotoURL = info.PhotoURL
		}
	}
	return v
}

// GetMatch returns the match as the caller sees it. The other participant
// stays anonymous until both consented to reveal.
func (l *LifecycleService) GetMatch(ctx context.Context, userID, matchID string) (*MatchView, error) {
	m, err := l.readMatch(ctx, userID, matchID)
	if err != nil {
		return nil, err
	}
	return newMatchView(m, userID), nil
}

// ListMessages returns the latest messages of a match, oldest first.
func (l *LifecycleService) ListMessages(ctx context.Context, userID, matchID string, limit int) ([]models.Message, error) {
	if _, err := l.readMatch(ctx, userID, matchID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = l.opts.DefaultPageSize
	}
	if limit > l.opts.MaxPageSize {
		limit = l.opts.MaxPageSize
	}
	msgs, err := l.matches.ListMessages(ctx, matchID, limit)
	if err != nil {
		l.logger.Error("failed to list messages", "matchId", matchID, "error", err)
		return nil, apperrors.ErrStoreFailed("list messages", err)
	}
	return msgs, nil
}

func (l *LifecycleService) readMatch(ctx context.Context, userID, matchID string) (*models.Match, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthenticated
	}
	if matchID == "" {
		return nil, apperrors.ErrMissingMatchID
	}
	m, err := l.matches.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrMatchNotFound
	}
	if err != nil {
		l.logger.Error("failed to load match", "matchId", matchID, "error", err)
		return nil, apperrors.ErrStoreFailed("load match", err)
	}
	if err := checkParticipant(m, userID); err != nil {
		return nil, err
	}
	return m, nil
}
