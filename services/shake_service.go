package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"blindshake_server/apperrors"
	"blindshake_server/models"
	"blindshake_server/store"
)

// MatchSummary is what a seeker learns about a fresh match.
type MatchSummary struct {
	MatchID            string    `json:"matchId"`
	OtherUserDisplay   string    `json:"otherUserDisplay"`
	AnonymousPhaseEnds time.Time `json:"anonymousPhaseEnds"`
}

// SeekResult is the outcome of a shake.
type SeekResult struct {
	Geocell string        `json:"geocell"`
	Match   *MatchSummary `json:"match"`
}

// ShakeService is the entry point for a shake: it registers the caller in
// the pool and immediately tries to pair them.
type ShakeService struct {
	pool       *PoolService
	matchmaker *Matchmaker
	matches    store.MatchStore
	profiles   ProfileDirectory
	logger     *slog.Logger
}

func NewShakeService(pool *PoolService, matchmaker *Matchmaker, matches store.MatchStore, profiles ProfileDirectory, logger *slog.Logger) *ShakeService {
	return &ShakeService{pool: pool, matchmaker: matchmaker, matches: matches, profiles: profiles, logger: logger}
}

// StartSeeking registers userID at loc and attempts a match. A nil Match
// means the caller stays in the pool until its entry expires.
func (s *ShakeService) StartSeeking(ctx context.Context, userID string, loc models.Location) (*SeekResult, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthenticated
	}
	if !loc.Valid() {
		return nil, apperrors.ErrInvalidLocation
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return nil, apperrors.ErrProfileNotFound
		}
		s.logger.Error("failed to load profile", "userId", userID, "error", err)
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to load profile", err)
	}

	if err := s.ensureNoLiveMatch(ctx, userID); err != nil {
		return nil, err
	}

	seeker, err := s.pool.Register(ctx, userID, loc, 0, profile.DisplayName)
	if err != nil {
		return nil, err
	}

	match, err := s.matchmaker.FindAndCreateMatch(ctx, seeker)
	if err != nil {
		return nil, err
	}

	result := &SeekResult{Geocell: seeker.Geocell}
	if match != nil {
		result.Match = &MatchSummary{
			MatchID:            match.ID,
			OtherUserDisplay:   models.AnonymousDisplayName,
			AnonymousPhaseEnds: match.AnonymousPhaseEnds,
		}
	}
	return result, nil
}

func (s *ShakeService) ensureNoLiveMatch(ctx context.Context, userID string) error {
	matchID, err := s.matches.CurrentMatchID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to read match pointer", "userId", userID, "error", err)
		return apperrors.ErrStoreFailed("read current match", err)
	}
	if matchID == "" {
		return nil
	}
	m, err := s.matches.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Error("failed to load current match", "userId", userID, "matchId", matchID, "error", err)
		return apperrors.ErrStoreFailed("load current match", err)
	}
	if m.IsLive() {
		s.logger.Warn("shake rejected, user already matched", "userId", userID, "matchId", matchID)
		return apperrors.ErrAlreadyMatched
	}
	return nil
}

// StopSeeking removes the caller from the pool. Absent entries are fine.
func (s *ShakeService) StopSeeking(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.ErrUnauthenticated
	}
	return s.pool.Withdraw(ctx, userID)
}
