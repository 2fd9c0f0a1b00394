package services

import (
	"context"
	"log/slog"
	"time"

	"blindshake_server/apperrors"
	"blindshake_server/geo"
	"blindshake_server/models"
	"blindshake_server/store"
)

// PoolService owns the active pool. Nothing else writes seeker entries.
type PoolService struct {
	store  store.PoolStore
	index  geo.Index
	clock  Clock
	logger *slog.Logger
	opts   MatchingOptions
}

func NewPoolService(s store.PoolStore, index geo.Index, clock Clock, logger *slog.Logger, opts MatchingOptions) *PoolService {
	return &PoolService{store: s, index: index, clock: clock, logger: logger, opts: opts}
}

// Register writes or refreshes the caller's pool entry. A non-positive ttl
// falls back to the configured pool TTL. The stored location is rounded;
// the geocell is derived from the precise point.
func (p *PoolService) Register(ctx context.Context, userID string, loc models.Location, ttl time.Duration, hint string) (*models.Seeker, error) {
	if userID == "" {
		return nil, apperrors.ErrMissingUserID
	}
	if !loc.Valid() {
		return nil, apperrors.ErrInvalidLocation
	}
	if ttl <= 0 {
		ttl = p.opts.PoolTTL
	}

	now := p.clock.Now()
	seeker := &models.Seeker{
		UserID:      userID,
		Location:    geo.Round(loc, p.opts.LocationDecimals),
		Geocell:     p.index.Key(loc),
		JoinedAt:    now,
		ExpiresAt:   now.Add(ttl),
		DisplayHint: hint,
	}
	if err := p.store.PutSeeker(ctx, seeker); err != nil {
		p.logger.Error("failed to register seeker", "userId", userID, "error", err)
		return nil, apperrors.ErrStoreFailed("join the matching pool", err)
	}
	p.logger.Info("seeker registered", "userId", userID, "geocell", seeker.Geocell)
	return seeker, nil
}

// Withdraw removes the caller's pool entry. A missing entry is not an error.
func (p *PoolService) Withdraw(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.ErrMissingUserID
	}
	if err := p.store.DeleteSeeker(ctx, userID); err != nil {
		p.logger.Error("failed to withdraw seeker", "userId", userID, "error", err)
		return apperrors.ErrStoreFailed("leave the matching pool", err)
	}
	p.logger.Info("seeker withdrawn", "userId", userID)
	return nil
}

// CountExpired reports how many entries a sweep at now would consider.
func (p *PoolService) CountExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := p.store.ExpiredSeekers(ctx, now, 0)
	if err != nil {
		return 0, apperrors.ErrStoreFailed("list expired seekers", err)
	}
	return len(expired), nil
}

// SweepExpired removes every entry whose expiry is at or before now. Each
// delete re-checks the stored expiry, so an entry refreshed after the
// listing survives. Per-entry failures are logged and skipped.
func (p *PoolService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	batch := p.opts.SweepBatchSize
	if batch <= 0 {
		batch = 500
	}

	removed := 0
	for {
		expired, err := p.store.ExpiredSeekers(ctx, now, batch)
		if err != nil {
			return removed, apperrors.ErrStoreFailed("list expired seekers", err)
		}

		progress := 0
		for _, s := range expired {
			deleted, err := p.store.DeleteSeekerIfExpired(ctx, s.UserID, now)
			if err != nil {
				p.logger.Error("failed to remove expired seeker", "userId", s.UserID, "error", err)
				continue
			}
			if deleted {
				progress++
			}
		}
		removed += progress

		if len(expired) < batch || progress == 0 {
			return removed, nil
		}
	}
}
