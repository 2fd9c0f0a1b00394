package services

import (
	"context"
	"log/slog"
	"time"

	"blindshake_server/apperrors"
	"blindshake_server/models"
	"blindshake_server/store"
)

// SweepResult summarises one housekeeping pass. In a dry run Processed
// counts what a real pass would act on.
type SweepResult struct {
	Kind            string `json:"kind"`
	DryRun          bool   `json:"dryRun"`
	Scanned         int    `json:"scanned"`
	Processed       int    `json:"processed"`
	Failed          int    `json:"failed"`
	MessagesDeleted int    `json:"messagesDeleted,omitempty"`
}

// Sweeper runs the periodic housekeeping passes. Every pass is idempotent
// and a failure on one item never aborts the rest.
type Sweeper struct {
	pool      *PoolService
	lifecycle *LifecycleService
	matches   store.MatchStore
	profiles  ProfileDirectory
	clock     Clock
	logger    *slog.Logger
	opts      LifecycleOptions
}

func NewSweeper(
	pool *PoolService,
	lifecycle *LifecycleService,
	matches store.MatchStore,
	profiles ProfileDirectory,
	clock Clock,
	logger *slog.Logger,
	opts LifecycleOptions,
) *Sweeper {
	return &Sweeper{
		pool:      pool,
		lifecycle: lifecycle,
		matches:   matches,
		profiles:  profiles,
		clock:     clock,
		logger:    logger,
		opts:      opts,
	}
}

// RunSweep runs the pass named by kind.
func (s *Sweeper) RunSweep(ctx context.Context, kind string, dryRun bool) (*SweepResult, error) {
	if !models.IsValidSweepKind(kind) {
		return nil, apperrors.ErrInvalidSweepKind
	}

	now := s.clock.Now()
	result := &SweepResult{Kind: kind, DryRun: dryRun}
	var err error
	switch kind {
	case models.SweepPool:
		err = s.sweepPool(ctx, now, result)
	case models.SweepArchive:
		err = s.sweepArchive(ctx, now, result)
	case models.SweepRetention:
		err = s.sweepRetention(ctx, now, result)
	case models.SweepStats:
		err = s.sweepStats(ctx, now, result)
	}
	if err != nil {
		s.logger.Error("sweep failed", "kind", kind, "dryRun", dryRun, "error", err)
		return result, err
	}

	s.logger.Info("sweep finished",
		"kind", kind,
		"dryRun", dryRun,
		"scanned", result.Scanned,
		"processed", result.Processed,
		"failed", result.Failed,
		"messagesDeleted", result.MessagesDeleted,
	)
	return result, nil
}

func (s *Sweeper) sweepPool(ctx context.Context, now time.Time, result *SweepResult) error {
	if result.DryRun {
		n, err := s.pool.CountExpired(ctx, now)
		result.Scanned, result.Processed = n, n
		return err
	}
	n, err := s.pool.SweepExpired(ctx, now)
	result.Scanned, result.Processed = n, n
	return err
}

// sweepArchive archives anonymous matches whose anonymous phase ended
// more than the grace window ago.
func (s *Sweeper) sweepArchive(ctx context.Context, now time.Time, result *SweepResult) error {
	cutoff := now.Add(-s.opts.GraceWindow)
	batch := batchSize(s.opts.ArchiveBatchSize, 500)

	if result.DryRun {
		due, err := s.matches.AnonymousMatchesEndingBefore(ctx, cutoff, 0)
		if err != nil {
			return apperrors.ErrStoreFailed("list expired matches", err)
		}
		result.Scanned, result.Processed = len(due), len(due)
		return nil
	}

	for {
		due, err := s.matches.AnonymousMatchesEndingBefore(ctx, cutoff, batch)
		if err != nil {
			return apperrors.ErrStoreFailed("list expired matches", err)
		}
		result.Scanned += len(due)

		progress := 0
		for _, m := range due {
			archived, err := s.lifecycle.AutoExpire(ctx, m.ID, now)
			if err != nil {
				result.Failed++
				s.logger.Error("failed to auto-archive match", "matchId", m.ID, "error", err)
				continue
			}
			if archived {
				progress++
			}
		}
		result.Processed += progress

		if len(due) < batch || progress == 0 {
			return nil
		}
	}
}

// sweepRetention deletes archived matches, with their messages, once they
// have been archived longer than the retention window. One run deletes at
// most PurgeBatchSize matches; the backlog drains over later runs.
func (s *Sweeper) sweepRetention(ctx context.Context, now time.Time, result *SweepResult) error {
	cutoff := now.Add(-s.opts.RetentionWindow)
	batch := batchSize(s.opts.PurgeBatchSize, 100)

	old, err := s.matches.ArchivedMatchesBefore(ctx, cutoff, batch)
	if err != nil {
		return apperrors.ErrStoreFailed("list archived matches", err)
	}
	result.Scanned = len(old)
	if result.DryRun {
		result.Processed = len(old)
		return nil
	}

	for _, m := range old {
		deleted, err := s.matches.DeleteMatch(ctx, m.ID)
		if err != nil {
			result.Failed++
			s.logger.Error("failed to delete archived match", "matchId", m.ID, "error", err)
			continue
		}
		result.Processed++
		result.MessagesDeleted += deleted
	}
	return nil
}

// sweepStats recomputes match counts for every user in the profile
// directory.
func (s *Sweeper) sweepStats(ctx context.Context, now time.Time, result *SweepResult) error {
	if s.profiles == nil {
		return nil
	}
	userIDs, err := s.profiles.ListUserIDs(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to list users", err)
	}
	result.Scanned = len(userIDs)

	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		matches, err := s.matches.MatchesForUser(ctx, userID)
		if err != nil {
			result.Failed++
			s.logger.Error("failed to load matches for stats", "userId", userID, "error", err)
			continue
		}
		stats := ComputeStats(matches, now)
		if result.DryRun {
			result.Processed++
			continue
		}
		if err := s.profiles.UpdateStats(ctx, userID, stats); err != nil {
			result.Failed++
			s.logger.Error("failed to write user stats", "userId", userID, "error", err)
			continue
		}
		result.Processed++
	}
	return nil
}

// ComputeStats counts a user's matches by outcome.
func ComputeStats(matches []models.Match, now time.Time) models.UserStats {
	stats := models.UserStats{TotalMatches: len(matches), UpdatedAt: now}
	for _, m := range matches {
		if m.RevealedAt != nil {
			stats.RevealedMatches++
		}
		if m.Status == models.StatusArchived {
			stats.ArchivedMatches++
		}
	}
	return stats
}

func batchSize(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
