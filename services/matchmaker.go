package services

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"blindshake_server/apperrors"
	"blindshake_server/geo"
	"blindshake_server/models"
	"blindshake_server/store"
)

// Matchmaker pairs a fresh seeker with the nearest live candidate.
type Matchmaker struct {
	pool    store.PoolStore
	matches store.MatchStore
	index   geo.Index
	clock   Clock
	logger  *slog.Logger
	opts    MatchingOptions
}

func NewMatchmaker(pool store.PoolStore, matches store.MatchStore, index geo.Index, clock Clock, logger *slog.Logger, opts MatchingOptions) *Matchmaker {
	return &Matchmaker{pool: pool, matches: matches, index: index, clock: clock, logger: logger, opts: opts}
}

type candidate struct {
	seeker   models.Seeker
	distance float64
}

// FindAndCreateMatch searches the pool precise-first and tries to pair
// the seeker with the top-ranked candidate of the first non-empty level.
// It returns nil without error when nobody is around or the pairing lost
// a race; the caller retries on its next registration.
func (mm *Matchmaker) FindAndCreateMatch(ctx context.Context, seeker *models.Seeker) (*models.Match, error) {
	now := mm.clock.Now()

	precisions := mm.index.SearchPrecisions
	if len(precisions) == 0 {
		precisions = []uint{mm.index.Precision}
	}

	for _, precision := range precisions {
		candidates, err := mm.candidates(ctx, seeker, precision, now)
		if err != nil {
			mm.logger.Error("failed to query pool", "userId", seeker.UserID, "precision", precision, "error", err)
			return nil, apperrors.ErrStoreFailed("search the matching pool", err)
		}
		if len(candidates) == 0 {
			continue
		}

		best := mm.pick(candidates)
		match := mm.newMatch(seeker, &best.seeker, now)
		err = mm.matches.CreateMatch(ctx, match)
		if errors.Is(err, store.ErrConflict) {
			mm.logger.Info("match attempt lost a race", "userId", seeker.UserID, "candidate", best.seeker.UserID)
			return nil, nil
		}
		if err != nil {
			mm.logger.Error("failed to create match", "userId", seeker.UserID, "candidate", best.seeker.UserID, "error", err)
			return nil, apperrors.ErrStoreFailed("create match", err)
		}

		mm.logger.Info("match created", "matchId", match.ID, "user1", match.Participants[0], "user2", match.Participants[1])
		return match, nil
	}
	return nil, nil
}

// candidates collects live seekers in the cell around the seeker and its
// neighbours at precision, within the matching radius.
func (mm *Matchmaker) candidates(ctx context.Context, seeker *models.Seeker, precision uint, now time.Time) ([]candidate, error) {
	seen := make(map[string]bool)
	var out []candidate
	for _, cell := range mm.index.SearchCells(seeker.Location, precision) {
		entries, err := mm.pool.SeekersInCell(ctx, cell)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.UserID == seeker.UserID || seen[e.UserID] {
				continue
			}
			seen[e.UserID] = true
			if now.Sub(e.JoinedAt) > mm.opts.PoolTTL || e.Expired(now) {
				continue
			}
			d := geo.Distance(seeker.Location, e.Location)
			if d > mm.opts.MaxRadiusKm {
				continue
			}
			out = append(out, candidate{seeker: e, distance: d})
		}
	}
	return out, nil
}

// pick returns the nearest candidate, except that among candidates whose
// distance is within the tie epsilon of the nearest, the most recent
// joiner wins.
func (mm *Matchmaker) pick(cands []candidate) candidate {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].distance != cands[j].distance {
			return cands[i].distance < cands[j].distance
		}
		return cands[i].seeker.UserID < cands[j].seeker.UserID
	})
	best := cands[0]
	for _, c := range cands[1:] {
		if c.distance-cands[0].distance >= mm.opts.TieEpsilonKm {
			break
		}
		if c.seeker.JoinedAt.After(best.seeker.JoinedAt) {
			best = c
		}
	}
	return best
}

func (mm *Matchmaker) newMatch(a, b *models.Seeker, now time.Time) *models.Match {
	return &models.Match{
		ID:                 uuid.NewString(),
		Participants:       []string{a.UserID, b.UserID},
		Status:             models.StatusAnonymous,
		CreatedAt:          now,
		UpdatedAt:          now,
		AnonymousPhaseEnds: now.Add(mm.opts.AnonymousWindow),
		ParticipantInfo: map[string]models.ParticipantInfo{
			a.UserID: {JoinedAt: a.JoinedAt},
			b.UserID: {JoinedAt: b.JoinedAt},
		},
	}
}
