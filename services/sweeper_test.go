package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blindshake_server/apperrors"
	"blindshake_server/geo"
	"blindshake_server/models"
	"blindshake_server/store"
)

func TestRunSweep_InvalidKind(t *testing.T) {
	f := newFixture(t)
	_, err := f.sweeper.RunSweep(context.Background(), "everything", false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSweepKind)
}

func TestRunSweep_Pool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.pool.Register(ctx, "alice", locA, 0, "")
	require.NoError(t, err)
	_, err = f.pool.Register(ctx, "bob", locB, time.Hour, "")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)

	res, err := f.sweeper.RunSweep(ctx, models.SweepPool, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	_, err = f.store.GetSeeker(ctx, "alice")
	require.NoError(t, err, "dry run must not delete")

	res, err = f.sweeper.RunSweep(ctx, models.SweepPool, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	_, err = f.store.GetSeeker(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.store.GetSeeker(ctx, "bob")
	assert.NoError(t, err)
}

// refreshingPool re-registers a seeker right after the expired listing is
// taken, the way a client refreshing mid-sweep would.
type refreshingPool struct {
	store.PoolStore
	refresh func()
}

func (r *refreshingPool) ExpiredSeekers(ctx context.Context, now time.Time, limit int) ([]models.Seeker, error) {
	out, err := r.PoolStore.ExpiredSeekers(ctx, now, limit)
	if r.refresh != nil {
		r.refresh()
		r.refresh = nil
	}
	return out, err
}

func TestSweepExpired_SparesRefreshedEntry(t *testing.T) {
	ctx := context.Background()
	clock := NewFakeClock(t0)
	mem := store.NewMemoryStore()
	index := geo.NewIndex(geo.DefaultPrecision, []uint{6})
	opts := DefaultMatchingOptions()
	writer := NewPoolService(mem, index, clock, discardLogger(), opts)

	_, err := writer.Register(ctx, "alice", locA, 0, "")
	require.NoError(t, err)
	clock.Advance(time.Minute)

	wrapped := &refreshingPool{PoolStore: mem, refresh: func() {
		_, err := writer.Register(ctx, "alice", locA, 0, "")
		require.NoError(t, err)
	}}
	sweeper := NewPoolService(wrapped, index, clock, discardLogger(), opts)

	removed, err := sweeper.SweepExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	s, err := mem.GetSeeker(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, s.ExpiresAt.After(clock.Now()))
}

func TestRunSweep_ArchiveExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.pair(t)

	f.clock.Set(m.AnonymousPhaseEnds.Add(24 * time.Hour))
	res, err := f.sweeper.RunSweep(ctx, models.SweepArchive, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)

	f.clock.Set(t0.Add(25 * time.Hour))
	preview, err := f.sweeper.RunSweep(ctx, models.SweepArchive, true)
	require.NoError(t, err)
	assert.Equal(t, 1, preview.Processed)
	stored, err := f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnonymous, stored.Status)

	f.clock.Set(m.AnonymousPhaseEnds.Add(25 * time.Hour))
	res, err = f.sweeper.RunSweep(ctx, models.SweepArchive, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	res, err = f.sweeper.RunSweep(ctx, models.SweepArchive, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)

	stored, err = f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, stored.Status)
	assert.Equal(t, models.ArchivedReasonAutoExpired, stored.ArchivedReason)
	assert.Equal(t, 1, countContent(f.messages(t, m.ID), autoExpiredText))

	for _, u := range []string{"alice", "bob"} {
		id, err := f.store.CurrentMatchID(ctx, u)
		require.NoError(t, err)
		assert.Empty(t, id)
	}
}

func TestRunSweep_ArchiveSkipsRevealed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.pair(t)

	f.clock.Set(t0.Add(16 * time.Minute))
	_, err := f.lifecycle.RequestReveal(ctx, "alice", m.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.RequestReveal(ctx, "bob", m.ID)
	require.NoError(t, err)

	f.clock.Set(t0.Add(72 * time.Hour))
	res, err := f.sweeper.RunSweep(ctx, models.SweepArchive, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scanned)

	stored, err := f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevealed, stored.Status)
}

func TestRunSweep_Retention(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.pair(t)

	_, err := f.lifecycle.SendMessage(ctx, "alice", m.ID, "hey", "")
	require.NoError(t, err)
	require.NoError(t, f.lifecycle.LeaveMatch(ctx, "bob", m.ID))

	f.clock.Advance(29 * 24 * time.Hour)
	res, err := f.sweeper.RunSweep(ctx, models.SweepRetention, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)

	f.clock.Advance(48 * time.Hour)
	res, err = f.sweeper.RunSweep(ctx, models.SweepRetention, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	_, err = f.store.GetMatch(ctx, m.ID)
	require.NoError(t, err)

	res, err = f.sweeper.RunSweep(ctx, models.SweepRetention, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 2, res.MessagesDeleted)

	_, err = f.store.GetMatch(ctx, m.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.messages(t, m.ID))
}

// seedArchived creates n matches between fresh users, all archived at
// archivedAt.
func (f *fixture) seedArchived(t *testing.T, n int, archivedAt time.Time) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		users := []string{fmt.Sprintf("old-%d-a", i), fmt.Sprintf("old-%d-b", i)}
		for _, u := range users {
			require.NoError(t, f.store.PutSeeker(ctx, &models.Seeker{
				UserID:    u,
				Geocell:   "9q9hvu",
				JoinedAt:  archivedAt,
				ExpiresAt: archivedAt.Add(time.Minute),
			}))
		}
		m := &models.Match{
			ID:                 fmt.Sprintf("old-match-%d", i),
			Participants:       users,
			Status:             models.StatusAnonymous,
			CreatedAt:          archivedAt,
			UpdatedAt:          archivedAt,
			AnonymousPhaseEnds: archivedAt.Add(15 * time.Minute),
		}
		require.NoError(t, f.store.CreateMatch(ctx, m))
		_, err := f.store.UpdateMatch(ctx, m.ID, func(m *models.Match) (*store.MatchUpdate, error) {
			at := archivedAt
			m.Status = models.StatusArchived
			m.ArchivedAt = &at
			m.ArchivedReason = models.ArchivedReasonParticipantLeft
			return &store.MatchUpdate{ClearPointers: true}, nil
		})
		require.NoError(t, err)
	}
}

func TestRunSweep_RetentionBoundedPerRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	batch := DefaultLifecycleOptions().PurgeBatchSize
	total := 2*batch + batch/2

	f.seedArchived(t, total, t0)
	f.clock.Set(t0.Add(40 * 24 * time.Hour))

	res, err := f.sweeper.RunSweep(ctx, models.SweepRetention, true)
	require.NoError(t, err)
	assert.Equal(t, batch, res.Processed)

	remaining := total
	for _, want := range []int{batch, batch, batch / 2, 0} {
		res, err = f.sweeper.RunSweep(ctx, models.SweepRetention, false)
		require.NoError(t, err)
		assert.Equal(t, want, res.Processed)
		assert.Zero(t, res.Failed)

		remaining -= want
		left, err := f.store.ArchivedMatchesBefore(ctx, f.clock.Now(), 0)
		require.NoError(t, err)
		assert.Len(t, left, remaining)
	}
}

func TestRunSweep_Stats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.pair(t)

	f.clock.Set(t0.Add(16 * time.Minute))
	_, err := f.lifecycle.RequestReveal(ctx, "alice", m.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.RequestReveal(ctx, "bob", m.ID)
	require.NoError(t, err)
	require.NoError(t, f.lifecycle.LeaveMatch(ctx, "alice", m.ID))

	res, err := f.sweeper.RunSweep(ctx, models.SweepStats, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	_, ok := f.profiles.Stats("alice")
	assert.False(t, ok)

	res, err = f.sweeper.RunSweep(ctx, models.SweepStats, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)

	stats, ok := f.profiles.Stats("alice")
	require.True(t, ok)
	assert.Equal(t, models.UserStats{
		TotalMatches:    1,
		RevealedMatches: 1,
		ArchivedMatches: 1,
		UpdatedAt:       t0.Add(16 * time.Minute),
	}, stats)

	stats, ok = f.profiles.Stats("carol")
	require.True(t, ok)
	assert.Zero(t, stats.TotalMatches)
}
