package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"blindshake_server/geo"
	"blindshake_server/models"
	"blindshake_server/store"
)

var (
	t0   = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	locA = models.Location{Latitude: 37.0, Longitude: -122.0}
	locB = models.Location{Latitude: 37.001, Longitude: -122.001}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	clock     *FakeClock
	store     *store.MemoryStore
	profiles  *MemoryProfileDirectory
	pool      *PoolService
	mm        *Matchmaker
	lifecycle *LifecycleService
	shake     *ShakeService
	sweeper   *Sweeper
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	notifier Notifier
	photos   PhotoSigner
	profiles ProfileDirectory
}

func withNotifier(n Notifier) fixtureOption {
	return func(c *fixtureConfig) { c.notifier = n }
}

func withPhotoSigner(p PhotoSigner) fixtureOption {
	return func(c *fixtureConfig) { c.photos = p }
}

func withProfiles(p ProfileDirectory) fixtureOption {
	return func(c *fixtureConfig) { c.profiles = p }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		clock: NewFakeClock(t0),
		store: store.NewMemoryStore(),
		profiles: NewMemoryProfileDirectory(
			models.UserProfile{UserID: "alice", DisplayName: "Alice", PhotoURL: "photos/alice.jpg"},
			models.UserProfile{UserID: "bob", DisplayName: "Bob", PhotoURL: "https://cdn.example.com/bob.jpg"},
			models.UserProfile{UserID: "carol", DisplayName: "Carol"},
		),
	}
	cfg := fixtureConfig{profiles: f.profiles}
	for _, o := range opts {
		o(&cfg)
	}

	logger := discardLogger()
	matching := DefaultMatchingOptions()
	lifecycle := DefaultLifecycleOptions()
	index := geo.NewIndex(geo.DefaultPrecision, []uint{6, 5, 4})

	f.pool = NewPoolService(f.store, index, f.clock, logger, matching)
	f.mm = NewMatchmaker(f.store, f.store, index, f.clock, logger, matching)
	f.lifecycle = NewLifecycleService(f.store, cfg.profiles, cfg.photos, cfg.notifier, f.clock, logger, lifecycle)
	f.shake = NewShakeService(f.pool, f.mm, f.store, cfg.profiles, logger)
	f.sweeper = NewSweeper(f.pool, f.lifecycle, f.store, cfg.profiles, f.clock, logger, lifecycle)
	return f
}

// pair puts alice in the pool and lets bob's shake match her.
func (f *fixture) pair(t *testing.T) *models.Match {
	t.Helper()
	ctx := context.Background()

	res, err := f.shake.StartSeeking(ctx, "alice", locA)
	require.NoError(t, err)
	require.Nil(t, res.Match)

	res, err = f.shake.StartSeeking(ctx, "bob", locB)
	require.NoError(t, err)
	require.NotNil(t, res.Match)

	m, err := f.store.GetMatch(ctx, res.Match.MatchID)
	require.NoError(t, err)
	return m
}

func (f *fixture) messages(t *testing.T, matchID string) []models.Message {
	t.Helper()
	msgs, err := f.store.ListMessages(context.Background(), matchID, 0)
	require.NoError(t, err)
	return msgs
}

func countContent(msgs []models.Message, content string) int {
	n := 0
	for _, m := range msgs {
		if m.Content == content {
			n++
		}
	}
	return n
}
