//go:build integration

package mongo

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"blindshake_server/models"
	"blindshake_server/store"
)

var testStore *Store

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	if err != nil {
		log.Printf("failed to start container: %s", err)
		return
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("failed to get connection string: %v", err)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetDirect(true))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	testStore = New(client, "blindshake_test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := testStore.EnsureIndexes(ctx); err != nil {
		log.Fatalf("failed to create indexes: %v", err)
	}

	code := m.Run()

	testStore.Close(ctx)
	if err := testcontainers.TerminateContainer(container); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func reset(t *testing.T) {
	t.Cleanup(func() {
		ctx := context.Background()
		for _, c := range []*mongo.Collection{testStore.seekers, testStore.matches, testStore.messages, testStore.pointers} {
			_, err := c.DeleteMany(ctx, bson.M{})
			require.NoError(t, err)
		}
	})
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seeker(id string, expires time.Time) *models.Seeker {
	return &models.Seeker{
		UserID:    id,
		Location:  models.Location{Latitude: 37, Longitude: -122},
		Geocell:   "9q9hvu",
		JoinedAt:  expires.Add(-30 * time.Second),
		ExpiresAt: expires,
	}
}

func newMatch(id string, users ...string) *models.Match {
	return &models.Match{
		ID:                 id,
		Participants:       users,
		Status:             models.StatusAnonymous,
		CreatedAt:          now,
		UpdatedAt:          now,
		AnonymousPhaseEnds: now.Add(15 * time.Minute),
	}
}

func TestPoolPrefixAndConditionalDelete(t *testing.T) {
	reset(t)
	ctx := context.Background()

	require.NoError(t, testStore.PutSeeker(ctx, seeker("alice", now.Add(30*time.Second))))
	other := seeker("bob", now.Add(30*time.Second))
	other.Geocell = "dr5reg"
	require.NoError(t, testStore.PutSeeker(ctx, other))

	inCell, err := testStore.SeekersInCell(ctx, "9q9")
	require.NoError(t, err)
	require.Len(t, inCell, 1)
	assert.Equal(t, "alice", inCell[0].UserID)

	deleted, err := testStore.DeleteSeekerIfExpired(ctx, "alice", now)
	require.NoError(t, err)
	assert.False(t, deleted)

	expired, err := testStore.ExpiredSeekers(ctx, now.Add(30*time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, expired, 2)
}

func TestCreateMatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()

	t.Run("missing candidate conflicts", func(t *testing.T) {
		reset(t)
		require.NoError(t, testStore.PutSeeker(ctx, seeker("alice", now.Add(time.Minute))))

		err := testStore.CreateMatch(ctx, newMatch("m1", "alice", "bob"))
		assert.ErrorIs(t, err, store.ErrConflict)

		_, err = testStore.GetSeeker(ctx, "alice")
		assert.NoError(t, err)
	})

	t.Run("user holding a live match conflicts", func(t *testing.T) {
		reset(t)
		for _, u := range []string{"alice", "bob"} {
			require.NoError(t, testStore.PutSeeker(ctx, seeker(u, now.Add(time.Minute))))
		}
		require.NoError(t, testStore.CreateMatch(ctx, newMatch("m1", "alice", "bob")))

		for _, u := range []string{"alice", "carol"} {
			require.NoError(t, testStore.PutSeeker(ctx, seeker(u, now.Add(time.Minute))))
		}
		err := testStore.CreateMatch(ctx, newMatch("m2", "alice", "carol"))
		assert.ErrorIs(t, err, store.ErrConflict)

		_, err = testStore.GetSeeker(ctx, "carol")
		assert.NoError(t, err)
	})

	t.Run("concurrent pairings never double book", func(t *testing.T) {
		reset(t)
		for _, u := range []string{"alice", "bob", "carol"} {
			require.NoError(t, testStore.PutSeeker(ctx, seeker(u, now.Add(time.Minute))))
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, other := range []string{"bob", "carol"} {
			wg.Add(1)
			go func(i int, other string) {
				defer wg.Done()
				errs[i] = testStore.CreateMatch(ctx, newMatch("m-"+other, "alice", other))
			}(i, other)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			}
		}
		assert.Equal(t, 1, succeeded)
	})
}

func TestUpdateMatchAppendsAndClears(t *testing.T) {
	reset(t)
	ctx := context.Background()
	for _, u := range []string{"alice", "bob"} {
		require.NoError(t, testStore.PutSeeker(ctx, seeker(u, now.Add(time.Minute))))
	}
	require.NoError(t, testStore.CreateMatch(ctx, newMatch("m1", "alice", "bob")))

	for i, content := range []string{"one", "two", "three"} {
		msg := &models.Message{ID: content, MatchID: "m1", SenderID: "alice", Content: content, Type: models.MessageTypeText, Timestamp: now.Add(time.Duration(i) * time.Second)}
		_, err := testStore.UpdateMatch(ctx, "m1", func(m *models.Match) (*store.MatchUpdate, error) {
			m.LastMessage = msg.Summary()
			return &store.MatchUpdate{Message: msg}, nil
		})
		require.NoError(t, err)
	}

	msgs, err := testStore.ListMessages(ctx, "m1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)

	got, err := testStore.UpdateMatch(ctx, "m1", func(m *models.Match) (*store.MatchUpdate, error) {
		m.Status = models.StatusArchived
		return &store.MatchUpdate{ClearPointers: true}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)

	id, err := testStore.CurrentMatchID(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, id)

	n, err := testStore.DeleteMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
