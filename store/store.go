// Package store defines the persistence contract the matchmaking core
// consumes. Every multi-entity mutation is a single atomic unit; adapters
// map the contract onto their backend's transaction primitive.
package store

import (
	"context"
	"errors"
	"time"

	"blindshake_server/models"
)

var (
	// ErrNotFound is returned when the referenced entity does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a transaction guard failed: a pool
	// entry vanished or expired, or a participant already holds a match.
	ErrConflict = errors.New("store: conflict")
)

// MatchUpdate describes the side effects committed together with a
// mutated match.
type MatchUpdate struct {
	// Message is appended in the same transaction when non-nil.
	Message *models.Message
	// ClearPointers removes both participants' current-match pointer
	// where it still references this match.
	ClearPointers bool
}

// MatchMutator validates and mutates m in place. Returning an error aborts
// the transaction and the error is returned unchanged to the caller.
// Returning a nil update with a nil error commits nothing. A mutator may
// run more than once when an adapter retries after a write conflict, so
// it must derive everything from m.
type MatchMutator func(m *models.Match) (*MatchUpdate, error)

// PoolStore holds the ephemeral set of seekers keyed by user id.
type PoolStore interface {
	// PutSeeker writes or overwrites the entry keyed by s.UserID.
	PutSeeker(ctx context.Context, s *models.Seeker) error
	// GetSeeker returns ErrNotFound when the user is not pooled.
	GetSeeker(ctx context.Context, userID string) (*models.Seeker, error)
	// DeleteSeeker is a no-op when the entry is absent.
	DeleteSeeker(ctx context.Context, userID string) error
	// SeekersInCell returns every entry whose geocell starts with prefix.
	SeekersInCell(ctx context.Context, prefix string) ([]models.Seeker, error)
	// ExpiredSeekers lists up to limit entries whose expiry is at or
	// before now.
	ExpiredSeekers(ctx context.Context, now time.Time, limit int) ([]models.Seeker, error)
	// DeleteSeekerIfExpired deletes the entry only if its stored expiry,
	// read at delete time, is at or before now.
	DeleteSeekerIfExpired(ctx context.Context, userID string, now time.Time) (bool, error)
}

// MatchStore holds matches, their messages and per-user pointers.
type MatchStore interface {
	// CreateMatch atomically writes m, removes both participants from the
	// pool and points both users at m. It fails with ErrConflict when a
	// participant's pool entry is missing or expired at m.CreatedAt, or
	// when a participant already references a match.
	CreateMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, matchID string) (*models.Match, error)
	// UpdateMatch runs mutate as one atomic read-modify-write on the match.
	UpdateMatch(ctx context.Context, matchID string, mutate MatchMutator) (*models.Match, error)
	// CurrentMatchID returns "" when the user holds no match.
	CurrentMatchID(ctx context.Context, userID string) (string, error)
	// AnonymousMatchesEndingBefore lists anonymous matches whose anonymous
	// phase ended at or before t, earliest first.
	AnonymousMatchesEndingBefore(ctx context.Context, t time.Time, limit int) ([]models.Match, error)
	// ArchivedMatchesBefore lists archived matches archived at or before t.
	ArchivedMatchesBefore(ctx context.Context, t time.Time, limit int) ([]models.Match, error)
	// DeleteMatch removes the match and all of its messages and returns
	// the number of messages removed.
	DeleteMatch(ctx context.Context, matchID string) (int, error)
	// ListMessages returns up to limit of the latest messages, oldest first.
	ListMessages(ctx context.Context, matchID string, limit int) ([]models.Message, error)
	// MatchesForUser returns every match the user participates in.
	MatchesForUser(ctx context.Context, userID string) ([]models.Match, error)
}

// Store is the full contract an adapter implements.
type Store interface {
	PoolStore
	MatchStore
	Close(ctx context.Context) error
}
