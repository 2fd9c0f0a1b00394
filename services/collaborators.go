package services

import (
	"context"

	"blindshake_server/models"
)

//go:generate mockgen -source=collaborators.go -destination=mocks/mock_collaborators.go -package=mocks

// ProfileDirectory is the external user-profile store.
type ProfileDirectory interface {
	// GetProfile returns apperrors.ErrProfileNotFound when the user has
	// no profile.
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	UpdateStats(ctx context.Context, userID string, stats models.UserStats) error
}

// Notifier pushes committed changes to connected clients. Delivery is
// best effort.
type Notifier interface {
	MessageAppended(ctx context.Context, msg *models.Message) error
	MatchUpdated(ctx context.Context, match *models.Match) error
}

// PhotoSigner turns a stored photo reference into a URL a client can load.
type PhotoSigner interface {
	SignPhotoURL(ctx context.Context, ref string) (string, error)
}

type nopNotifier struct{}

func (nopNotifier) MessageAppended(context.Context, *models.Message) error { return nil }
func (nopNotifier) MatchUpdated(context.Context, *models.Match) error { return nil }

// NopNotifier discards every notification.
func NopNotifier() Notifier { return nopNotifier{} }

type passthroughSigner struct{}

func (passthroughSigner) SignPhotoURL(_ context.Context, ref string) (string, error) { return ref, nil }

// PassthroughSigner returns photo references unchanged.
func PassthroughSigner() PhotoSigner { return passthroughSigner{} }
