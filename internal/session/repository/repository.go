package repository

import (
	"context"
	"time"

	"mymessenger/backend/internal/session/domain"
)

// Repository defines persistence for sessions. Lookups return (nil, nil) when no
// live row matches.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetLiveByHash(ctx context.Context, hash string, now time.Time) (*domain.Session, error)
	// Rotate atomically swaps OldHash for NewHash on a live session. It returns
	// (nil, nil) when OldHash no longer identifies a live session, which is how a
	// losing concurrent rotation observes that the secret was consumed.
	Rotate(ctx context.Context, r domain.Rotation) (*domain.Session, error)
	DeleteByHash(ctx context.Context, hash string) (bool, error)
	DeleteByID(ctx context.Context, identityID, id string) (bool, error)
	DeleteAllByIdentity(ctx context.Context, identityID string) (int64, error)
	ListLiveByIdentity(ctx context.Context, identityID string, now time.Time) ([]*domain.Session, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
