package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"mymessenger/backend/internal/security"
	"mymessenger/backend/internal/session/domain"
	"mymessenger/backend/internal/session/repository"
)

// DefaultRefreshTTL is the lifetime granted to a session on creation and on every rotation.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// ErrEmptySecret is returned when a session is created or rotated with an empty refresh secret.
var ErrEmptySecret = errors.New("session: empty refresh secret")

// Store keeps refresh-token sessions. It hashes refresh secrets before they
// reach the repository; raw secrets never leave this type.
type Store struct {
	repo       repository.Repository
	hasher     *security.RefreshHasher
	refreshTTL time.Duration
}

// NewStore returns a Store over repo. A non-positive refreshTTL selects DefaultRefreshTTL.
func NewStore(repo repository.Repository, hasher *security.RefreshHasher, refreshTTL time.Duration) *Store {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	if hasher == nil {
		hasher = security.NewRefreshHasher(nil)
	}
	return &Store{repo: repo, hasher: hasher, refreshTTL: refreshTTL}
}

// RefreshTTL returns the session lifetime applied on create and rotate.
func (s *Store) RefreshTTL() time.Duration { return s.refreshTTL }

// Create persists a new session for identityID bound to refreshSecret.
func (s *Store) Create(ctx context.Context, identityID, refreshSecret, deviceInfo, ip string, now time.Time) (*domain.Session, error) {
	if refreshSecret == "" {
		return nil, ErrEmptySecret
	}
	now = now.UTC()
	sess := &domain.Session{
		ID:               uuid.NewString(),
		IdentityID:       identityID,
		RefreshTokenHash: s.hasher.Hash(refreshSecret),
		DeviceInfo:       deviceInfo,
		IPAddress:        ip,
		ExpiresAt:        now.Add(s.refreshTTL),
		LastUsedAt:       now,
		CreatedAt:        now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// FindLive returns the live session for refreshSecret, or nil when the secret is
// unknown, already rotated, or expired.
func (s *Store) FindLive(ctx context.Context, refreshSecret string, now time.Time) (*domain.Session, error) {
	if refreshSecret == "" {
		return nil, nil
	}
	sess, err := s.repo.GetLiveByHash(ctx, s.hasher.Hash(refreshSecret), now.UTC())
	if err != nil || sess == nil {
		return nil, err
	}
	if !s.hasher.Equal(refreshSecret, sess.RefreshTokenHash) || !sess.IsLive(now) {
		return nil, nil
	}
	return sess, nil
}

// Rotate exchanges oldSecret for newSecret and extends the session to
// now + refresh TTL. It returns nil when oldSecret does not name a live session;
// of several concurrent rotations with the same oldSecret at most one succeeds.
func (s *Store) Rotate(ctx context.Context, oldSecret, newSecret, deviceInfo, ip string, now time.Time) (*domain.Session, error) {
	if oldSecret == "" {
		return nil, nil
	}
	if newSecret == "" {
		return nil, ErrEmptySecret
	}
	now = now.UTC()
	return s.repo.Rotate(ctx, domain.Rotation{
		OldHash:    s.hasher.Hash(oldSecret),
		NewHash:    s.hasher.Hash(newSecret),
		DeviceInfo: deviceInfo,
		IPAddress:  ip,
		Now:        now,
		ExpiresAt:  now.Add(s.refreshTTL),
	})
}

// Delete removes the session bound to refreshSecret. Reports whether one existed.
func (s *Store) Delete(ctx context.Context, refreshSecret string) (bool, error) {
	if refreshSecret == "" {
		return false, nil
	}
	return s.repo.DeleteByHash(ctx, s.hasher.Hash(refreshSecret))
}

// DeleteByID removes one session of identityID by its id.
func (s *Store) DeleteByID(ctx context.Context, identityID, sessionID string) (bool, error) {
	return s.repo.DeleteByID(ctx, identityID, sessionID)
}

// DeleteAll removes every session of identityID and returns the count.
func (s *Store) DeleteAll(ctx context.Context, identityID string) (int64, error) {
	return s.repo.DeleteAllByIdentity(ctx, identityID)
}

// ListLive returns the live sessions of identityID, most recently used first.
func (s *Store) ListLive(ctx context.Context, identityID string, now time.Time) ([]*domain.Session, error) {
	return s.repo.ListLiveByIdentity(ctx, identityID, now.UTC())
}

// PurgeExpired removes sessions that expired at or before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.PurgeExpired(ctx, now.UTC())
}
