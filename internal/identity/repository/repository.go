package repository

import (
	"context"
	"errors"
	"time"

	"mymessenger/backend/internal/identity/domain"
)

// ErrEmailTaken is returned by Create when the email unique constraint rejects the insert.
var ErrEmailTaken = errors.New("email already registered")

// Repository defines persistence for identities. Getters return (nil, nil) when
// no row matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	Create(ctx context.Context, i *domain.Identity) error
	// SetTOTPSecret stores a pending secret. Reports false when 2FA is already enabled.
	SetTOTPSecret(ctx context.Context, id, secret string, at time.Time) (bool, error)
	// EnableTOTP enables 2FA if the stored secret still equals secret and 2FA is
	// not yet enabled. Reports whether the transition happened.
	EnableTOTP(ctx context.Context, id, secret string, at time.Time) (bool, error)
	// DisableTOTP clears the secret and verified timestamp if 2FA is enabled.
	DisableTOTP(ctx context.Context, id string, at time.Time) (bool, error)
}
