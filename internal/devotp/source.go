// Package devotp exposes the current TOTP code of an identity for local testing.
// It is only mounted when DEV_TOTP_ENABLED is set outside production.
package devotp

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mymessenger/backend/internal/identity/domain"
	"mymessenger/backend/internal/mfa"
)

// IdentityGetter loads an identity by id; (nil, nil) when not found.
type IdentityGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
}

// CodeGenerator computes the TOTP code of a secret at a point in time.
type CodeGenerator interface {
	Code(secret string, now time.Time) (string, error)
}

// Code is the current code of an identity and how long it stays in its time step.
type Code struct {
	Code     string
	State    domain.TwoFactorState
	ValidFor time.Duration
}

// Source derives codes from stored TOTP secrets.
type Source struct {
	identities IdentityGetter
	gen        CodeGenerator
	nowF       func() time.Time
}

// NewSource returns a Source reading secrets from identities.
func NewSource(identities IdentityGetter, gen CodeGenerator) *Source {
	return &Source{identities: identities, gen: gen, nowF: time.Now}
}

// Current returns the code for identityID at the current time. ok is false when the
// identity does not exist, identityID is not a UUID, or no TOTP secret was set up.
func (s *Source) Current(ctx context.Context, identityID string) (Code, bool, error) {
	if _, err := uuid.Parse(identityID); err != nil {
		return Code{}, false, nil
	}
	ident, err := s.identities.GetByID(ctx, identityID)
	if err != nil || ident == nil {
		return Code{}, false, err
	}
	if ident.TOTPSecret == nil || *ident.TOTPSecret == "" {
		return Code{}, false, nil
	}
	now := s.nowF().UTC()
	code, err := s.gen.Code(*ident.TOTPSecret, now)
	if err != nil {
		return Code{}, false, err
	}
	period := time.Duration(mfa.Period) * time.Second
	elapsed := time.Duration(now.Unix()%int64(mfa.Period)) * time.Second
	return Code{
		Code:     code,
		State:    ident.TwoFactorState(),
		ValidFor: period - elapsed,
	}, true, nil
}
