package domain

import (
	"errors"
	"time"
)

// Identity is a registered account. The TOTP secret lives on the identity
// because it has no lifecycle of its own.
type Identity struct {
	ID             string
	Email          string
	PasswordHash   string
	Name           string
	Active         bool
	TOTPSecret     *string // nil when 2FA was never set up or has been disabled
	TOTPEnabled    bool
	TOTPVerifiedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TwoFactorState is the position of an identity in the 2FA enrollment state machine.
type TwoFactorState string

const (
	TwoFactorDisabled TwoFactorState = "disabled"
	TwoFactorPending  TwoFactorState = "pending"
	TwoFactorEnabled  TwoFactorState = "enabled"
)

// TwoFactorState derives the 2FA state from the stored columns.
func (i *Identity) TwoFactorState() TwoFactorState {
	switch {
	case i.TOTPEnabled:
		return TwoFactorEnabled
	case i.TOTPSecret != nil && *i.TOTPSecret != "":
		return TwoFactorPending
	default:
		return TwoFactorDisabled
	}
}

// Validate validates the identity for persistence. Returns an error describing the first validation failure.
func (i *Identity) Validate() error {
	if i.Email == "" {
		return errors.New("email is required")
	}
	if i.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if i.TOTPEnabled && (i.TOTPSecret == nil || *i.TOTPSecret == "") {
		return errors.New("totp enabled without secret")
	}
	return nil
}
