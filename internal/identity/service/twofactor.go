package service

import (
	"context"
	"strings"

	"mymessenger/backend/internal/audit"
	identitydomain "mymessenger/backend/internal/identity/domain"
	telemetrydomain "mymessenger/backend/internal/telemetry/domain"
)

// TwoFactorSetup is returned by Setup2FA. QRCode is a base64-encoded PNG of ProvisioningURI.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	QRCode          string
}

// Setup2FA generates a new pending TOTP secret for identityID. Calling it again
// before verification replaces the pending secret.
func (s *AuthService) Setup2FA(ctx context.Context, identityID string) (_ *TwoFactorSetup, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Setup2FA")
	defer func() { endSpan(span, err) }()

	ident, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if ident.TOTPEnabled {
		return nil, ErrAlreadyEnabled
	}
	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	uri, err := s.totp.ProvisioningURI(secret, ident.Email)
	if err != nil {
		return nil, err
	}
	qr, err := s.totp.EnrollmentQR(uri)
	if err != nil {
		return nil, err
	}
	ok, err := s.identities.SetTOTPSecret(ctx, ident.ID, secret, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyEnabled
	}
	s.record(ctx, audit.Event{IdentityID: ident.ID, Action: telemetrydomain.Event2FASetup})
	return &TwoFactorSetup{Secret: secret, ProvisioningURI: uri, QRCode: qr}, nil
}

// Verify2FA enables 2FA when code matches the pending secret. A wrong code
// leaves the identity unchanged.
func (s *AuthService) Verify2FA(ctx context.Context, identityID, code string) (err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Verify2FA")
	defer func() { endSpan(span, err) }()

	ident, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	switch ident.TwoFactorState() {
	case identitydomain.TwoFactorEnabled:
		return ErrAlreadyEnabled
	case identitydomain.TwoFactorDisabled:
		return ErrNotConfigured
	}
	secret := *ident.TOTPSecret
	now := s.now()
	if !s.totp.Verify(secret, strings.TrimSpace(code), now) {
		return ErrWrongCode
	}
	ok, err := s.identities.EnableTOTP(ctx, ident.ID, secret, now.UTC())
	if err != nil {
		return err
	}
	if !ok {
		// Lost a race with another verify, or a new setup replaced the secret.
		cur, err := s.GetIdentity(ctx, identityID)
		if err != nil {
			return err
		}
		if cur.TOTPEnabled {
			return ErrAlreadyEnabled
		}
		return ErrWrongCode
	}
	s.record(ctx, audit.Event{IdentityID: ident.ID, Action: telemetrydomain.Event2FAEnabled})
	return nil
}

// Disable2FA clears the TOTP secret when code is valid for the enabled secret.
func (s *AuthService) Disable2FA(ctx context.Context, identityID, code string) (err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Disable2FA")
	defer func() { endSpan(span, err) }()

	ident, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	switch ident.TwoFactorState() {
	case identitydomain.TwoFactorDisabled:
		return ErrNotConfigured
	case identitydomain.TwoFactorPending:
		return ErrNotEnabled
	}
	now := s.now()
	if !s.totp.Verify(*ident.TOTPSecret, strings.TrimSpace(code), now) {
		return ErrWrongCode
	}
	ok, err := s.identities.DisableTOTP(ctx, ident.ID, now.UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotEnabled
	}
	s.record(ctx, audit.Event{IdentityID: ident.ID, Action: telemetrydomain.Event2FADisabled})
	return nil
}

// Is2FAEnabled reports whether identityID has completed 2FA enrollment.
func (s *AuthService) Is2FAEnabled(ctx context.Context, identityID string) (bool, error) {
	ident, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return false, err
	}
	return ident.TOTPEnabled, nil
}

// TwoFactorState returns the enrollment state of identityID.
func (s *AuthService) TwoFactorState(ctx context.Context, identityID string) (identitydomain.TwoFactorState, error) {
	ident, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return "", err
	}
	return ident.TwoFactorState(), nil
}
