package engine

import "context"

// LoginInput is the policy input describing a password login that already
// passed credential and active-flag checks.
type LoginInput struct {
	IdentityID  string
	TOTPEnabled bool
	// RequireTOTP is the deployment switch (LOGIN_REQUIRE_TOTP).
	RequireTOTP bool
	DeviceInfo  string
	IPAddress   string
}

// Evaluator decides login policy using OPA or other engines.
type Evaluator interface {
	// SecondFactorRequired reports whether the login must present a valid TOTP
	// code before a session is issued.
	SecondFactorRequired(ctx context.Context, in LoginInput) (bool, error)
}
