package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	identitydomain "mymessenger/backend/internal/identity/domain"
	policyengine "mymessenger/backend/internal/policy/engine"
)

// enable2FA runs setup and verify for identityID and returns the secret.
func (e *testEnv) enable2FA(t *testing.T, identityID string) string {
	t.Helper()
	setup, err := e.svc.Setup2FA(context.Background(), identityID)
	if err != nil {
		t.Fatalf("Setup2FA: %v", err)
	}
	if err := e.svc.Verify2FA(context.Background(), identityID, e.code(t, setup.Secret)); err != nil {
		t.Fatalf("Verify2FA: %v", err)
	}
	return setup.Secret
}

func (e *testEnv) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := e.totp.Code(secret, e.clock.Now())
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	return code
}

// wrongCode returns a well-formed code that is not valid for secret at the current time.
func (e *testEnv) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	valid := map[string]bool{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		c, _ := e.totp.Code(secret, e.clock.Now().Add(d))
		valid[c] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[c] {
			return c
		}
	}
	t.Fatal("no wrong code available")
	return ""
}

func (e *testEnv) state(t *testing.T, identityID string) identitydomain.TwoFactorState {
	t.Helper()
	st, err := e.svc.TwoFactorState(context.Background(), identityID)
	if err != nil {
		t.Fatalf("TwoFactorState: %v", err)
	}
	return st
}

func TestSetup2FA_ReturnsEnrollmentMaterial(t *testing.T) {
	env := newTestEnv(t, Options{})
	ident := env.register(t, "alice@example.com")

	setup, err := env.svc.Setup2FA(context.Background(), ident.ID)
	if err != nil {
		t.Fatalf("Setup2FA: %v", err)
	}
	if len(setup.Secret) != 32 {
		t.Errorf("secret length = %d, want 32", len(setup.Secret))
	}
	if !strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/") || !strings.Contains(setup.ProvisioningURI, "secret="+setup.Secret) {
		t.Errorf("uri = %q", setup.ProvisioningURI)
	}
	if setup.QRCode == "" {
		t.Error("QR code should be set")
	}
	if st := env.state(t, ident.ID); st != identitydomain.TwoFactorPending {
		t.Errorf("state = %q, want pending", st)
	}
	if enabled, _ := env.svc.Is2FAEnabled(context.Background(), ident.ID); enabled {
		t.Error("pending 2FA must not report enabled")
	}

	again, err := env.svc.Setup2FA(context.Background(), ident.ID)
	if err != nil {
		t.Fatalf("second Setup2FA while pending: %v", err)
	}
	if again.Secret == setup.Secret {
		t.Error("repeated setup should replace the pending secret")
	}
}

// Setup then verify enables 2FA exactly once.
func TestTwoFactor_StateMachine(t *testing.T) {
	env := newTestEnv(t, Options{})
	ident := env.register(t, "alice@example.com")
	ctx := context.Background()

	assertCode(t, env.svc.Verify2FA(ctx, ident.ID, "123456"), ErrNotConfigured)
	assertCode(t, env.svc.Disable2FA(ctx, ident.ID, "123456"), ErrNotConfigured)

	setup, err := env.svc.Setup2FA(ctx, ident.ID)
	if err != nil {
		t.Fatalf("Setup2FA: %v", err)
	}
	assertCode(t, env.svc.Disable2FA(ctx, ident.ID, env.code(t, setup.Secret)), ErrNotEnabled)

	assertCode(t, env.svc.Verify2FA(ctx, ident.ID, env.wrongCode(t, setup.Secret)), ErrWrongCode)
	assertCode(t, env.svc.Verify2FA(ctx, ident.ID, "abc"), ErrWrongCode)
	if st := env.state(t, ident.ID); st != identitydomain.TwoFactorPending {
		t.Fatalf("wrong code changed state to %q", st)
	}

	if err := env.svc.Verify2FA(ctx, ident.ID, env.code(t, setup.Secret)); err != nil {
		t.Fatalf("Verify2FA: %v", err)
	}
	if enabled, _ := env.svc.Is2FAEnabled(ctx, ident.ID); !enabled {
		t.Fatal("2FA should be enabled")
	}
	stored, _ := env.identities.GetByID(ctx, ident.ID)
	if stored.TOTPVerifiedAt == nil || !stored.TOTPVerifiedAt.Equal(env.clock.Now()) {
		t.Errorf("verified_at = %v", stored.TOTPVerifiedAt)
	}
	if env.audit.last().Action != "2fa_enabled" {
		t.Errorf("audit action = %q", env.audit.last().Action)
	}

	_, err = env.svc.Setup2FA(ctx, ident.ID)
	assertCode(t, err, ErrAlreadyEnabled)
	assertCode(t, env.svc.Verify2FA(ctx, ident.ID, env.code(t, setup.Secret)), ErrAlreadyEnabled)

	assertCode(t, env.svc.Disable2FA(ctx, ident.ID, env.wrongCode(t, setup.Secret)), ErrWrongCode)
	if enabled, _ := env.svc.Is2FAEnabled(ctx, ident.ID); !enabled {
		t.Fatal("wrong-code disable must leave 2FA enabled")
	}

	if err := env.svc.Disable2FA(ctx, ident.ID, env.code(t, setup.Secret)); err != nil {
		t.Fatalf("Disable2FA: %v", err)
	}
	stored, _ = env.identities.GetByID(ctx, ident.ID)
	if stored.TOTPEnabled || stored.TOTPSecret != nil || stored.TOTPVerifiedAt != nil {
		t.Errorf("disabled identity still carries 2FA data: %+v", stored)
	}
	assertCode(t, env.svc.Disable2FA(ctx, ident.ID, "123456"), ErrNotConfigured)
}

func TestTwoFactor_DriftWindow(t *testing.T) {
	env := newTestEnv(t, Options{})
	ident := env.register(t, "alice@example.com")
	ctx := context.Background()
	setup, _ := env.svc.Setup2FA(ctx, ident.ID)
	code := env.code(t, setup.Secret)

	env.clock.Advance(30 * time.Second)
	if err := env.svc.Verify2FA(ctx, ident.ID, code); err != nil {
		t.Errorf("code from the previous step should verify: %v", err)
	}
}

func TestVerify2FA_ConcurrentEnablesOnce(t *testing.T) {
	env := newTestEnv(t, Options{})
	ident := env.register(t, "alice@example.com")
	setup, _ := env.svc.Setup2FA(context.Background(), ident.ID)
	code := env.code(t, setup.Secret)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		enabled int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := env.svc.Verify2FA(context.Background(), ident.ID, code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				enabled++
			case errors.Is(err, ErrAlreadyEnabled):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if enabled != 1 {
		t.Errorf("successful enables = %d, want 1", enabled)
	}
}

func TestTwoFactor_UnknownIdentity(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	_, err := env.svc.Setup2FA(ctx, "missing")
	assertCode(t, err, ErrNotFound)
	_, err = env.svc.Is2FAEnabled(ctx, "missing")
	assertCode(t, err, ErrNotFound)
}

func TestLogin_SecondFactor(t *testing.T) {
	evaluator, err := policyengine.NewOPAEvaluator(context.Background(), policyengine.DefaultLoginPolicy)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	env := newTestEnv(t, Options{Policy: evaluator, RequireTOTP: true})
	ident := env.register(t, "alice@example.com")
	env.register(t, "bob@example.com")
	secret := env.enable2FA(t, ident.ID)
	ctx := context.Background()

	_, err = env.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: testPassword})
	assertCode(t, err, ErrTwoFactorRequired)

	_, err = env.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: testPassword, TOTPCode: env.wrongCode(t, secret)})
	assertCode(t, err, ErrWrongCode)

	res, err := env.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: testPassword, TOTPCode: env.code(t, secret)})
	if err != nil {
		t.Fatalf("Login with code: %v", err)
	}
	if res.Identity.ID != ident.ID {
		t.Errorf("identity = %q", res.Identity.ID)
	}

	// Without 2FA enrolled no code is needed.
	if _, err := env.svc.Login(ctx, LoginInput{Email: "bob@example.com", Password: testPassword}); err != nil {
		t.Errorf("Login without 2FA: %v", err)
	}
}

func TestLogin_SecondFactorSettings(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want *Error
	}{
		{"not required by settings", Options{RequireTOTP: false}, nil},
		{"required without policy", Options{RequireTOTP: true}, ErrTwoFactorRequired},
		{"policy says no", Options{Policy: stubPolicy{required: false}}, nil},
		{"policy error fails closed", Options{Policy: stubPolicy{err: errors.New("boom")}}, ErrTwoFactorRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.opts)
			ident := env.register(t, "alice@example.com")
			env.enable2FA(t, ident.ID)
			_, err := env.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: testPassword})
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Login: %v", err)
				}
				return
			}
			assertCode(t, err, tt.want)
		})
	}
}

func TestLogin_PolicyRequiresFactorIdentityLacks(t *testing.T) {
	env := newTestEnv(t, Options{Policy: stubPolicy{required: true}})
	env.register(t, "alice@example.com")
	_, err := env.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: testPassword, TOTPCode: "123456"})
	assertCode(t, err, ErrTwoFactorRequired)
}
