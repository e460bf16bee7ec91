package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func newTestProvider(t *testing.T) *TokenProvider {
	t.Helper()
	p, err := NewTokenProvider([]byte("test-secret-test-secret-test-secret"), 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	return p
}

func TestNewTokenProvider_EmptySecret(t *testing.T) {
	if _, err := NewTokenProvider(nil, time.Minute); err != ErrWeakSecret {
		t.Fatalf("err = %v, want ErrWeakSecret", err)
	}
}

func TestTokenProvider_IssueAndVerify(t *testing.T) {
	p := newTestProvider(t)
	id := uuid.NewString()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	token, exp, err := p.Issue(id, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(30 * time.Minute)) {
		t.Errorf("expiresAt = %v, want %v", exp, now.Add(30*time.Minute))
	}
	got, err := p.Verify(token, now)
	if err != nil {
		t.Fatalf("Verify at issue time: %v", err)
	}
	if got != id {
		t.Errorf("subject = %q, want %q", got, id)
	}
	if _, err := p.Verify(token, now.Add(29*time.Minute)); err != nil {
		t.Errorf("Verify before expiry: %v", err)
	}
	if _, err := p.Verify(token, now.Add(30*time.Minute)); err != ErrInvalidToken {
		t.Errorf("Verify at expiry: err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenProvider_VerifyRejects(t *testing.T) {
	p := newTestProvider(t)
	now := time.Now()
	id := uuid.NewString()

	other, _ := NewTokenProvider([]byte("another-secret"), 30*time.Minute)
	foreign, _, _ := other.Issue(id, now)

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key interface{}) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	base := jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	refreshPurpose := sign(AccessClaims{RegisteredClaims: base, Type: "refresh"}, jwt.SigningMethodHS256, p.secret)
	noPurpose := sign(base, jwt.SigningMethodHS256, p.secret)
	badSubject := base
	badSubject.Subject = "not-a-uuid"
	malformedSub := sign(AccessClaims{RegisteredClaims: badSubject, Type: PurposeAccess}, jwt.SigningMethodHS256, p.secret)
	noExp := base
	noExp.ExpiresAt = nil
	withoutExp := sign(AccessClaims{RegisteredClaims: noExp, Type: PurposeAccess}, jwt.SigningMethodHS256, p.secret)
	hs512 := sign(AccessClaims{RegisteredClaims: base, Type: PurposeAccess}, jwt.SigningMethodHS512, p.secret)
	unsigned := sign(AccessClaims{RegisteredClaims: base, Type: PurposeAccess}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"other secret", foreign},
		{"wrong purpose", refreshPurpose},
		{"missing purpose", noPurpose},
		{"malformed subject", malformedSub},
		{"missing expiry", withoutExp},
		{"other algorithm", hs512},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if sub, err := p.Verify(tt.token, now); err != ErrInvalidToken || sub != "" {
				t.Errorf("Verify = (%q, %v), want (\"\", ErrInvalidToken)", sub, err)
			}
		})
	}
}
