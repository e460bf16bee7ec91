package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, signed with
	// another key or issued for another purpose.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned when the signing secret is empty.
	ErrWeakSecret = errors.New("signing secret must not be empty")
)

// PurposeAccess is the value of the "type" claim on access tokens.
const PurposeAccess = "access"

// DefaultAccessTTL is the access-token lifetime used when none is configured.
const DefaultAccessTTL = 30 * time.Minute

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// TokenProvider issues and validates HS256 access tokens. Validation is pure and
// never touches storage.
type TokenProvider struct {
	secret    []byte
	accessTTL time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with secret. A
// non-positive accessTTL selects DefaultAccessTTL.
func NewTokenProvider(secret []byte, accessTTL time.Duration) (*TokenProvider, error) {
	if len(secret) == 0 {
		return nil, ErrWeakSecret
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	return &TokenProvider{secret: secret, accessTTL: accessTTL}, nil
}

// AccessTTL returns the lifetime of issued access tokens.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// Issue issues an access JWT for identityID at now. Returns the token and its
// expiration time.
func (p *TokenProvider) Issue(identityID string, now time.Time) (string, time.Time, error) {
	now = now.UTC()
	expiresAt := now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type: PurposeAccess,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify parses tokenString and returns its subject. The token must carry a
// valid HS256 signature, the access purpose, an expiry after now and a UUID
// subject; anything else yields ErrInvalidToken.
func (p *TokenProvider) Verify(tokenString string, now time.Time) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Type != PurposeAccess {
		return "", ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
