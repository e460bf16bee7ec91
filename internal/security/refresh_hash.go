package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// refreshSecretBytes is the entropy of a refresh secret before encoding.
const refreshSecretBytes = 32

// GenerateRefreshSecret returns a new opaque, URL-safe refresh secret.
func GenerateRefreshSecret() (string, error) {
	b := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashRefreshToken returns a SHA-256 hash of the refresh token string, hex-encoded.
// Used for storing and comparing refresh tokens without storing the raw token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshHasher hashes refresh secrets for storage: HMAC-SHA256 keyed by the
// pepper when one is set, HashRefreshToken otherwise.
type RefreshHasher struct {
	pepper []byte
}

// NewRefreshHasher returns a RefreshHasher. An empty pepper selects plain SHA-256.
func NewRefreshHasher(pepper []byte) *RefreshHasher {
	return &RefreshHasher{pepper: pepper}
}

// Hash returns the hex-encoded storage hash of token.
func (h *RefreshHasher) Hash(token string) string {
	if h == nil || len(h.pepper) == 0 {
		return HashRefreshToken(token)
	}
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal performs constant-time comparison of the provided token's hash with the
// stored hash. Returns true only if they match.
func (h *RefreshHasher) Equal(providedToken, storedHash string) bool {
	if providedToken == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(h.Hash(providedToken)), []byte(storedHash)) == 1
}
