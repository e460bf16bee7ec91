package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters written into every credential. Verification always reads
// the parameters back from the credential, so these can be raised without
// invalidating existing hashes.
const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16

	// upper bounds accepted when decoding a stored credential
	maxArgonMemory  uint32 = 1024 * 1024
	maxArgonTime    uint32 = 64
	maxArgonKeyLen         = 128
	maxArgonSaltLen        = 64
)

var errMalformedCredential = errors.New("malformed credential")

// PasswordHasher hashes and verifies passwords with Argon2id. The output is the
// PHC string form ($argon2id$v=19$m=...,t=...,p=...$salt$hash) so the salt and
// cost parameters travel with the credential. Callers must not log or persist
// plaintext passwords.
type PasswordHasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// NewPasswordHasher returns a PasswordHasher with the default cost parameters.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{Time: argonTime, Memory: argonMemory, Threads: argonThreads}
}

// Hash derives an Argon2id key from password with a fresh random salt. Two calls
// with the same password return different strings.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.Time, h.Memory, h.Threads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Time, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches credential. Malformed or unsupported
// credentials verify as false.
func (h *PasswordHasher) Verify(password, credential string) bool {
	p, salt, key, err := decodeCredential(credential)
	if err != nil {
		return false
	}
	derived := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func decodeCredential(credential string) (argonParams, []byte, []byte, error) {
	var p argonParams
	parts := strings.Split(credential, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, errMalformedCredential
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errMalformedCredential
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, errMalformedCredential
	}
	if p.memory == 0 || p.memory > maxArgonMemory || p.time == 0 || p.time > maxArgonTime || p.threads == 0 {
		return p, nil, nil, errMalformedCredential
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 || len(salt) > maxArgonSaltLen {
		return p, nil, nil, errMalformedCredential
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxArgonKeyLen {
		return p, nil, nil, errMalformedCredential
	}
	return p, salt, key, nil
}
