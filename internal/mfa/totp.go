package mfa

import (
	"encoding/base32"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
)

// TOTP parameters shared with standard authenticator apps (RFC 6238 defaults).
const (
	Period     = 30
	Digits     = 6
	DriftSteps = 1
	secretSize = 20
	qrSize     = 290
)

// ErrInvalidSecret is returned when a secret is not valid unpadded base32.
var ErrInvalidSecret = errors.New("mfa: invalid totp secret")

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTP generates enrollment material and verifies time-based one-time codes.
type TOTP struct {
	Issuer string
}

// NewTOTP returns a TOTP engine labelling provisioning URIs with issuer.
func NewTOTP(issuer string) *TOTP {
	return &TOTP{Issuer: issuer}
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Skew:      DriftSteps,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateSecret returns a fresh base32 secret (32 characters, no padding).
func (e *TOTP) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: "enrollment",
		SecretSize:  secretSize,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// ProvisioningURI builds the otpauth://totp/ URI for secret and accountLabel.
func (e *TOTP) ProvisioningURI(secret, accountLabel string) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: accountLabel,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Secret:      raw,
	})
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// EnrollmentQR renders uri as a PNG QR code and returns it base64-encoded.
func (e *TOTP) EnrollmentQR(uri string) (string, error) {
	png, err := qrcode.Encode(uri, qrcode.Medium, qrSize)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// Verify reports whether code is valid for secret at now, allowing one step of
// drift either way. Malformed codes or secrets verify as false.
func (e *TOTP) Verify(secret, code string, now time.Time) bool {
	if !IsWellFormedCode(code) {
		return false
	}
	if _, err := decodeSecret(secret); err != nil {
		return false
	}
	ok, err := totp.ValidateCustom(code, normalizeSecret(secret), now.UTC(), validateOpts())
	return err == nil && ok
}

// Code returns the code for secret at now.
func (e *TOTP) Code(secret string, now time.Time) (string, error) {
	if _, err := decodeSecret(secret); err != nil {
		return "", err
	}
	return totp.GenerateCodeCustom(normalizeSecret(secret), now.UTC(), validateOpts())
}

// IsWellFormedCode reports whether code is exactly six ASCII digits.
func IsWellFormedCode(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
}

func decodeSecret(secret string) ([]byte, error) {
	s := normalizeSecret(secret)
	if s == "" {
		return nil, ErrInvalidSecret
	}
	raw, err := b32.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}
