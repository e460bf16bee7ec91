package mfa

import (
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"
)

// RFC 6238 SHA-1 seed "12345678901234567890" in base32.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerateSecret(t *testing.T) {
	e := NewTOTP("MyMessenger")
	secret, err := e.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if len(secret) != 32 {
		t.Errorf("secret length = %d, want 32", len(secret))
	}
	for _, c := range secret {
		if !(c >= 'A' && c <= 'Z' || c >= '2' && c <= '7') {
			t.Fatalf("secret %q contains non-base32 rune %q", secret, c)
		}
	}
	other, _ := e.GenerateSecret()
	if other == secret {
		t.Error("two secrets should differ")
	}
}

func TestCode_RFCVectors(t *testing.T) {
	e := NewTOTP("MyMessenger")
	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
	}
	for _, tt := range tests {
		got, err := e.Code(rfcSecret, time.Unix(tt.unix, 0))
		if err != nil {
			t.Fatalf("Code: %v", err)
		}
		if got != tt.want {
			t.Errorf("Code at %d = %s, want %s", tt.unix, got, tt.want)
		}
	}
}

func TestVerify_DriftWindow(t *testing.T) {
	e := NewTOTP("MyMessenger")
	issued := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	code, err := e.Code(rfcSecret, issued)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	tests := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"t-61s", -61 * time.Second, false},
		{"t-30s", -30 * time.Second, true},
		{"t", 0, true},
		{"t+30s", 30 * time.Second, true},
		{"t+61s", 61 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Verify(rfcSecret, code, issued.Add(tt.offset)); got != tt.want {
				t.Errorf("Verify at %s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestVerify_Malformed(t *testing.T) {
	e := NewTOTP("MyMessenger")
	now := time.Unix(59, 0)
	tests := []struct {
		name, secret, code string
	}{
		{"short code", rfcSecret, "28708"},
		{"long code", rfcSecret, "2870820"},
		{"letters", rfcSecret, "28708a"},
		{"empty code", rfcSecret, ""},
		{"empty secret", "", "287082"},
		{"bad secret", "not base32!", "287082"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if e.Verify(tt.secret, tt.code, now) {
				t.Error("Verify should be false")
			}
		})
	}
	if !e.Verify(strings.ToLower(rfcSecret), "287082", now) {
		t.Error("lower-case secret should still verify")
	}
}

func TestProvisioningURI(t *testing.T) {
	e := NewTOTP("MyMessenger")
	uri, err := e.ProvisioningURI("JBSWY3DPEHPK3PXP", "test@example.com")
	if err != nil {
		t.Fatalf("ProvisioningURI: %v", err)
	}
	u, err := url.Parse(uri)
	if err != nil {
		t.Fatalf("parse %q: %v", uri, err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Errorf("uri = %q, want otpauth://totp/...", uri)
	}
	if !strings.Contains(u.Path, "MyMessenger:test@example.com") {
		t.Errorf("label path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("secret") != "JBSWY3DPEHPK3PXP" {
		t.Errorf("secret param = %q", q.Get("secret"))
	}
	if q.Get("issuer") != "MyMessenger" {
		t.Errorf("issuer param = %q", q.Get("issuer"))
	}
	if _, err := e.ProvisioningURI("!!", "test@example.com"); err != ErrInvalidSecret {
		t.Errorf("bad secret err = %v, want ErrInvalidSecret", err)
	}
}

func TestEnrollmentQR(t *testing.T) {
	e := NewTOTP("MyMessenger")
	qr, err := e.EnrollmentQR("otpauth://totp/MyMessenger:test@example.com?secret=JBSWY3DPEHPK3PXP&issuer=MyMessenger")
	if err != nil {
		t.Fatalf("EnrollmentQR: %v", err)
	}
	png, err := base64.StdEncoding.DecodeString(qr)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	if len(png) < 8 || string(png[1:4]) != "PNG" {
		t.Error("QR payload is not a PNG")
	}
}

func TestIsWellFormedCode(t *testing.T) {
	for code, want := range map[string]bool{"123456": true, "000000": true, "12345": false, "12345a": false, "١٢٣٤٥٦": false} {
		if got := IsWellFormedCode(code); got != want {
			t.Errorf("IsWellFormedCode(%q) = %v, want %v", code, got, want)
		}
	}
}
