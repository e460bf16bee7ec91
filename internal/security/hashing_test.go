package security

import (
	"strings"
	"testing"
)

// cheap parameters keep the tests fast; the encoding is the same.
func testHasher() *PasswordHasher {
	return &PasswordHasher{Time: 1, Memory: 1024, Threads: 1}
}

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	h := testHasher()
	hash, err := h.Hash("Passw0rd!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected credential format %q", hash)
	}
	if !h.Verify("Passw0rd!", hash) {
		t.Fatal("Verify should accept the original password")
	}
	if h.Verify("passw0rd!", hash) {
		t.Fatal("Verify should reject a different password")
	}
}

func TestPasswordHasher_SaltedTwice(t *testing.T) {
	h := testHasher()
	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Fatal("two hashes of the same password should differ")
	}
	if !h.Verify("same-password", a) || !h.Verify("same-password", b) {
		t.Fatal("both hashes should verify")
	}
}

func TestPasswordHasher_ParametersReadFromCredential(t *testing.T) {
	hash, _ := testHasher().Hash("secret123")
	// a hasher with other defaults still verifies using the embedded parameters
	if !NewPasswordHasher().Verify("secret123", hash) {
		t.Fatal("Verify should use the parameters stored in the credential")
	}
}

func TestPasswordHasher_MalformedCredential(t *testing.T) {
	h := testHasher()
	good, _ := h.Hash("secret123")
	parts := strings.Split(good, "$")
	tests := []struct {
		name       string
		credential string
	}{
		{"empty", ""},
		{"bcrypt", "$2a$10$abcdefghijklmnopqrstuuN7x6hQJ1pQHc7y0F1c0rS0O2H2eWm4i"},
		{"wrong version", strings.Replace(good, "v=19", "v=16", 1)},
		{"bad params", "$argon2id$v=19$m=x,t=1,p=1$" + parts[4] + "$" + parts[5]},
		{"zero threads", "$argon2id$v=19$m=1024,t=1,p=0$" + parts[4] + "$" + parts[5]},
		{"huge memory", "$argon2id$v=19$m=99999999,t=1,p=1$" + parts[4] + "$" + parts[5]},
		{"bad salt", "$argon2id$v=19$m=1024,t=1,p=1$!!!$" + parts[5]},
		{"missing key", "$argon2id$v=19$m=1024,t=1,p=1$" + parts[4] + "$"},
		{"truncated", "$argon2id$v=19"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if h.Verify("secret123", tt.credential) {
				t.Errorf("Verify(%q) = true, want false", tt.credential)
			}
		})
	}
}
