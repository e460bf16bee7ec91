package devotp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"mymessenger/backend/internal/identity/domain"
	"mymessenger/backend/internal/identity/repository"
	"mymessenger/backend/internal/mfa"
)

const (
	aliceID = "7c1f3a52-0b9e-4d7a-9a61-2f0c8e4b5d11"
	bobID   = "0e6d2b7a-51c4-4f3e-8b2d-9c7a1e5f3a20"
)

func newSource(t *testing.T, at time.Time) (*Source, *repository.MemoryRepository, *mfa.TOTP) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	engine := mfa.NewTOTP("MyMessenger")
	src := NewSource(repo, engine)
	src.nowF = func() time.Time { return at }
	return src, repo, engine
}

func TestSource_CurrentReturnsVerifiableCode(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 10, 0, time.UTC)
	src, repo, engine := newSource(t, at)
	ctx := context.Background()

	secret, err := engine.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	ident := &domain.Identity{ID: aliceID, Email: "a@example.com", PasswordHash: "h", Active: true, TOTPSecret: &secret}
	if err := repo.Create(ctx, ident); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok, err := src.Current(ctx, aliceID)
	if err != nil || !ok {
		t.Fatalf("Current = (%+v, %v, %v)", got, ok, err)
	}
	if !engine.Verify(secret, got.Code, at) {
		t.Errorf("code %q does not verify", got.Code)
	}
	if got.State != domain.TwoFactorPending {
		t.Errorf("State = %q, want pending", got.State)
	}
	if got.ValidFor != 20*time.Second {
		t.Errorf("ValidFor = %v, want 20s", got.ValidFor)
	}
}

func TestSource_CurrentMissing(t *testing.T) {
	src, repo, _ := newSource(t, time.Now())
	ctx := context.Background()
	_ = repo.Create(ctx, &domain.Identity{ID: bobID, Email: "b@example.com", PasswordHash: "h", Active: true})

	for _, id := range []string{bobID, uuid.NewString(), "not-a-uuid"} {
		if _, ok, err := src.Current(ctx, id); ok || err != nil {
			t.Errorf("Current(%q) = (ok=%v, err=%v), want (false, nil)", id, ok, err)
		}
	}
}

// uuidOnlyGetter fails on ids a uuid column would reject.
type uuidOnlyGetter struct{}

func (uuidOnlyGetter) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.New("invalid input syntax for type uuid")
	}
	return nil, nil
}

func TestSource_CurrentMalformedIDIsMissing(t *testing.T) {
	src := NewSource(uuidOnlyGetter{}, mfa.NewTOTP("MyMessenger"))
	if _, ok, err := src.Current(context.Background(), "abc"); ok || err != nil {
		t.Errorf("Current(abc) = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}
