package repository

import (
	"context"
	"sync"
	"time"

	"mymessenger/backend/internal/identity/domain"
)

// MemoryRepository keeps identities in process memory with the same conditional
// update semantics as the Postgres repository. Used by tests and local tooling.
type MemoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.Identity
	byEmail map[string]string
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*domain.Identity),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneIdentity(r.byID[id]), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneIdentity(r.byID[r.byEmail[email]]), nil
}

func (r *MemoryRepository) Create(ctx context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[i.Email]; ok {
		return ErrEmailTaken
	}
	r.byID[i.ID] = cloneIdentity(i)
	r.byEmail[i.Email] = i.ID
	return nil
}

func (r *MemoryRepository) SetTOTPSecret(ctx context.Context, id, secret string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.byID[id]
	if i == nil || i.TOTPEnabled {
		return false, nil
	}
	i.TOTPSecret = &secret
	i.TOTPVerifiedAt = nil
	i.UpdatedAt = at
	return true, nil
}

func (r *MemoryRepository) EnableTOTP(ctx context.Context, id, secret string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.byID[id]
	if i == nil || i.TOTPEnabled || i.TOTPSecret == nil || *i.TOTPSecret != secret {
		return false, nil
	}
	i.TOTPEnabled = true
	i.TOTPVerifiedAt = &at
	i.UpdatedAt = at
	return true, nil
}

func (r *MemoryRepository) DisableTOTP(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.byID[id]
	if i == nil || !i.TOTPEnabled {
		return false, nil
	}
	i.TOTPEnabled = false
	i.TOTPSecret = nil
	i.TOTPVerifiedAt = nil
	i.UpdatedAt = at
	return true, nil
}

func cloneIdentity(i *domain.Identity) *domain.Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.TOTPSecret != nil {
		s := *i.TOTPSecret
		c.TOTPSecret = &s
	}
	if i.TOTPVerifiedAt != nil {
		t := *i.TOTPVerifiedAt
		c.TOTPVerifiedAt = &t
	}
	return &c
}
