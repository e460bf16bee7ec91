package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"mymessenger/backend/internal/session/domain"
)

// MemoryRepository keeps sessions in process memory. Intended for development
// and tests; state is lost on restart and not shared between instances.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	byHash   map[string]string
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*domain.Session),
		byHash:   make(map[string]string),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	r.sessions[c.ID] = &c
	r.byHash[c.RefreshTokenHash] = c.ID
	return nil
}

func (r *MemoryRepository) GetLiveByHash(ctx context.Context, hash string, now time.Time) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[r.byHash[hash]]
	if s == nil || !s.IsLive(now) {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (r *MemoryRepository) Rotate(ctx context.Context, rot domain.Rotation) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[r.byHash[rot.OldHash]]
	if s == nil || !s.IsLive(rot.Now) {
		return nil, nil
	}
	delete(r.byHash, rot.OldHash)
	s.RefreshTokenHash = rot.NewHash
	s.ExpiresAt = rot.ExpiresAt
	s.LastUsedAt = rot.Now
	if rot.DeviceInfo != "" {
		s.DeviceInfo = rot.DeviceInfo
	}
	if rot.IPAddress != "" {
		s.IPAddress = rot.IPAddress
	}
	r.byHash[rot.NewHash] = s.ID
	c := *s
	return &c, nil
}

func (r *MemoryRepository) DeleteByHash(ctx context.Context, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[hash]
	if !ok {
		return false, nil
	}
	r.removeLocked(id)
	return true, nil
}

func (r *MemoryRepository) DeleteByID(ctx context.Context, identityID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	if s == nil || s.IdentityID != identityID {
		return false, nil
	}
	r.removeLocked(id)
	return true, nil
}

func (r *MemoryRepository) DeleteAllByIdentity(ctx context.Context, identityID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.IdentityID == identityID {
			r.removeLocked(id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListLiveByIdentity(ctx context.Context, identityID string, now time.Time) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.IdentityID == identityID && s.IsLive(now) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

func (r *MemoryRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if !s.IsLive(now) {
			r.removeLocked(id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) removeLocked(id string) {
	if s := r.sessions[id]; s != nil {
		delete(r.byHash, s.RefreshTokenHash)
	}
	delete(r.sessions, id)
}
