package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mymessenger/backend/internal/session/domain"
)

func setupTestRedis(t *testing.T) (*RedisRepository, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client, "test:"), client
}

func testSession(id, identityID, hash string, now time.Time) *domain.Session {
	return &domain.Session{
		ID:               id,
		IdentityID:       identityID,
		RefreshTokenHash: hash,
		DeviceInfo:       "Firefox",
		IPAddress:        "10.0.0.1",
		ExpiresAt:        now.Add(7 * 24 * time.Hour),
		LastUsedAt:       now,
		CreatedAt:        now,
	}
}

func TestRedisRepository_CreateAndGet(t *testing.T) {
	repo, client := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	s := testSession("s1", "u1", "h1", now)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ttl := client.TTL(ctx, "test:session:s1").Val(); ttl <= 0 {
		t.Error("expected TTL on session key")
	}
	got, err := repo.GetLiveByHash(ctx, "h1", now)
	if err != nil {
		t.Fatalf("GetLiveByHash: %v", err)
	}
	if got == nil || got.ID != "s1" || got.IdentityID != "u1" || got.DeviceInfo != "Firefox" {
		t.Fatalf("GetLiveByHash = %+v", got)
	}
	if !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, s.ExpiresAt)
	}
	if got, _ := repo.GetLiveByHash(ctx, "missing", now); got != nil {
		t.Error("unknown hash should return nil")
	}
	if got, _ := repo.GetLiveByHash(ctx, "h1", s.ExpiresAt); got != nil {
		t.Error("session at its expiry should not be live")
	}
}

func TestRedisRepository_Rotate(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	_ = repo.Create(ctx, testSession("s1", "u1", "h1", now))

	later := now.Add(time.Minute)
	rot := domain.Rotation{OldHash: "h1", NewHash: "h2", IPAddress: "10.0.0.2", Now: later, ExpiresAt: later.Add(7 * 24 * time.Hour)}
	got, err := repo.Rotate(ctx, rot)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if got == nil || got.RefreshTokenHash != "h2" {
		t.Fatalf("Rotate = %+v", got)
	}
	if got.DeviceInfo != "Firefox" {
		t.Errorf("empty device should keep stored value, got %q", got.DeviceInfo)
	}
	if got.IPAddress != "10.0.0.2" {
		t.Errorf("IPAddress = %q, want 10.0.0.2", got.IPAddress)
	}
	if !got.LastUsedAt.Equal(later) || !got.ExpiresAt.Equal(rot.ExpiresAt) {
		t.Errorf("timestamps not updated: %+v", got)
	}
	if s, _ := repo.GetLiveByHash(ctx, "h1", later); s != nil {
		t.Error("old hash should no longer resolve")
	}
	again, err := repo.Rotate(ctx, rot)
	if err != nil || again != nil {
		t.Errorf("second rotation with old hash = (%+v, %v), want (nil, nil)", again, err)
	}
}

func TestRedisRepository_RotateConcurrent(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	_ = repo.Create(ctx, testSession("s1", "u1", "h1", now))

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := repo.Rotate(ctx, domain.Rotation{
				OldHash: "h1", NewHash: "new-" + string(rune('a'+i)),
				Now: now, ExpiresAt: now.Add(time.Hour),
			})
			if err != nil {
				t.Errorf("Rotate: %v", err)
				return
			}
			if got != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("successful rotations = %d, want 1", wins)
	}
}

func TestRedisRepository_RotateExpired(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	s := testSession("s1", "u1", "h1", now)
	_ = repo.Create(ctx, s)

	got, err := repo.Rotate(ctx, domain.Rotation{OldHash: "h1", NewHash: "h2", Now: s.ExpiresAt, ExpiresAt: s.ExpiresAt.Add(time.Hour)})
	if err != nil || got != nil {
		t.Errorf("Rotate on expired session = (%+v, %v), want (nil, nil)", got, err)
	}
}

func TestRedisRepository_Deletes(t *testing.T) {
	repo, client := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	_ = repo.Create(ctx, testSession("s1", "u1", "h1", now))
	_ = repo.Create(ctx, testSession("s2", "u1", "h2", now.Add(time.Second)))
	_ = repo.Create(ctx, testSession("s3", "u1", "h3", now.Add(2*time.Second)))
	_ = repo.Create(ctx, testSession("s4", "u2", "h4", now))

	ok, err := repo.DeleteByHash(ctx, "h1")
	if err != nil || !ok {
		t.Fatalf("DeleteByHash = (%v, %v)", ok, err)
	}
	if ok, _ := repo.DeleteByHash(ctx, "h1"); ok {
		t.Error("second DeleteByHash should report nothing removed")
	}
	if client.Exists(ctx, "test:session:s1", "test:session:hash:h1").Val() != 0 {
		t.Error("session keys should be gone")
	}

	if ok, _ := repo.DeleteByID(ctx, "u2", "s2"); ok {
		t.Error("DeleteByID must not remove another identity's session")
	}
	if ok, _ := repo.DeleteByID(ctx, "u1", "s2"); !ok {
		t.Error("DeleteByID should remove own session")
	}

	list, err := repo.ListLiveByIdentity(ctx, "u1", now)
	if err != nil {
		t.Fatalf("ListLiveByIdentity: %v", err)
	}
	if len(list) != 1 || list[0].ID != "s3" {
		t.Fatalf("ListLiveByIdentity = %+v", list)
	}

	n, err := repo.DeleteAllByIdentity(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("DeleteAllByIdentity = (%d, %v), want (1, nil)", n, err)
	}
	if s, _ := repo.GetLiveByHash(ctx, "h4", now); s == nil {
		t.Error("other identity's session should survive DeleteAllByIdentity")
	}
}

func TestRedisRepository_ListOrderAndPurge(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	old := testSession("old", "u1", "h-old", now)
	old.ExpiresAt = now.Add(time.Minute)
	_ = repo.Create(ctx, old)
	_ = repo.Create(ctx, testSession("a", "u1", "h-a", now.Add(time.Second)))
	_ = repo.Create(ctx, testSession("b", "u1", "h-b", now.Add(2*time.Second)))

	later := now.Add(2 * time.Minute)
	list, _ := repo.ListLiveByIdentity(ctx, "u1", later)
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
		t.Fatalf("list order = %v", ids(list))
	}

	n, err := repo.PurgeExpired(ctx, later)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpired = (%d, %v), want (1, nil)", n, err)
	}
	if ok, _ := repo.DeleteByID(ctx, "u1", "old"); ok {
		t.Error("purged session should be gone")
	}
}

func ids(list []*domain.Session) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}
