//go:build integration

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/session/repository/
package repository

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"mymessenger/backend/internal/db"
	"mymessenger/backend/internal/db/migrate"
	"mymessenger/backend/internal/session/domain"
)

func setupTestPostgres(t *testing.T) (*PostgresRepository, string) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := migrate.Run(dsn, "up", 0); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, dsn, db.PoolOptions{MaxOpenConns: 16})
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	identityID := uuid.NewString()
	if _, err := conn.ExecContext(ctx,
		`INSERT INTO identities (id, email, password_hash, name) VALUES ($1, $2, 'x', 'Integration')`,
		identityID, identityID+"@example.com",
	); err != nil {
		t.Fatalf("insert identity: %v", err)
	}
	t.Cleanup(func() { deleteIdentity(conn, identityID) })
	return NewPostgresRepository(conn), identityID
}

func deleteIdentity(conn *sql.DB, id string) {
	_, _ = conn.ExecContext(context.Background(), `DELETE FROM identities WHERE id = $1`, id)
}

func TestPostgresRepository_RotateConcurrentOneWinner(t *testing.T) {
	repo, identityID := setupTestPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	oldHash := uuid.NewString()
	s := testSession(uuid.NewString(), identityID, oldHash, now)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := repo.Rotate(ctx, domain.Rotation{
				OldHash:   oldHash,
				NewHash:   uuid.NewString(),
				Now:       now.Add(time.Second),
				ExpiresAt: now.Add(time.Hour),
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
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("successful rotations = %d, want 1", wins)
	}
	if got, _ := repo.GetLiveByHash(ctx, oldHash, now); got != nil {
		t.Error("old hash should no longer resolve")
	}
}

func TestPostgresRepository_RotateKeepsDeviceAndRejectsExpired(t *testing.T) {
	repo, identityID := setupTestPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	s := testSession(uuid.NewString(), identityID, uuid.NewString(), now)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	later := now.Add(time.Minute)
	newHash := uuid.NewString()
	got, err := repo.Rotate(ctx, domain.Rotation{
		OldHash: s.RefreshTokenHash, NewHash: newHash, IPAddress: "10.0.0.2",
		Now: later, ExpiresAt: later.Add(7 * 24 * time.Hour),
	})
	if err != nil || got == nil {
		t.Fatalf("Rotate = (%+v, %v)", got, err)
	}
	if got.DeviceInfo != "Firefox" || got.IPAddress != "10.0.0.2" {
		t.Errorf("device/ip = %q/%q", got.DeviceInfo, got.IPAddress)
	}
	if !got.LastUsedAt.Equal(later) {
		t.Errorf("LastUsedAt = %v, want %v", got.LastUsedAt, later)
	}

	expired, err := repo.Rotate(ctx, domain.Rotation{
		OldHash: newHash, NewHash: uuid.NewString(),
		Now: got.ExpiresAt, ExpiresAt: got.ExpiresAt.Add(time.Hour),
	})
	if err != nil || expired != nil {
		t.Errorf("Rotate at expiry = (%+v, %v), want (nil, nil)", expired, err)
	}
}

func TestPostgresRepository_DeleteByIDMalformed(t *testing.T) {
	repo, identityID := setupTestPostgres(t)
	if _, err := repo.DeleteByID(context.Background(), identityID, "abc"); err == nil {
		t.Error("uuid column should reject malformed id text")
	}
}
