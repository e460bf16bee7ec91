// seed inserts development identities for local testing.
// Idempotent: identities whose email already exists are skipped.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mymessenger/backend/internal/config"
	"mymessenger/backend/internal/db"
	"mymessenger/backend/internal/identity/domain"
	identityrepo "mymessenger/backend/internal/identity/repository"
	"mymessenger/backend/internal/logging"
	"mymessenger/backend/internal/security"
)

const devPassword = "password123"

var devIdentities = []struct {
	email  string
	name   string
	active bool
}{
	{"alice@example.com", "Alice", true},
	{"inactive@example.com", "Inactive User", false},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("", "", true).Fatal("config", zap.Error(err))
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat, cfg.IsDevelopment()).Named("seed")
	defer func() { _ = logger.Sync() }()
	if cfg.Env == config.EnvProduction {
		logger.Fatal("refusing to seed a production database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer conn.Close()

	repo := identityrepo.NewPostgresRepository(conn)
	hasher := security.NewPasswordHasher()
	credential, err := hasher.Hash(devPassword)
	if err != nil {
		logger.Fatal("hash password", zap.Error(err))
	}

	now := time.Now().UTC()
	for _, d := range devIdentities {
		err := repo.Create(ctx, &domain.Identity{
			ID:           uuid.NewString(),
			Email:        d.email,
			PasswordHash: credential,
			Name:         d.name,
			Active:       d.active,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		switch {
		case errors.Is(err, identityrepo.ErrEmailTaken):
			logger.Info("already seeded", zap.String("email", d.email))
		case err != nil:
			logger.Fatal("create identity", zap.String("email", d.email), zap.Error(err))
		default:
			logger.Info("seeded identity", zap.String("email", d.email), zap.Bool("active", d.active))
		}
	}
	logger.Info("seed complete", zap.String("password", devPassword))
}
