package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend kinds accepted by Open.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Backend is an opened session repository with its readiness probe and cleanup.
type Backend struct {
	Repository Repository
	// Ping is nil for Postgres, whose reachability is covered by the database check.
	Ping  func(ctx context.Context) error
	Close func() error
}

// Open returns the session repository for kind: Postgres over db, or Redis at redisURL
// (redis://host:6379/0). The Redis connection is verified before returning.
func Open(ctx context.Context, kind string, db *sql.DB, redisURL string) (*Backend, error) {
	switch kind {
	case "", BackendPostgres:
		if db == nil {
			return nil, errors.New("session store: postgres backend needs a database")
		}
		return &Backend{
			Repository: NewPostgresRepository(db),
			Close:      func() error { return nil },
		}, nil
	case BackendRedis:
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("session store: redis ping: %w", err)
		}
		return &Backend{
			Repository: NewRedisRepository(client, ""),
			Ping:       func(ctx context.Context) error { return client.Ping(ctx).Err() },
			Close:      client.Close,
		}, nil
	default:
		return nil, fmt.Errorf("session store: unknown backend %q", kind)
	}
}
