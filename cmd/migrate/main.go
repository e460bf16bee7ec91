// migrate applies the embedded schema: go run ./cmd/migrate -direction up|down [-steps N].
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"mymessenger/backend/internal/config"
	"mymessenger/backend/internal/db/migrate"
	"mymessenger/backend/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "up or down")
	steps := flag.Int("steps", 0, "migrations to roll back with -direction down (0 = all)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat, cfg.IsDevelopment())
	defer func() { _ = logger.Sync() }()

	before, _, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("read schema version", zap.Error(err))
	}
	if err := migrate.Run(cfg.DatabaseURL, *direction, *steps); err != nil {
		logger.Fatal("migrate", zap.String("direction", *direction), zap.Error(err))
	}
	after, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("read schema version", zap.Error(err))
	}
	logger.Info("migrations applied",
		zap.String("direction", *direction),
		zap.Uint("from", before),
		zap.Uint("to", after),
		zap.Bool("dirty", dirty),
	)
}
