// Worker consumes security events from Kafka and pushes them to Loki, and
// periodically purges expired sessions.
// Set KAFKA_BROKERS, SECURITY_EVENTS_TOPIC, KAFKA_CONSUMER_GROUP and LOKI_URL to enable the
// event pipeline; without brokers only the purge loop runs.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"mymessenger/backend/internal/config"
	"mymessenger/backend/internal/db"
	"mymessenger/backend/internal/logging"
	"mymessenger/backend/internal/session"
	sessionrepo "mymessenger/backend/internal/session/repository"
	"mymessenger/backend/internal/telemetry/loki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("", "", true).Fatal("config", zap.Error(err))
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat, cfg.IsDevelopment()).Named("worker")
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	brokers := cfg.KafkaBrokersList()
	if len(brokers) > 0 && cfg.LokiURL == "" {
		logger.Fatal("LOKI_URL is required when KAFKA_BROKERS is set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer conn.Close()
	backend, err := sessionrepo.Open(ctx, cfg.SessionStore, conn, cfg.RedisURL)
	if err != nil {
		logger.Fatal("session store", zap.Error(err))
	}
	defer func() { _ = backend.Close() }()
	store := session.NewStore(backend.Repository, nil, cfg.RefreshTTL())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		purgeLoop(ctx, logger, store, cfg.PurgeInterval())
	}()

	if len(brokers) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consume(ctx, logger, cfg, brokers)
		}()
	} else {
		logger.Info("KAFKA_BROKERS not set; security event pipeline disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	wg.Wait()
	logger.Info("stopped")
}

// purgeLoop deletes expired sessions every interval until ctx is done.
func purgeLoop(ctx context.Context, logger *zap.Logger, store *session.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := store.PurgeExpired(ctx, time.Now())
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("session purge failed", zap.Error(err))
		case n > 0:
			logger.Info("purged expired sessions", zap.Int64("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// consume reads security events and pushes each one to Loki. Push failures are logged
// and the message is committed anyway.
func consume(ctx context.Context, logger *zap.Logger, cfg *config.Config, brokers []string) {
	lokiClient, err := loki.NewClient(cfg.LokiURL, nil)
	if err != nil {
		logger.Error("loki client", zap.Error(err))
		return
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.SecurityEventsTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	logger.Info("consuming security events",
		zap.String("topic", cfg.SecurityEventsTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.String("loki", cfg.LokiURL),
	)
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka read error", zap.Error(err))
			continue
		}

		pushCtx, pushCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := lokiClient.PushEventJSON(pushCtx, msg.Value); err != nil {
			logger.Warn("loki push failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		pushCancel()
	}
}
