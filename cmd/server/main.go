// Server runs the identity HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mymessenger/backend/internal/audit"
	auditrepo "mymessenger/backend/internal/audit/repository"
	"mymessenger/backend/internal/config"
	"mymessenger/backend/internal/db"
	"mymessenger/backend/internal/devotp"
	devotphandler "mymessenger/backend/internal/devotp/handler"
	healthhandler "mymessenger/backend/internal/health/handler"
	identityhandler "mymessenger/backend/internal/identity/handler"
	identityrepo "mymessenger/backend/internal/identity/repository"
	"mymessenger/backend/internal/identity/service"
	"mymessenger/backend/internal/logging"
	"mymessenger/backend/internal/mfa"
	policyengine "mymessenger/backend/internal/policy/engine"
	"mymessenger/backend/internal/security"
	"mymessenger/backend/internal/server"
	"mymessenger/backend/internal/session"
	sessionrepo "mymessenger/backend/internal/session/repository"
	"mymessenger/backend/internal/telemetry"
	telemetryotel "mymessenger/backend/internal/telemetry/otel"
	"mymessenger/backend/internal/telemetry/producer"
)

const (
	healthInterval  = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Must("", "", true).Fatal("config", zap.Error(err))
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat, cfg.IsDevelopment())
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTelEndpoint, cfg.OTelServiceName, false)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer conn.Close()

	sessions, err := sessionrepo.Open(ctx, cfg.SessionStore, conn, cfg.RedisURL)
	if err != nil {
		logger.Fatal("session store", zap.Error(err))
	}
	defer func() { _ = sessions.Close() }()
	var sessionPinger healthhandler.Pinger
	if sessions.Ping != nil {
		sessionPinger = healthhandler.PingerFunc(sessions.Ping)
	}

	tokens, err := security.NewTokenProvider([]byte(cfg.JWTSecret), cfg.AccessTTL())
	if err != nil {
		logger.Fatal("token provider", zap.Error(err))
	}

	policySrc, err := policyengine.LoadPolicyFile(cfg.LoginPolicyFile)
	if err != nil {
		logger.Fatal("login policy", zap.Error(err))
	}
	policy, err := policyengine.NewOPAEvaluator(ctx, policySrc)
	if err != nil {
		logger.Fatal("login policy", zap.Error(err))
	}

	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SecurityEventsTopic)
	if err != nil {
		logger.Fatal("kafka producer", zap.Error(err))
	}
	defer func() { _ = kafkaProducer.Close() }()
	emitter := telemetry.MultiEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kafkaProducer != nil {
		emitter = append(emitter, kafkaProducer)
		logger.Info("security events streaming to kafka", zap.String("topic", cfg.SecurityEventsTopic))
	}

	identities := identityrepo.NewPostgresRepository(conn)
	totp := mfa.NewTOTP(cfg.TOTPIssuer)
	auditLog := audit.NewLogger(auditrepo.NewPostgresRepository(conn), emitter)

	var pepper []byte
	if cfg.RefreshTokenPepper != "" {
		pepper = []byte(cfg.RefreshTokenPepper)
	}
	svc := service.NewAuthService(
		identities,
		session.NewStore(sessions.Repository, security.NewRefreshHasher(pepper), cfg.RefreshTTL()),
		security.NewPasswordHasher(),
		tokens,
		totp,
		service.Options{
			Policy:      policy,
			RequireTOTP: cfg.LoginRequireTOTP,
			Audit:       auditLog,
			AuditTrail:  auditLog,
			Logger:      logger.Named("identity"),
		},
	)

	health := healthhandler.NewServer(conn, sessionPinger, policy)
	deps := server.RouterDeps{
		Logger:      logger.Named("http"),
		Identity:    identityhandler.NewHandler(svc, logger.Named("identity")),
		Health:      health,
		CORSOrigins: cfg.CORSOriginsList(),
	}
	if cfg.DevTOTPEnabled && cfg.Env != config.EnvProduction {
		logger.Warn("dev TOTP lookup enabled at /dev/totp/{identityID}")
		deps.Dev = devotphandler.NewHandler(devotp.NewSource(identities, totp), logger.Named("devotp"))
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcSrv := server.NewGRPCServer(logger.Named("grpc"), health)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go health.Watch(ctx, healthInterval)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc serve", zap.Error(err))
			stop()
		}
	}()
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	if err := telemetry.Drain(sctx); err != nil {
		logger.Warn("security events still in flight at shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
