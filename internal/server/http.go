package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	devotphandler "mymessenger/backend/internal/devotp/handler"
	healthhandler "mymessenger/backend/internal/health/handler"
	identityhandler "mymessenger/backend/internal/identity/handler"
	"mymessenger/backend/internal/server/interceptors"
)

// RouterDeps holds the handlers mounted by NewRouter. Nil handlers are not mounted.
type RouterDeps struct {
	Logger   *zap.Logger
	Identity *identityhandler.Handler
	Health   *healthhandler.Server
	// Dev is the dev-only TOTP lookup. Set only when dev TOTP is enabled and not production.
	Dev *devotphandler.Handler
	// CORSOrigins lists allowed browser origins; empty disables CORS headers.
	CORSOrigins []string
}

// NewRouter builds the HTTP API: request id, panic recovery, request logging and
// client metadata on every route, then health, identity and dev routes.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(interceptors.RequestID)
	r.Use(interceptors.Recoverer(logger))
	r.Use(interceptors.RequestLogger(logger))
	r.Use(interceptors.Client)
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if deps.Health != nil {
		r.Get("/healthz", deps.Health.Healthz)
		r.Get("/readyz", deps.Health.Readyz)
	}
	if deps.Identity != nil {
		deps.Identity.Routes(r)
	}
	if deps.Dev != nil {
		deps.Dev.Routes(r)
	}
	return r
}
