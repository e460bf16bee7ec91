package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// checkTimeout bounds a single readiness probe.
const checkTimeout = 2 * time.Second

// Pinger is a dependency whose reachability gates readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// PolicyChecker reports whether the policy engine can evaluate (e.g. OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server serves liveness and readiness over HTTP and the standard gRPC health service.
type Server struct {
	checks []namedCheck
	grpc   *health.Server
}

type namedCheck struct {
	name string
	fn   func(ctx context.Context) error
}

// NewServer returns a health server. Nil dependencies are skipped.
func NewServer(db, sessions Pinger, policy PolicyChecker) *Server {
	s := &Server{grpc: health.NewServer()}
	if db != nil {
		s.checks = append(s.checks, namedCheck{"database", db.PingContext})
	}
	if sessions != nil {
		s.checks = append(s.checks, namedCheck{"session_store", sessions.PingContext})
	}
	if policy != nil {
		s.checks = append(s.checks, namedCheck{"policy", policy.HealthCheck})
	}
	return s
}

// Check runs every readiness probe and returns the failures by name.
func (s *Server) Check(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	for _, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		if err := c.fn(cctx); err != nil {
			failed[c.name] = err
		}
		cancel()
	}
	return failed
}

// Healthz reports liveness; it never touches dependencies.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Readyz reports 200 when every dependency answers, otherwise 503 with the failing checks.
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	failed := s.Check(r.Context())
	if len(failed) == 0 {
		writeStatus(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	details := make(map[string]string, len(failed))
	for name, err := range failed {
		details[name] = err.Error()
	}
	writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "checks": details})
}

// RegisterGRPC registers the grpc.health.v1 service on reg.
func (s *Server) RegisterGRPC(reg grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(reg, s.grpc)
}

// Refresh runs the readiness probes once and publishes the result to the gRPC health service.
func (s *Server) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if len(s.Check(ctx)) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.grpc.SetServingStatus("", status)
}

// Watch refreshes the gRPC serving status every interval until ctx is done,
// then marks the server as not serving.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.grpc.Shutdown()
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func writeStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
