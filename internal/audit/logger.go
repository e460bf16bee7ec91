package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mymessenger/backend/internal/audit/domain"
	auditrepo "mymessenger/backend/internal/audit/repository"
	"mymessenger/backend/internal/telemetry"
	telemetrydomain "mymessenger/backend/internal/telemetry/domain"
)

// EventSource is the Source stamped on every security event produced by this package.
const EventSource = "identity"

// Event describes one auditable action. Action is one of the telemetry event types
// (login_success, refresh, 2fa_enabled, ...).
type Event struct {
	IdentityID string
	SessionID  string
	Action     string
	IP         string
	DeviceInfo string
	Metadata   map[string]string
}

// AuditLogger records a single audit event. Used by the auth and 2FA code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Event)
}

// Logger implements AuditLogger by persisting to the audit repository and
// streaming the same fact as a security event.
type Logger struct {
	repo    auditrepo.Repository
	emitter telemetry.EventEmitter
	now     func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and emits to emitter.
// Either may be nil.
func NewLogger(repo auditrepo.Repository, emitter telemetry.EventEmitter) *Logger {
	return &Logger{repo: repo, emitter: emitter, now: time.Now}
}

// LogEvent writes one audit log entry and emits the matching security event asynchronously.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	if l == nil {
		return
	}
	id := uuid.New().String()
	at := l.now().UTC()
	if l.repo != nil {
		entry := &domain.AuditLog{
			ID:         id,
			IdentityID: e.IdentityID,
			SessionID:  e.SessionID,
			Action:     e.Action,
			IP:         e.IP,
			DeviceInfo: e.DeviceInfo,
			Metadata:   e.Metadata,
			CreatedAt:  at,
		}
		if err := l.repo.Create(ctx, entry); err != nil {
			zap.L().Warn("audit: failed to log event",
				zap.String("action", e.Action),
				zap.String("identity_id", e.IdentityID),
				zap.Error(err),
			)
		}
	}
	telemetry.EmitAsync(l.emitter, ctx, &telemetrydomain.SecurityEvent{
		ID:         id,
		IdentityID: e.IdentityID,
		SessionID:  e.SessionID,
		EventType:  e.Action,
		Source:     EventSource,
		IPAddress:  e.IP,
		DeviceInfo: e.DeviceInfo,
		Metadata:   e.Metadata,
		CreatedAt:  at,
	})
}

const (
	defaultRecentLimit int32 = 50
	maxRecentLimit     int32 = 100
)

// Recent returns up to limit audit entries of identityID, newest first. A
// non-positive limit means 50; larger limits are capped at 100.
func (l *Logger) Recent(ctx context.Context, identityID string, limit int32) ([]*domain.AuditLog, error) {
	if l == nil || l.repo == nil {
		return nil, nil
	}
	switch {
	case limit <= 0:
		limit = defaultRecentLimit
	case limit > maxRecentLimit:
		limit = maxRecentLimit
	}
	return l.repo.ListByIdentity(ctx, identityID, limit)
}
