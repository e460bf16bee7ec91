package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"mymessenger/backend/internal/telemetry"
	"mymessenger/backend/internal/telemetry/domain"
)

const instrumentationName = "mymessenger/identity"

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(instrumentationName))
}

// NewEventEmitterWithLogger returns an EventEmitter writing to logger.
func NewEventEmitterWithLogger(logger otellog.Logger) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.SecurityEvent) error { return nil }

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the security event to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.SecurityEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetSeverity(severityFor(event.EventType))
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	if len(event.Metadata) > 0 {
		if b, err := json.Marshal(event.Metadata); err == nil {
			rec.SetBody(otellog.BytesValue(b))
		}
	}
	addString(&rec, "event_id", event.ID)
	addString(&rec, "identity_id", event.IdentityID)
	addString(&rec, "session_id", event.SessionID)
	addString(&rec, "event_type", event.EventType)
	addString(&rec, "source", event.Source)
	addString(&rec, "client.address", event.IPAddress)
	addString(&rec, "user_agent.original", event.DeviceInfo)
	e.logger.Emit(ctx, rec)
	return nil
}

func addString(rec *otellog.Record, key, value string) {
	if value != "" {
		rec.AddAttributes(otellog.String(key, value))
	}
}

func severityFor(eventType string) otellog.Severity {
	switch eventType {
	case domain.EventLoginFailure, domain.EventRefreshFailure:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityInfo
	}
}
