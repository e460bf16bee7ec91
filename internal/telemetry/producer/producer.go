// Package producer publishes security events to the event stream.
package producer

import (
	"context"

	"mymessenger/backend/internal/telemetry/domain"
)

// Producer is an event sink that owns a connection. It satisfies telemetry.EventEmitter.
type Producer interface {
	Emit(ctx context.Context, event *domain.SecurityEvent) error
	Close() error
}

var _ Producer = (*KafkaProducer)(nil)
