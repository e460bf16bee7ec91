package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mymessenger/backend/internal/telemetry/domain"
)

// emitTimeout bounds a single async emit.
const emitTimeout = 5 * time.Second

var inflight sync.WaitGroup

// EmitAsync runs Emit in a goroutine so request handlers are never blocked by a slow
// sink. The goroutine uses its own context with emitTimeout, so request cancellation does
// not abort the emit; errors are logged. Nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *domain.SecurityEvent) {
	if emitter == nil || event == nil {
		return
	}
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			zap.L().Warn("telemetry: async emit failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
		}
	}()
}

// Drain waits for in-flight EmitAsync calls to finish, or for ctx to be done.
// Call after the servers stop and before closing producers.
func Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
