package telemetry

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"praxis-pilot/backend/internal/telemetry/domain"
)

// emitTimeout bounds one background emit.
const emitTimeout = 5 * time.Second

// MaxInFlight caps concurrent background emits. Events beyond it are dropped and counted.
const MaxInFlight = 256

// ShutdownDrainDuration is the longest Drain waits for in-flight emits at shutdown.
const ShutdownDrainDuration = emitTimeout

var (
	inflight = make(chan struct{}, MaxInFlight)
	pending  sync.WaitGroup
	dropped  atomic.Int64
)

// EmitAsync emits event in the background with its own timeout so request cancellation
// does not abort it. Errors are logged. Nil emitter or event is a no-op. When MaxInFlight
// emits are already running the event is dropped rather than blocking the caller.
func EmitAsync(emitter EventEmitter, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	select {
	case inflight <- struct{}{}:
	default:
		if n := dropped.Add(1); n == 1 || n%1000 == 0 {
			log.Printf("telemetry: emit queue full, dropped %d events so far", n)
		}
		return
	}
	pending.Add(1)
	go func() {
		defer func() {
			<-inflight
			pending.Done()
		}()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit failed (%s): %v", event.EventType, err)
		}
	}()
}

// Dropped reports how many events EmitAsync discarded because the queue was full.
func Dropped() int64 { return dropped.Load() }

// Drain waits for in-flight emits to finish or ctx to end. Returns ctx.Err() on timeout.
func Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
