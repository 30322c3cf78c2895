package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"praxis-pilot/backend/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.Event
	emitErr error
	delay   time.Duration
	ctxErrs []error
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.ctxErrs = append(m.ctxErrs, ctx.Err())
			m.mu.Unlock()
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEmitAsync_NilEmitterAndEvent(t *testing.T) {
	EmitAsync(nil, &domain.Event{EventType: "test"})

	emitter := &mockEventEmitter{}
	EmitAsync(emitter, nil)
	time.Sleep(10 * time.Millisecond)
	if n := len(emitter.getEvents()); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{}
	EmitAsync(emitter, &domain.Event{TenantID: "t1", UserID: "u1", EventType: domain.EventHTTPRequest})

	waitFor(t, func() bool { return len(emitter.getEvents()) == 1 })
	ev := emitter.getEvents()[0]
	if ev.TenantID != "t1" || ev.UserID != "u1" || ev.EventType != domain.EventHTTPRequest {
		t.Errorf("event = %+v", ev)
	}
	if ev.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: errors.New("kafka down")}
	EmitAsync(emitter, &domain.Event{EventType: "x"})
	waitFor(t, func() bool { return len(emitter.getEvents()) == 1 })
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := &mockEventEmitter{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, &domain.Event{EventType: "x"})
		}()
	}
	wg.Wait()
	waitFor(t, func() bool { return len(emitter.getEvents()) == 20 })
}

func TestEmitAsync_DropsWhenSaturated(t *testing.T) {
	settle, cancelSettle := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelSettle()
	if err := Drain(settle); err != nil {
		t.Fatalf("settle: %v", err)
	}
	release := make(chan struct{})
	blocking := &blockingEmitter{release: release}
	for i := 0; i < MaxInFlight; i++ {
		EmitAsync(blocking, &domain.Event{EventType: "x"})
	}
	before := Dropped()
	EmitAsync(blocking, &domain.Event{EventType: "overflow"})
	if got := Dropped(); got != before+1 {
		t.Errorf("Dropped = %d, want %d", got, before+1)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n := blocking.count.Load(); n != MaxInFlight {
		t.Errorf("emitted %d, want %d", n, MaxInFlight)
	}
}

func TestDrain_TimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	EmitAsync(&blockingEmitter{release: release}, &domain.Event{EventType: "x"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain err = %v, want deadline exceeded", err)
	}
}

type blockingEmitter struct {
	release chan struct{}
	count   atomic.Int64
}

func (b *blockingEmitter) Emit(ctx context.Context, _ *domain.Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.count.Add(1)
	return nil
}

func TestFanout(t *testing.T) {
	a := &mockEventEmitter{}
	b := &mockEventEmitter{emitErr: errors.New("b failed")}
	em := Fanout(a, nil, b)
	err := em.Emit(context.Background(), &domain.Event{EventType: "x"})
	if err == nil || err.Error() != "b failed" {
		t.Errorf("Emit err = %v, want b failed", err)
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Error("every emitter should receive the event")
	}
	if err := Fanout().Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("empty fanout: %v", err)
	}
}
