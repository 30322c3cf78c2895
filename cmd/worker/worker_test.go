package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"praxis-pilot/backend/internal/telemetry/loki"
)

// fakeReader serves queued messages, then blocks until the fetch context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

type fakePusher struct {
	mu      sync.Mutex
	failN   int
	calls   int
	entries []loki.Entry
}

func (f *fakePusher) Push(_ context.Context, entries ...loki.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return errors.New("loki unavailable")
	}
	f.entries = append(f.entries, entries...)
	return nil
}

func messages(n int) []kafka.Message {
	out := make([]kafka.Message, n)
	for i := range out {
		out[i] = kafka.Message{Offset: int64(i), Value: []byte(`{"event_type":"http_request","tenant_id":"t1"}`)}
	}
	return out
}

func runFor(t *testing.T, w *worker, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := w.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestWorker_FlushesFullBatches(t *testing.T) {
	r := &fakeReader{queue: messages(5)}
	p := &fakePusher{}
	w := newWorker(r, p)
	w.batchSize = 2
	w.flushEvery = time.Hour

	runFor(t, w, 100*time.Millisecond)

	if len(p.entries) != 5 {
		t.Errorf("pushed %d entries, want 5", len(p.entries))
	}
	if r.commits() != 5 {
		t.Errorf("committed %d, want 5", r.commits())
	}
	if p.entries[0].Labels["event_type"] != "http_request" {
		t.Errorf("labels = %v", p.entries[0].Labels)
	}
}

func TestWorker_FlushesOnInterval(t *testing.T) {
	r := &fakeReader{queue: messages(1)}
	p := &fakePusher{}
	w := newWorker(r, p)
	w.flushEvery = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.commits() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.commits() != 1 {
		t.Errorf("committed %d, want 1 before shutdown", r.commits())
	}
}

func TestWorker_RetriesThenCommits(t *testing.T) {
	r := &fakeReader{queue: messages(1)}
	p := &fakePusher{failN: 2}
	w := newWorker(r, p)
	w.backoff = time.Millisecond
	w.batchSize = 1

	runFor(t, w, 100*time.Millisecond)

	if p.calls != 3 || len(p.entries) != 1 {
		t.Errorf("calls=%d entries=%d, want 3 calls and 1 entry", p.calls, len(p.entries))
	}
	if r.commits() != 1 {
		t.Errorf("committed %d, want 1", r.commits())
	}
}

func TestWorker_DropsAfterExhaustedRetries(t *testing.T) {
	r := &fakeReader{queue: messages(1)}
	p := &fakePusher{failN: pushAttempts}
	w := newWorker(r, p)
	w.backoff = time.Millisecond
	w.batchSize = 1

	runFor(t, w, 100*time.Millisecond)

	if p.calls != pushAttempts || len(p.entries) != 0 {
		t.Errorf("calls=%d entries=%d", p.calls, len(p.entries))
	}
	if r.commits() != 1 {
		t.Errorf("failed batch should still be committed, got %d", r.commits())
	}
}
