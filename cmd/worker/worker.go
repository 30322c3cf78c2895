package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"praxis-pilot/backend/internal/telemetry/loki"
)

const (
	defaultBatchSize  = 100
	defaultFlushEvery = time.Second
	pushAttempts      = 3
	pushTimeout       = 10 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type pusher interface {
	Push(ctx context.Context, entries ...loki.Entry) error
}

// worker batches messages and commits offsets only after Loki accepted the batch, so a
// crash replays at most one batch. A batch that still fails after pushAttempts is logged
// and committed; telemetry is best-effort and must not stall the consumer group.
type worker struct {
	reader     messageReader
	loki       pusher
	batchSize  int
	flushEvery time.Duration
	backoff    time.Duration
}

func newWorker(r messageReader, p pusher) *worker {
	return &worker{reader: r, loki: p, batchSize: defaultBatchSize, flushEvery: defaultFlushEvery, backoff: 500 * time.Millisecond}
}

// run consumes until ctx ends. The pending batch is flushed on shutdown.
func (w *worker) run(ctx context.Context) error {
	var batch []kafka.Message
	deadline := time.Now().Add(w.flushEvery)
	for {
		fetchCtx, cancel := context.WithDeadline(ctx, deadline)
		msg, err := w.reader.FetchMessage(fetchCtx)
		cancel()
		switch {
		case err == nil:
			batch = append(batch, msg)
		case ctx.Err() != nil:
			w.flush(context.Background(), batch)
			return nil
		case errors.Is(err, context.DeadlineExceeded):
		default:
			log.Printf("worker: fetch: %v", err)
			if !sleep(ctx, w.backoff) {
				w.flush(context.Background(), batch)
				return nil
			}
			continue
		}
		if len(batch) >= w.batchSize || !time.Now().Before(deadline) {
			w.flush(ctx, batch)
			batch = batch[:0]
			deadline = time.Now().Add(w.flushEvery)
		}
	}
}

func (w *worker) flush(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}
	entries := make([]loki.Entry, len(batch))
	for i, m := range batch {
		entries[i] = loki.EntryFromEventJSON(m.Value)
	}
	var err error
	for attempt := 1; attempt <= pushAttempts; attempt++ {
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		err = w.loki.Push(pushCtx, entries...)
		cancel()
		if err == nil {
			break
		}
		log.Printf("worker: loki push attempt %d/%d: %v", attempt, pushAttempts, err)
		if attempt < pushAttempts && !sleep(ctx, w.backoff*time.Duration(attempt)) {
			break
		}
	}
	if err != nil {
		log.Printf("worker: dropping %d events after failed pushes", len(batch))
	}
	if err := w.reader.CommitMessages(ctx, batch...); err != nil {
		log.Printf("worker: commit: %v", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
