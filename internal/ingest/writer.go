package ingest

import (
	"context"
	"time"

	"github.com/fernvale/espsink/internal/classify"
)

// Engine is the persistence surface the pipeline writes through.
// Implemented by store.Store.
type Engine interface {
	WriteImmediate(ctx context.Context, rec classify.Record) error
	WriteBatch(ctx context.Context, recs []classify.StateRecord) error
}

// RetryPolicy bounds caller-level write retries. The engine already
// absorbs transient connectivity blips internally; this policy governs
// what happens when the engine itself reports failure.
type RetryPolicy struct {
	// Attempts is the total number of write attempts (first try included).
	Attempts int

	// BackoffInitial is the delay before the second attempt.
	BackoffInitial time.Duration

	// BackoffMax caps the exponentially growing delay.
	BackoffMax time.Duration
}

// backoff returns the delay to wait after the given 1-based attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BackoffInitial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// ImmediateWriter drains the immediate queue and persists each
// metadata record on its own. A record that still fails after the
// retry budget is logged as lost and counted; the writer moves on.
type ImmediateWriter struct {
	in       <-chan classify.Record
	engine   Engine
	policy   RetryPolicy
	counters *Counters
	log      Logger
}

// NewImmediateWriter creates a writer draining the immediate queue.
func NewImmediateWriter(in <-chan classify.Record, engine Engine, policy RetryPolicy, counters *Counters, log Logger) *ImmediateWriter {
	return &ImmediateWriter{
		in:       in,
		engine:   engine,
		policy:   policy,
		counters: counters,
		log:      log,
	}
}

// Run writes records until the input channel is closed. It keeps
// writing during shutdown so already-routed records are not abandoned.
func (w *ImmediateWriter) Run(ctx context.Context) {
	for rec := range w.in {
		w.write(ctx, rec)
	}
}

// write persists one record with the bounded retry policy.
func (w *ImmediateWriter) write(ctx context.Context, rec classify.Record) {
	var err error
	for attempt := 1; attempt <= w.policy.Attempts; attempt++ {
		if err = w.engine.WriteImmediate(ctx, rec); err == nil {
			return
		}
		if attempt < w.policy.Attempts {
			w.log.Warn("immediate write failed, retrying",
				"category", rec.Category().String(),
				"attempt", attempt,
				"error", err,
			)
			select {
			case <-ctx.Done():
				// Shutdown deadline reached; fall through to the loss
				// accounting below rather than blocking forever.
				attempt = w.policy.Attempts
			case <-time.After(w.policy.backoff(attempt)):
			}
		}
	}

	// Explicit, observable data loss: retries exhausted.
	w.counters.lostRecords.Add(1)
	w.log.Error("record lost after exhausting write retries",
		"category", rec.Category().String(),
		"attempts", w.policy.Attempts,
		"error", err,
	)
}

// BatchWriter consumes flushed batches from the accumulator and writes
// each as one transaction. A batch that still fails after the retry
// budget is logged as a lost batch — loudly, with its record count —
// rather than blocking the accumulator and backing up the pipeline.
//
// Multiple writers may run concurrently; the database pool is safe for
// that. With more than one writer, cross-batch write order is not
// guaranteed. Rows carry their own timestamps, so relaxing cross-batch
// order costs nothing at query time.
type BatchWriter struct {
	in       <-chan []classify.StateRecord
	engine   Engine
	policy   RetryPolicy
	counters *Counters
	log      Logger
}

// NewBatchWriter creates a writer draining the accumulator's batch channel.
func NewBatchWriter(in <-chan []classify.StateRecord, engine Engine, policy RetryPolicy, counters *Counters, log Logger) *BatchWriter {
	return &BatchWriter{
		in:       in,
		engine:   engine,
		policy:   policy,
		counters: counters,
		log:      log,
	}
}

// Run writes batches until the batch channel is closed. The final
// flush on shutdown arrives through the same channel, so no special
// casing is needed here.
func (w *BatchWriter) Run(ctx context.Context) {
	for batch := range w.in {
		w.write(ctx, batch)
	}
}

// write persists one batch with the bounded retry policy.
func (w *BatchWriter) write(ctx context.Context, batch []classify.StateRecord) {
	var err error
	for attempt := 1; attempt <= w.policy.Attempts; attempt++ {
		if err = w.engine.WriteBatch(ctx, batch); err == nil {
			return
		}
		if attempt < w.policy.Attempts {
			w.log.Warn("batch write failed, retrying",
				"records", len(batch),
				"attempt", attempt,
				"error", err,
			)
			select {
			case <-ctx.Done():
				attempt = w.policy.Attempts
			case <-time.After(w.policy.backoff(attempt)):
			}
		}
	}

	// Explicit, observable data loss: retries exhausted.
	w.counters.lostBatches.Add(1)
	w.counters.lostBatchRecords.Add(int64(len(batch)))
	w.log.Error("state batch lost after exhausting write retries",
		"records", len(batch),
		"attempts", w.policy.Attempts,
		"error", err,
	)
}
