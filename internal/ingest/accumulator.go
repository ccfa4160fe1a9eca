package ingest

import (
	"time"

	"github.com/fernvale/espsink/internal/classify"
)

// Accumulator buffers state records and releases them as batches when
// either the size threshold is reached or the oldest buffered record
// exceeds the age limit, whichever happens first. The age timer starts
// when a record lands in an empty batch, so low-traffic periods never
// hold data longer than one flush interval.
//
// The in-progress batch is owned exclusively by the Run goroutine and
// is never observed by anyone else. Handoff to the batch writers is a
// synchronous channel send: the accumulator starts a new batch only
// after a writer has accepted the old one, so no batch can be dropped
// mid-handoff.
type Accumulator struct {
	in    <-chan classify.StateRecord
	flush chan []classify.StateRecord

	size   int
	maxAge time.Duration
	log    Logger
}

// NewAccumulator creates an accumulator reading from in.
//
// Parameters:
//   - in: State record queue fed by the dispatcher
//   - size: Record count that triggers a flush
//   - maxAge: Maximum age of a partial batch before it flushes anyway
//   - log: Logger
func NewAccumulator(in <-chan classify.StateRecord, size int, maxAge time.Duration, log Logger) *Accumulator {
	return &Accumulator{
		in:     in,
		flush:  make(chan []classify.StateRecord),
		size:   size,
		maxAge: maxAge,
		log:    log,
	}
}

// Batches returns the channel of flushed batches consumed by the batch
// writers.
func (a *Accumulator) Batches() <-chan []classify.StateRecord {
	return a.flush
}

// Run accumulates until the input channel is closed, then flushes the
// final partial batch and closes the batch channel so the writers can
// finish and exit.
func (a *Accumulator) Run() {
	var (
		batch    []classify.StateRecord
		ageTimer *time.Timer
		ageC     <-chan time.Time
	)

	stopTimer := func() {
		if ageTimer != nil {
			ageTimer.Stop()
			ageTimer = nil
			ageC = nil
		}
	}

	for {
		select {
		case rec, ok := <-a.in:
			if !ok {
				stopTimer()
				if len(batch) > 0 {
					a.flush <- batch
				}
				close(a.flush)
				return
			}

			if len(batch) == 0 {
				// Age clock starts with the first record of a batch.
				ageTimer = time.NewTimer(a.maxAge)
				ageC = ageTimer.C
				batch = make([]classify.StateRecord, 0, a.size)
			}
			batch = append(batch, rec)

			if len(batch) >= a.size {
				stopTimer()
				a.flush <- batch
				batch = nil
			}

		case <-ageC:
			ageTimer = nil
			ageC = nil
			if len(batch) > 0 {
				a.flush <- batch
				batch = nil
			}
		}
	}
}
