package ingest

import (
	"testing"
	"time"

	"github.com/fernvale/espsink/internal/classify"
)

// testLogger discards all output; failures under test are asserted via
// counters and channels, not log lines.
type testLogger struct{}

func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

func stateRecord(device, sensor string, value float64) classify.StateRecord {
	return classify.StateRecord{
		DeviceID:   device,
		SensorName: sensor,
		Value:      &value,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestAccumulator_SizeTrigger(t *testing.T) {
	in := make(chan classify.StateRecord, 8)
	// Long age limit: only the size threshold can trigger here.
	acc := NewAccumulator(in, 3, time.Minute, testLogger{})
	go acc.Run()

	for i := 0; i < 3; i++ {
		in <- stateRecord("d1", "temp", float64(i))
	}

	select {
	case batch := <-acc.Batches():
		if len(batch) != 3 {
			t.Errorf("batch size = %d, want 3", len(batch))
		}
		// Accumulation order is preserved within the batch.
		for i, rec := range batch {
			if *rec.Value != float64(i) {
				t.Errorf("batch[%d].Value = %v, want %v", i, *rec.Value, float64(i))
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no flush after reaching batch size")
	}

	close(in)
}

func TestAccumulator_AgeTrigger(t *testing.T) {
	in := make(chan classify.StateRecord, 8)
	// Huge size threshold: only the age timer can trigger here.
	acc := NewAccumulator(in, 1000, 100*time.Millisecond, testLogger{})
	go acc.Run()

	in <- stateRecord("d1", "temp", 21.5)
	in <- stateRecord("d1", "humidity", 40)

	select {
	case batch := <-acc.Batches():
		if len(batch) != 2 {
			t.Errorf("batch size = %d, want 2 (partial batch on age)", len(batch))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no flush after age limit elapsed")
	}

	close(in)
}

func TestAccumulator_ExactlyOneFlushPerBatch(t *testing.T) {
	in := make(chan classify.StateRecord, 8)
	acc := NewAccumulator(in, 2, 100*time.Millisecond, testLogger{})
	go acc.Run()

	// Fill one full batch quickly: size triggers first.
	in <- stateRecord("d1", "a", 1)
	in <- stateRecord("d1", "b", 2)

	select {
	case batch := <-acc.Batches():
		if len(batch) != 2 {
			t.Fatalf("batch size = %d, want 2", len(batch))
		}
	case <-time.After(time.Second):
		t.Fatal("no size-triggered flush")
	}

	// The stale age timer from the flushed batch must not fire a
	// second, empty flush.
	select {
	case batch := <-acc.Batches():
		t.Fatalf("unexpected second flush of %d records", len(batch))
	case <-time.After(300 * time.Millisecond):
	}

	close(in)
}

func TestAccumulator_FinalFlushOnClose(t *testing.T) {
	in := make(chan classify.StateRecord, 8)
	acc := NewAccumulator(in, 1000, time.Minute, testLogger{})
	go acc.Run()

	in <- stateRecord("d1", "temp", 21.5)
	close(in)

	select {
	case batch, ok := <-acc.Batches():
		if !ok {
			t.Fatal("batch channel closed before final flush")
		}
		if len(batch) != 1 {
			t.Errorf("final batch size = %d, want 1", len(batch))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no final flush on input close")
	}

	// After the final flush, the batch channel closes.
	select {
	case _, ok := <-acc.Batches():
		if ok {
			t.Error("expected batch channel to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch channel not closed after final flush")
	}
}

func TestAccumulator_EmptyCloseNoFlush(t *testing.T) {
	in := make(chan classify.StateRecord)
	acc := NewAccumulator(in, 10, time.Minute, testLogger{})
	go acc.Run()

	close(in)

	select {
	case batch, ok := <-acc.Batches():
		if ok {
			t.Errorf("unexpected flush of %d records from empty accumulator", len(batch))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch channel not closed")
	}
}
