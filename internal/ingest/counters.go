package ingest

import "sync/atomic"

// Counters tracks drop and loss events across the pipeline. Every
// discarded message is counted somewhere — silent data loss is never
// acceptable, so each counter pairs with a log line at the drop site.
//
// Thread Safety: all methods are safe for concurrent use.
type Counters struct {
	unknownTopics     atomic.Int64
	parseErrors       atomic.Int64
	backpressureDrops atomic.Int64
	lostRecords       atomic.Int64
	lostBatches       atomic.Int64
	lostBatchRecords  atomic.Int64
}

// Snapshot is a point-in-time copy of all counters, shaped for logging.
type Snapshot struct {
	UnknownTopics     int64
	ParseErrors       int64
	BackpressureDrops int64
	LostRecords       int64
	LostBatches       int64
	LostBatchRecords  int64
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		UnknownTopics:     c.unknownTopics.Load(),
		ParseErrors:       c.parseErrors.Load(),
		BackpressureDrops: c.backpressureDrops.Load(),
		LostRecords:       c.lostRecords.Load(),
		LostBatches:       c.lostBatches.Load(),
		LostBatchRecords:  c.lostBatchRecords.Load(),
	}
}

// LogArgs returns the snapshot as alternating key/value pairs for slog.
func (s Snapshot) LogArgs() []any {
	return []any{
		"unknown_topics", s.UnknownTopics,
		"parse_errors", s.ParseErrors,
		"backpressure_drops", s.BackpressureDrops,
		"lost_records", s.LostRecords,
		"lost_batches", s.LostBatches,
		"lost_batch_records", s.LostBatchRecords,
	}
}
