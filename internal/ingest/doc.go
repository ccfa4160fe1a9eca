// Package ingest implements the espsink pipeline between the bus and
// the database.
//
// The moving parts, each its own goroutine:
//
//	envelopes → Dispatcher → immediate queue → ImmediateWriter → store
//	                       → state queue → Accumulator → batch channel → BatchWriter(s) → store
//
// All stages communicate exclusively through bounded channels; no
// record is shared between goroutines after handoff. The dispatcher
// preserves bus delivery order; the accumulator preserves accumulation
// order within a batch; cross-batch order is only guaranteed with a
// single batch writer.
//
// # Failure Model
//
// Parse errors and unknown topics are dropped at the dispatcher with a
// counter. Full sinks get a bounded wait, then a counted drop —
// favouring liveness of the bus connection over zero loss. Write
// failures surface from the store only after its internal reconnection
// budget; the writers then retry with exponential backoff up to a
// configured attempt count before declaring the data lost, loudly.
// Nothing in this package can crash the process.
//
// # Shutdown
//
// Cancelling the dispatcher's context stops intake and drains buffered
// envelopes up to a deadline. Closing the queues then cascades: the
// accumulator flushes its partial batch and closes the batch channel,
// and the writers finish their remaining work before exiting.
package ingest
