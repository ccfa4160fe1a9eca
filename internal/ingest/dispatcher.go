package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/fernvale/espsink/internal/bus"
	"github.com/fernvale/espsink/internal/classify"
)

// Logger is the logging surface ingest components need.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Dispatcher is the single control loop draining the ingestion channel.
// It classifies each envelope and routes the typed record to the
// immediate queue (discovery, entity, status, command) or the state
// queue feeding the batch accumulator.
//
// Routing never blocks indefinitely: a full sink gets a bounded wait,
// after which the record is dropped and counted. An unresponsive sink
// must not back up into the bus listener's enqueue path.
type Dispatcher struct {
	in        <-chan bus.Envelope
	immediate chan<- classify.Record
	states    chan<- classify.StateRecord

	timeout      time.Duration
	drainTimeout time.Duration
	counters     *Counters
	log          Logger
}

// NewDispatcher wires a dispatcher between the ingestion channel and
// the two sink queues.
//
// Parameters:
//   - in: Bounded envelope channel fed by the bus listener
//   - immediate: Queue feeding the immediate writer
//   - states: Queue feeding the batch accumulator
//   - timeout: Bounded wait on a full sink before dropping
//   - drainTimeout: How long shutdown spends consuming buffered envelopes
//   - counters: Shared drop/loss counters
//   - log: Logger
func NewDispatcher(
	in <-chan bus.Envelope,
	immediate chan<- classify.Record,
	states chan<- classify.StateRecord,
	timeout time.Duration,
	drainTimeout time.Duration,
	counters *Counters,
	log Logger,
) *Dispatcher {
	return &Dispatcher{
		in:           in,
		immediate:    immediate,
		states:       states,
		timeout:      timeout,
		drainTimeout: drainTimeout,
		counters:     counters,
		log:          log,
	}
}

// Run drains the ingestion channel until ctx is cancelled, then
// consumes whatever is already buffered up to the drain timeout before
// returning. Per-connection message order is preserved: envelopes are
// handled strictly in channel order by this single goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case env := <-d.in:
			d.handle(env)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

// drain consumes buffered envelopes after shutdown was requested, up to
// the configured deadline. The listener is disconnected by now, so the
// channel only shrinks.
func (d *Dispatcher) drain() {
	deadline := time.After(d.drainTimeout)
	for {
		select {
		case env := <-d.in:
			d.handle(env)
		case <-deadline:
			d.log.Warn("shutdown drain timed out with envelopes remaining",
				"buffered", len(d.in))
			return
		default:
			return
		}
	}
}

// handle classifies one envelope and routes the record. Classification
// failures are logged and counted; they never stop the loop.
func (d *Dispatcher) handle(env bus.Envelope) {
	rec, err := classify.Classify(env.Topic, env.Payload, env.ReceivedAt)
	if err != nil {
		var parseErr *classify.ParseError
		switch {
		case errors.As(err, &parseErr):
			d.counters.parseErrors.Add(1)
			d.log.Warn("dropping malformed payload",
				"topic", env.Topic,
				"category", parseErr.Category.String(),
				"error", parseErr.Err,
			)
		case errors.Is(err, classify.ErrUnknownTopic):
			d.counters.unknownTopics.Add(1)
			d.log.Info("dropping message on unknown topic", "topic", env.Topic)
		default:
			d.log.Error("unexpected classification error", "topic", env.Topic, "error", err)
		}
		return
	}

	if state, ok := rec.(classify.StateRecord); ok {
		d.routeState(state)
		return
	}
	d.routeImmediate(rec)
}

// routeState offers a state record to the accumulator with a bounded wait.
func (d *Dispatcher) routeState(rec classify.StateRecord) {
	select {
	case d.states <- rec:
		return
	default:
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case d.states <- rec:
	case <-timer.C:
		d.counters.backpressureDrops.Add(1)
		d.log.Warn("dropping state record, accumulator backlogged",
			"device", rec.DeviceID,
			"sensor", rec.SensorName,
		)
	}
}

// routeImmediate offers a metadata record to the immediate writer with
// a bounded wait.
func (d *Dispatcher) routeImmediate(rec classify.Record) {
	select {
	case d.immediate <- rec:
		return
	default:
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case d.immediate <- rec:
	case <-timer.C:
		d.counters.backpressureDrops.Add(1)
		d.log.Warn("dropping record, immediate writer backlogged",
			"category", rec.Category().String(),
		)
	}
}
