package bus

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Subscription wildcards, one per message category. The broker does the
// initial filtering; everything that arrives is classified downstream.
var categoryTopics = []string{
	"esphome/discover/#",
	"homeassistant/#",
	"+/status",
	"+/+/+/command",
	"+/+/+/state",
}

// Envelope is a raw bus message stamped at receipt. The receipt time is
// the primary time axis for every persisted record; device-supplied
// timestamps are ignored.
type Envelope struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Listener subscribes the category wildcards and feeds raw envelopes
// onto a bounded ingestion channel.
//
// The enqueue path is O(1) and never blocks: when the channel is full
// the envelope is dropped and counted. An unresponsive downstream must
// not stall the paho delivery goroutine, which would eventually trip
// the broker's keepalive and disconnect the client.
type Listener struct {
	client   *Client
	qos      byte
	ingest   chan Envelope
	overflow atomic.Int64
}

// NewListener creates a Listener feeding a bounded channel of the given
// capacity. The channel capacity is the backpressure mechanism between
// the bus and the dispatcher.
func NewListener(client *Client, qos byte, capacity int) *Listener {
	return &Listener{
		client: client,
		qos:    qos,
		ingest: make(chan Envelope, capacity),
	}
}

// Start subscribes to all category wildcards. Messages flow until the
// underlying client disconnects; resubscription on reconnect is handled
// by the client's subscription tracking.
//
// Returns:
//   - error: If any subscription fails
func (l *Listener) Start() error {
	for _, topic := range categoryTopics {
		if err := l.client.Subscribe(topic, l.qos, l.enqueue); err != nil {
			return fmt.Errorf("subscribing %q: %w", topic, err)
		}
	}
	return nil
}

// enqueue stamps the message and offers it to the ingestion channel
// without blocking.
func (l *Listener) enqueue(topic string, payload []byte) {
	env := Envelope{
		Topic:      topic,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}

	select {
	case l.ingest <- env:
	default:
		l.overflow.Add(1)
	}
}

// Envelopes returns the ingestion channel drained by the dispatcher.
func (l *Listener) Envelopes() <-chan Envelope {
	return l.ingest
}

// OverflowCount reports how many messages were dropped because the
// ingestion channel was full.
func (l *Listener) OverflowCount() int64 {
	return l.overflow.Load()
}
