// Package bus provides MQTT connectivity for espsink.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and backoff
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - The bounded ingestion channel feeding the dispatcher
//   - Connection health monitoring
//
// # Architecture
//
// espsink is a pure MQTT consumer. ESPHome devices publish discovery
// announcements, Home Assistant entity configs, availability tokens,
// command echoes and state updates; the Listener subscribes one
// wildcard per category and stamps each message into an Envelope:
//
//	devices → broker → Listener → bounded channel → dispatcher
//
// The enqueue path never blocks. A full channel drops the message and
// increments an overflow counter — liveness of the broker connection is
// favoured over zero loss, since a stalled delivery goroutine would
// trip the broker keepalive and disconnect the client entirely.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := bus.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	listener := bus.NewListener(client, byte(cfg.MQTT.QoS), 4096)
//	if err := listener.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	for env := range listener.Envelopes() {
//	    // classify and route
//	}
package bus
