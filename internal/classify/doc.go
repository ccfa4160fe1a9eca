// Package classify turns raw MQTT messages into typed telemetry records.
//
// This package manages:
//   - Matching topics against the five message shapes (discovery,
//     entity config, status, command, state) in fixed priority order
//   - Parsing payloads per category (JSON for discovery/entity,
//     plain tokens for status, text-or-JSON for command/state)
//   - Best-effort numeric coercion of state values
//
// Classification is a pure function with no I/O or shared state, which
// makes it directly unit-testable with literal topic/payload fixtures.
// Malformed payloads surface as *ParseError and unmatched topics as
// ErrUnknownTopic; both are dropped by the dispatcher without stopping
// the pipeline.
//
// Usage:
//
//	rec, err := classify.Classify(topic, payload, time.Now())
//	if err != nil {
//	    // count and drop
//	}
//	switch r := rec.(type) {
//	case classify.StateRecord:
//	    // route to the batch accumulator
//	}
package classify
