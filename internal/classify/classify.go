package classify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Topic shape constants.
const (
	discoveryPrefix  = "esphome"
	discoverySegment = "discover"
	entityPrefix     = "homeassistant"
	entitySuffix     = "config"
	statusSuffix     = "status"
	commandSuffix    = "command"
	stateSuffix      = "state"
)

// Classify matches a topic against the five message shapes in fixed
// priority order (discovery, entity, status, command, state) and parses
// the payload into a typed record.
//
// The function is pure: the same (topic, payload, at) always produces
// the same record. No I/O is performed.
//
// Parameters:
//   - topic: Slash-delimited MQTT topic the message arrived on
//   - payload: Raw message payload (JSON or plain UTF-8 text)
//   - at: Ingestion timestamp assigned at receipt
//
// Returns:
//   - Record: The typed record, nil on error
//   - error: ErrUnknownTopic when no shape matches, *ParseError when the
//     payload does not conform to its category
func Classify(topic string, payload []byte, at time.Time) (Record, error) {
	segments := strings.Split(topic, "/")

	switch {
	case isDiscoveryTopic(segments):
		return parseDiscovery(topic, segments, payload, at)
	case isEntityTopic(segments):
		return parseEntity(topic, segments, payload, at)
	case isStatusTopic(segments):
		return parseStatus(topic, segments, payload, at)
	case isCommandTopic(segments):
		return CommandRecord{
			DeviceID:    segments[0],
			ComponentID: segments[2],
			Command:     string(payload),
			RawPayload:  payload,
			ReceivedAt:  at,
		}, nil
	case isStateTopic(segments):
		return parseState(segments, payload, at)
	default:
		return nil, ErrUnknownTopic
	}
}

// isDiscoveryTopic matches esphome/discover/<device>.
func isDiscoveryTopic(segments []string) bool {
	return len(segments) >= 3 && segments[0] == discoveryPrefix && segments[1] == discoverySegment
}

// isEntityTopic matches homeassistant/<component>/.../config.
func isEntityTopic(segments []string) bool {
	return len(segments) >= 3 && segments[0] == entityPrefix && segments[len(segments)-1] == entitySuffix
}

// isStatusTopic matches <device>/status.
func isStatusTopic(segments []string) bool {
	return len(segments) == 2 && segments[1] == statusSuffix
}

// isCommandTopic matches <device>/<component>/<id>/command.
func isCommandTopic(segments []string) bool {
	return len(segments) == 4 && segments[3] == commandSuffix
}

// isStateTopic matches <device>/<component>/<id>/state.
func isStateTopic(segments []string) bool {
	return len(segments) == 4 && segments[3] == stateSuffix
}

// discoveryPayload mirrors the JSON body of an ESPHome discovery
// announcement. All fields are optional on the wire.
type discoveryPayload struct {
	Name     string `json:"name"`
	IP       string `json:"ip"`
	MAC      string `json:"mac"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Board    string `json:"board"`
	Network  string `json:"network"`
}

func parseDiscovery(topic string, segments []string, payload []byte, at time.Time) (Record, error) {
	var body discoveryPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &ParseError{Topic: topic, Category: CategoryDiscovery, Err: err}
	}

	// Device name from the payload, falling back to the topic segment
	// so a sparse announcement still keys its row.
	name := body.Name
	if name == "" {
		name = segments[2]
	}

	return DiscoveryRecord{
		DeviceName: name,
		IP:         body.IP,
		MAC:        body.MAC,
		Version:    body.Version,
		Platform:   body.Platform,
		Board:      body.Board,
		Network:    body.Network,
		RawPayload: payload,
		ReceivedAt: at,
	}, nil
}

// entityPayload mirrors a Home Assistant MQTT discovery config.
// Home Assistant emits both abbreviated and full key names depending on
// the publisher, so both spellings are accepted.
type entityPayload struct {
	UniqueID     string       `json:"unique_id"`
	UniqID       string       `json:"uniq_id"`
	Name         string       `json:"name"`
	StateTopic   string       `json:"state_topic"`
	StatT        string       `json:"stat_t"`
	CommandTopic string       `json:"command_topic"`
	CmdT         string       `json:"cmd_t"`
	Device       entityDevice `json:"device"`
	Dev          entityDevice `json:"dev"`
}

type entityDevice struct {
	Name string `json:"name"`
}

func parseEntity(topic string, segments []string, payload []byte, at time.Time) (Record, error) {
	var body entityPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &ParseError{Topic: topic, Category: CategoryEntity, Err: err}
	}

	uniqueID := firstNonEmpty(body.UniqueID, body.UniqID)
	if uniqueID == "" {
		return nil, &ParseError{
			Topic:    topic,
			Category: CategoryEntity,
			Err:      fmt.Errorf("missing unique_id"),
		}
	}

	return EntityRecord{
		UniqueID:      uniqueID,
		DeviceName:    firstNonEmpty(body.Device.Name, body.Dev.Name),
		ComponentType: segments[1],
		Name:          body.Name,
		StateTopic:    firstNonEmpty(body.StateTopic, body.StatT),
		CommandTopic:  firstNonEmpty(body.CommandTopic, body.CmdT),
		RawPayload:    payload,
		ReceivedAt:    at,
	}, nil
}

func parseStatus(topic string, segments []string, payload []byte, at time.Time) (Record, error) {
	status := strings.ToLower(strings.TrimSpace(string(payload)))
	if status != "online" && status != "offline" {
		return nil, &ParseError{
			Topic:    topic,
			Category: CategoryStatus,
			Err:      fmt.Errorf("unexpected status token %q", status),
		}
	}

	return StatusRecord{
		DeviceName: segments[0],
		Status:     status,
		RawPayload: payload,
		ReceivedAt: at,
	}, nil
}

func parseState(segments []string, payload []byte, at time.Time) (Record, error) {
	value, attributes := coerceStateValue(payload)

	return StateRecord{
		DeviceID:   segments[0],
		SensorName: segments[2],
		Value:      value,
		Attributes: attributes,
		RawPayload: payload,
		ReceivedAt: at,
	}, nil
}

// coerceStateValue attempts a best-effort numeric interpretation of a
// state payload.
//
// Accepted forms, tried in order:
//  1. A bare number ("21.5")
//  2. A binary token: ON/TRUE/OPEN -> 1, OFF/FALSE/CLOSED -> 0
//  3. A JSON object with a numeric "value" member; remaining members
//     are kept as attributes
//
// Anything else yields a nil value with the raw text preserved in
// attributes under "text", so no payload is ever discarded.
func coerceStateValue(payload []byte) (*float64, json.RawMessage) {
	text := strings.TrimSpace(string(payload))

	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return &v, nil
	}

	switch strings.ToUpper(text) {
	case "ON", "TRUE", "OPEN":
		v := 1.0
		return &v, nil
	case "OFF", "FALSE", "CLOSED":
		v := 0.0
		return &v, nil
	}

	if strings.HasPrefix(text, "{") {
		var body map[string]any
		if err := json.Unmarshal(payload, &body); err == nil {
			if raw, ok := body["value"]; ok {
				if num, ok := raw.(float64); ok {
					delete(body, "value")
					return &num, marshalAttributes(body)
				}
			}
			return nil, marshalAttributes(body)
		}
	}

	return nil, marshalAttributes(map[string]any{"text": text})
}

// marshalAttributes serialises the attribute map, returning nil for an
// empty map so the database column stays NULL.
func marshalAttributes(attrs map[string]any) json.RawMessage {
	if len(attrs) == 0 {
		return nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil
	}
	return data
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
