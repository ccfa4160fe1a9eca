package classify

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

var testTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// =============================================================================
// Discovery Tests
// =============================================================================

func TestClassify_Discovery(t *testing.T) {
	payload := []byte(`{"name":"esphome-device1","ip":"192.168.1.50","mac":"AA:BB:CC:DD:EE:FF","version":"2023.12.0","platform":"ESP32","board":"esp32dev","network":"wifi"}`)

	rec, err := Classify("esphome/discover/esphome-device1", payload, testTime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	disc, ok := rec.(DiscoveryRecord)
	if !ok {
		t.Fatalf("Classify() record type = %T, want DiscoveryRecord", rec)
	}

	if disc.DeviceName != "esphome-device1" {
		t.Errorf("DeviceName = %q, want %q", disc.DeviceName, "esphome-device1")
	}
	if disc.IP != "192.168.1.50" {
		t.Errorf("IP = %q, want %q", disc.IP, "192.168.1.50")
	}
	if disc.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("MAC = %q, want %q", disc.MAC, "AA:BB:CC:DD:EE:FF")
	}
	if disc.Version != "2023.12.0" {
		t.Errorf("Version = %q, want %q", disc.Version, "2023.12.0")
	}
	if string(disc.RawPayload) != string(payload) {
		t.Error("RawPayload not preserved verbatim")
	}
	if !disc.ReceivedAt.Equal(testTime) {
		t.Errorf("ReceivedAt = %v, want %v", disc.ReceivedAt, testTime)
	}
}

func TestClassify_DiscoveryNameFallback(t *testing.T) {
	// Sparse announcement without a name field keys on the topic segment.
	rec, err := Classify("esphome/discover/garage-door", []byte(`{"ip":"10.0.0.9"}`), testTime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	disc := rec.(DiscoveryRecord)
	if disc.DeviceName != "garage-door" {
		t.Errorf("DeviceName = %q, want topic fallback %q", disc.DeviceName, "garage-door")
	}
}

func TestClassify_DiscoveryMalformedJSON(t *testing.T) {
	_, err := Classify("esphome/discover/device1", []byte(`{not json`), testTime)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Classify() error = %v, want *ParseError", err)
	}
	if parseErr.Category != CategoryDiscovery {
		t.Errorf("ParseError.Category = %v, want discovery", parseErr.Category)
	}
}

// =============================================================================
// Entity Tests
// =============================================================================

func TestClassify_Entity(t *testing.T) {
	payload := []byte(`{
		"name": "Kitchen Light",
		"uniq_id": "kitchen_light_abc",
		"dev": {"name": "esphome-device1"},
		"stat_t": "~/state",
		"cmd_t": "~/command"
	}`)

	rec, err := Classify("homeassistant/light/kitchen_light/config", payload, testTime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	ent, ok := rec.(EntityRecord)
	if !ok {
		t.Fatalf("Classify() record type = %T, want EntityRecord", rec)
	}

	if ent.UniqueID != "kitchen_light_abc" {
		t.Errorf("UniqueID = %q, want %q", ent.UniqueID, "kitchen_light_abc")
	}
	if ent.ComponentType != "light" {
		t.Errorf("ComponentType = %q, want %q", ent.ComponentType, "light")
	}
	if ent.DeviceName != "esphome-device1" {
		t.Errorf("DeviceName = %q, want %q", ent.DeviceName, "esphome-device1")
	}
	if ent.StateTopic != "~/state" {
		t.Errorf("StateTopic = %q, want %q", ent.StateTopic, "~/state")
	}
	if ent.CommandTopic != "~/command" {
		t.Errorf("CommandTopic = %q, want %q", ent.CommandTopic, "~/command")
	}
}

func TestClassify_EntityFullKeyNames(t *testing.T) {
	// Publishers that emit unabbreviated keys are accepted too.
	payload := []byte(`{
		"name": "Porch Sensor",
		"unique_id": "porch_temp_01",
		"device": {"name": "porch-node"},
		"state_topic": "porch/sensor/temp/state",
		"command_topic": ""
	}`)

	rec, err := Classify("homeassistant/sensor/porch_temp/config", payload, testTime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	ent := rec.(EntityRecord)
	if ent.UniqueID != "porch_temp_01" {
		t.Errorf("UniqueID = %q, want %q", ent.UniqueID, "porch_temp_01")
	}
	if ent.DeviceName != "porch-node" {
		t.Errorf("DeviceName = %q, want %q", ent.DeviceName, "porch-node")
	}
	if ent.StateTopic != "porch/sensor/temp/state" {
		t.Errorf("StateTopic = %q, want %q", ent.StateTopic, "porch/sensor/temp/state")
	}
}

func TestClassify_EntityDeepTopic(t *testing.T) {
	// Node-scoped discovery topics have an extra segment before config.
	payload := []byte(`{"uniq_id":"x1"}`)

	rec, err := Classify("homeassistant/switch/node1/relay/config", payload, testTime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if rec.(EntityRecord).ComponentType != "switch" {
		t.Errorf("ComponentType = %q, want %q", rec.(EntityRecord).ComponentType, "switch")
	}
}

func TestClassify_EntityMissingUniqueID(t *testing.T) {
	_, err := Classify("homeassistant/light/x/config", []byte(`{"name":"No ID"}`), testTime)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Classify() error = %v, want *ParseError", err)
	}
	if parseErr.Category != CategoryEntity {
		t.Errorf("ParseError.Category = %v, want entity", parseErr.Category)
	}
}

func TestClassify_EntityMalformedJSON(t *testing.T) {
	_, err := Classify("homeassistant/light/x/config", []byte(`not json at all`), testTime)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Classify() error = %v, want *ParseError", err)
	}
}

// =============================================================================
// Status Tests
// =============================================================================

func TestClassify_Status(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"online", "online", "online"},
		{"offline", "offline", "offline"},
		{"uppercase", "ONLINE", "online"},
		{"padded", " offline\n", "offline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Classify("mydevice/status", []byte(tt.payload), testTime)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}

			status, ok := rec.(StatusRecord)
			if !ok {
				t.Fatalf("Classify() record type = %T, want StatusRecord", rec)
			}
			if status.DeviceName != "mydevice" {
				t.Errorf("DeviceName = %q, want %q", status.DeviceName, "mydevice")
			}
			if status.Status != tt.want {
				t.Errorf("Status = %q, want %q", status.Status, tt.want)
			}
		})
	}
}

func TestClassify_StatusUnexpectedToken(t *testing.T) {
	_, err := Classify("mydevice/status", []byte("rebooting"), testTime)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Classify() error = %v, want *ParseError", err)
	}
	if parseErr.Category != CategoryStatus {
		t.Errorf("ParseError.Category = %v, want status", parseErr.Category)
	}
}

// =============================================================================
// Command Tests
// =============================================================================

func TestClassify_Command(t *testing.T) {
	rec, err := Classify("mydevice/light/bulb/command", []byte("TOGGLE"), testTime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	cmd, ok := rec.(CommandRecord)
	if !ok {
		t.Fatalf("Classify() record type = %T, want CommandRecord", rec)
	}
	if cmd.DeviceID != "mydevice" {
		t.Errorf("DeviceID = %q, want %q", cmd.DeviceID, "mydevice")
	}
	if cmd.ComponentID != "bulb" {
		t.Errorf("ComponentID = %q, want %q", cmd.ComponentID, "bulb")
	}
	if cmd.Command != "TOGGLE" {
		t.Errorf("Command = %q, want %q", cmd.Command, "TOGGLE")
	}
}

func TestClassify_CommandJSONPayload(t *testing.T) {
	// JSON command payloads are kept verbatim, not parsed.
	payload := []byte(`{"state":"ON","brightness":128}`)

	rec, err := Classify("mydevice/light/bulb/command", payload, testTime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if rec.(CommandRecord).Command != string(payload) {
		t.Error("JSON command payload not preserved verbatim")
	}
}

// =============================================================================
// State Tests
// =============================================================================

func TestClassify_StateNumeric(t *testing.T) {
	rec, err := Classify("mydevice/sensor/temperature/state", []byte("23.5"), testTime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	state, ok := rec.(StateRecord)
	if !ok {
		t.Fatalf("Classify() record type = %T, want StateRecord", rec)
	}
	if state.DeviceID != "mydevice" {
		t.Errorf("DeviceID = %q, want %q", state.DeviceID, "mydevice")
	}
	if state.SensorName != "temperature" {
		t.Errorf("SensorName = %q, want %q", state.SensorName, "temperature")
	}
	if state.Value == nil || *state.Value != 23.5 {
		t.Errorf("Value = %v, want 23.5", state.Value)
	}
	if state.Attributes != nil {
		t.Errorf("Attributes = %s, want nil for a bare number", state.Attributes)
	}
}

func TestClassify_StateBinaryTokens(t *testing.T) {
	tests := []struct {
		payload string
		want    float64
	}{
		{"ON", 1.0},
		{"off", 0.0},
		{"TRUE", 1.0},
		{"false", 0.0},
		{"OPEN", 1.0},
		{"closed", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			rec, err := Classify("mydevice/switch/light/state", []byte(tt.payload), testTime)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			state := rec.(StateRecord)
			if state.Value == nil || *state.Value != tt.want {
				t.Errorf("Value = %v, want %v", state.Value, tt.want)
			}
		})
	}
}

func TestClassify_StateJSONObject(t *testing.T) {
	rec, err := Classify("mydevice/sensor/env/state", []byte(`{"value":42.5,"unit":"lux"}`), testTime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	state := rec.(StateRecord)
	if state.Value == nil || *state.Value != 42.5 {
		t.Fatalf("Value = %v, want 42.5", state.Value)
	}

	var attrs map[string]any
	if err := json.Unmarshal(state.Attributes, &attrs); err != nil {
		t.Fatalf("Attributes unmarshal error = %v", err)
	}
	if attrs["unit"] != "lux" {
		t.Errorf("Attributes[unit] = %v, want lux", attrs["unit"])
	}
	if _, present := attrs["value"]; present {
		t.Error("value member should have moved out of attributes")
	}
}

func TestClassify_StateNonNumericText(t *testing.T) {
	rec, err := Classify("mydevice/text_sensor/ssid/state", []byte("HomeNet-5G"), testTime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	state := rec.(StateRecord)
	if state.Value != nil {
		t.Errorf("Value = %v, want nil for non-numeric text", *state.Value)
	}

	var attrs map[string]any
	if err := json.Unmarshal(state.Attributes, &attrs); err != nil {
		t.Fatalf("Attributes unmarshal error = %v", err)
	}
	if attrs["text"] != "HomeNet-5G" {
		t.Errorf("Attributes[text] = %v, want raw string", attrs["text"])
	}
}

// =============================================================================
// Shape Priority and Unknown Topics
// =============================================================================

func TestClassify_UnknownTopic(t *testing.T) {
	tests := []string{
		"some/other/topic",
		"single",
		"a/b/c/d/e",
		"mydevice/light/bulb/brightness",
	}

	for _, topic := range tests {
		t.Run(topic, func(t *testing.T) {
			_, err := Classify(topic, []byte("payload"), testTime)
			if !errors.Is(err, ErrUnknownTopic) {
				t.Errorf("Classify(%q) error = %v, want ErrUnknownTopic", topic, err)
			}
		})
	}
}

func TestClassify_DiscoveryBeatsState(t *testing.T) {
	// esphome/discover/<device> wins over any later shape even though
	// homeassistant/# style wildcards could overlap at the broker.
	rec, err := Classify("esphome/discover/dev1", []byte(`{"name":"dev1"}`), testTime)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if rec.Category() != CategoryDiscovery {
		t.Errorf("Category = %v, want discovery", rec.Category())
	}
}

// =============================================================================
// Determinism
// =============================================================================

func TestClassify_Deterministic(t *testing.T) {
	topics := map[string]string{
		"esphome/discover/d1":          `{"name":"d1","ip":"10.0.0.1"}`,
		"homeassistant/light/a/config": `{"uniq_id":"a1"}`,
		"d1/status":                    "online",
		"d1/light/bulb/command":        "ON",
		"d1/sensor/temp/state":         "21.5",
	}

	for topic, payload := range topics {
		first, err1 := Classify(topic, []byte(payload), testTime)
		second, err2 := Classify(topic, []byte(payload), testTime)

		if err1 != nil || err2 != nil {
			t.Fatalf("Classify(%q) errors = %v, %v", topic, err1, err2)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Classify(%q) not deterministic:\n  first:  %#v\n  second: %#v", topic, first, second)
		}
	}
}

func TestCategory_String(t *testing.T) {
	tests := []struct {
		category Category
		want     string
	}{
		{CategoryDiscovery, "discovery"},
		{CategoryEntity, "entity"},
		{CategoryStatus, "status"},
		{CategoryCommand, "command"},
		{CategoryState, "state"},
		{CategoryUnknown, "unknown"},
	}

	for _, tt := range tests {
		if got := tt.category.String(); got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.category, got, tt.want)
		}
	}
}
