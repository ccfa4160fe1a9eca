package classify

import (
	"encoding/json"
	"time"
)

// Category identifies which of the five message shapes a topic matched.
type Category int

// Message categories in classification priority order.
const (
	CategoryUnknown Category = iota
	CategoryDiscovery
	CategoryEntity
	CategoryStatus
	CategoryCommand
	CategoryState
)

// String returns the category name for logging.
func (c Category) String() string {
	switch c {
	case CategoryDiscovery:
		return "discovery"
	case CategoryEntity:
		return "entity"
	case CategoryStatus:
		return "status"
	case CategoryCommand:
		return "command"
	case CategoryState:
		return "state"
	default:
		return "unknown"
	}
}

// Record is a classified, typed message ready for persistence.
// Concrete types are DiscoveryRecord, EntityRecord, StatusRecord,
// CommandRecord and StateRecord.
type Record interface {
	// Category reports which message shape produced this record.
	Category() Category
}

// DiscoveryRecord is a device-level announcement from the esphome
// discovery topic. Upserted on DeviceName.
type DiscoveryRecord struct {
	DeviceName string
	IP         string
	MAC        string
	Version    string
	Platform   string
	Board      string
	Network    string
	RawPayload []byte
	ReceivedAt time.Time
}

// Category implements Record.
func (DiscoveryRecord) Category() Category { return CategoryDiscovery }

// EntityRecord is a component-level Home Assistant discovery config.
// Upserted on UniqueID.
type EntityRecord struct {
	UniqueID      string
	DeviceName    string
	ComponentType string
	Name          string
	StateTopic    string
	CommandTopic  string
	RawPayload    []byte
	ReceivedAt    time.Time
}

// Category implements Record.
func (EntityRecord) Category() Category { return CategoryEntity }

// StatusRecord is an availability transition ("online"/"offline").
// Append-only.
type StatusRecord struct {
	DeviceName string
	Status     string
	RawPayload []byte
	ReceivedAt time.Time
}

// Category implements Record.
func (StatusRecord) Category() Category { return CategoryStatus }

// CommandRecord is an echoed command sent to a device component.
// Append-only; the command value is kept verbatim (text or JSON).
type CommandRecord struct {
	DeviceID    string
	ComponentID string
	Command     string
	RawPayload  []byte
	ReceivedAt  time.Time
}

// Category implements Record.
func (CommandRecord) Category() Category { return CategoryCommand }

// StateRecord is a high-frequency sensor/entity value update.
// Append-only into the hypertable.
//
// Value is nil when the payload could not be coerced to a number; in
// that case the raw text is preserved in Attributes under "text".
type StateRecord struct {
	DeviceID   string
	SensorName string
	Value      *float64
	Attributes json.RawMessage
	RawPayload []byte
	ReceivedAt time.Time
}

// Category implements Record.
func (StateRecord) Category() Category { return CategoryState }
