package store

import (
	"context"
	"fmt"
)

// Idempotent DDL for the five destination tables. Safe to execute on
// every startup; nothing fails if the objects already exist.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS discovery_data (
		time         TIMESTAMPTZ NOT NULL,
		device_name  TEXT PRIMARY KEY,
		ip_address   TEXT,
		mac_address  TEXT,
		version      TEXT,
		platform     TEXT,
		board        TEXT,
		network      TEXT,
		raw_payload  JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS entity (
		time           TIMESTAMPTZ NOT NULL,
		unique_id      TEXT PRIMARY KEY,
		device_name    TEXT,
		component_type TEXT,
		name           TEXT,
		state_topic    TEXT,
		command_topic  TEXT,
		raw_payload    JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS device_status (
		time         TIMESTAMPTZ NOT NULL,
		device_name  TEXT,
		status       TEXT,
		raw_payload  TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS command (
		time          TIMESTAMPTZ NOT NULL,
		device_id     TEXT,
		component_id  TEXT,
		command       TEXT,
		raw_payload   TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS esphome_data (
		time         TIMESTAMPTZ NOT NULL,
		device_id    TEXT NOT NULL,
		sensor_name  TEXT NOT NULL,
		value        DOUBLE PRECISION,
		attributes   JSONB
	)`,
	// Register the state table as a hypertable chunked on the time
	// column. if_not_exists makes this a no-op on every later startup.
	`SELECT create_hypertable('esphome_data', 'time', if_not_exists => TRUE)`,
}

// EnsureSchema creates the five destination tables and registers the
// state table as a TimescaleDB hypertable. Idempotent; called once at
// startup. A failure here is fatal to the process.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: ErrSchemaFailed wrapping the first failed statement
func (s *Store) EnsureSchema(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %w", ErrSchemaFailed, err)
	}
	defer conn.Release()

	for i, stmt := range schemaStatements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: statement %d: %w", ErrSchemaFailed, i+1, err)
		}
	}

	return nil
}
