package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fernvale/espsink/internal/classify"
)

// Insert/upsert statements for the five destination tables.
//
// Discovery and entity rows are idempotent under re-announcement: the
// conflict target is the unique key and every non-key column is
// replaced with the latest values. Status, command and state rows are
// append-only facts.
const (
	upsertDiscoverySQL = `
INSERT INTO discovery_data (
	time, device_name, ip_address, mac_address, version, platform, board, network, raw_payload
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (device_name) DO UPDATE SET
	time = EXCLUDED.time,
	ip_address = EXCLUDED.ip_address,
	mac_address = EXCLUDED.mac_address,
	version = EXCLUDED.version,
	platform = EXCLUDED.platform,
	board = EXCLUDED.board,
	network = EXCLUDED.network,
	raw_payload = EXCLUDED.raw_payload`

	upsertEntitySQL = `
INSERT INTO entity (
	time, unique_id, device_name, component_type, name, state_topic, command_topic, raw_payload
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (unique_id) DO UPDATE SET
	time = EXCLUDED.time,
	device_name = EXCLUDED.device_name,
	component_type = EXCLUDED.component_type,
	name = EXCLUDED.name,
	state_topic = EXCLUDED.state_topic,
	command_topic = EXCLUDED.command_topic,
	raw_payload = EXCLUDED.raw_payload`

	insertStatusSQL = `
INSERT INTO device_status (
	time, device_name, status, raw_payload
) VALUES (
	$1,$2,$3,$4
)`

	insertCommandSQL = `
INSERT INTO command (
	time, device_id, component_id, command, raw_payload
) VALUES (
	$1,$2,$3,$4,$5
)`

	insertStateSQL = `
INSERT INTO esphome_data (
	time, device_id, sensor_name, value, attributes
) VALUES (
	$1,$2,$3,$4,$5
)`
)

// WriteImmediate persists a single low-volume record: an upsert for
// discovery and entity categories, a plain insert for status and
// command. Connectivity failures are retried internally before the
// error surfaces.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - rec: A classified record (not a StateRecord — those go through
//     WriteBatch)
//
// Returns:
//   - error: ErrUnsupportedRecord for state/unknown records, or
//     ErrWriteFailed after the internal retry budget is exhausted
func (s *Store) WriteImmediate(ctx context.Context, rec classify.Record) error {
	sql, args, err := immediateStatement(rec)
	if err != nil {
		return err
	}

	upsert := rec.Category() == classify.CategoryDiscovery || rec.Category() == classify.CategoryEntity

	return s.withReconnect(ctx, rec.Category().String(), func(ctx context.Context) error {
		if upsert {
			// Serialize the upsert path: two concurrent announcements
			// for the same key must not interleave.
			s.upsertMu.Lock()
			defer s.upsertMu.Unlock()
		}
		_, execErr := s.pool.Exec(ctx, sql, args...)
		return execErr
	})
}

// immediateStatement selects the statement and arguments for a record.
func immediateStatement(rec classify.Record) (string, []any, error) {
	switch r := rec.(type) {
	case classify.DiscoveryRecord:
		return upsertDiscoverySQL, discoveryArgs(r), nil
	case classify.EntityRecord:
		return upsertEntitySQL, entityArgs(r), nil
	case classify.StatusRecord:
		return insertStatusSQL, statusArgs(r), nil
	case classify.CommandRecord:
		return insertCommandSQL, commandArgs(r), nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedRecord, rec.Category())
	}
}

func discoveryArgs(r classify.DiscoveryRecord) []any {
	return []any{
		r.ReceivedAt, r.DeviceName, r.IP, r.MAC,
		r.Version, r.Platform, r.Board, r.Network,
		jsonArg(r.RawPayload),
	}
}

func entityArgs(r classify.EntityRecord) []any {
	return []any{
		r.ReceivedAt, r.UniqueID, r.DeviceName, r.ComponentType,
		r.Name, r.StateTopic, r.CommandTopic,
		jsonArg(r.RawPayload),
	}
}

func statusArgs(r classify.StatusRecord) []any {
	return []any{r.ReceivedAt, r.DeviceName, r.Status, string(r.RawPayload)}
}

func commandArgs(r classify.CommandRecord) []any {
	return []any{r.ReceivedAt, r.DeviceID, r.ComponentID, r.Command, string(r.RawPayload)}
}

func stateArgs(r classify.StateRecord) []any {
	return []any{r.ReceivedAt, r.DeviceID, r.SensorName, r.Value, jsonArg(r.Attributes)}
}

// jsonArg converts raw JSON bytes to a JSONB parameter, mapping empty
// input to NULL.
func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// WriteBatch persists a batch of state records as one multi-row write
// inside a single transaction: either every row lands or none do, so a
// partial batch can never be observed. Connectivity failures are
// retried internally (the whole transaction) before the error
// surfaces.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - recs: Batch of state records in accumulation order
//
// Returns:
//   - error: ErrWriteFailed after the internal retry budget is exhausted
func (s *Store) WriteBatch(ctx context.Context, recs []classify.StateRecord) error {
	if len(recs) == 0 {
		return nil
	}

	return s.withReconnect(ctx, "state batch", func(ctx context.Context) error {
		return s.writeBatchTx(ctx, recs)
	})
}

// writeBatchTx runs one transactional batch insert.
func (s *Store) writeBatchTx(ctx context.Context, recs []classify.StateRecord) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	batch := &pgx.Batch{}
	for i := range recs {
		batch.Queue(insertStateSQL, stateArgs(recs[i])...)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, execErr := br.Exec(); execErr != nil {
			_ = br.Close()
			err = fmt.Errorf("row %d: %w", i, execErr)
			return err
		}
	}
	if closeErr := br.Close(); closeErr != nil {
		err = fmt.Errorf("batch close: %w", closeErr)
		return err
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		err = fmt.Errorf("commit: %w", commitErr)
		return err
	}
	return nil
}
