// Package store provides TimescaleDB persistence for espsink.
//
// This package manages:
//   - The pgx connection pool and its lifecycle
//   - Idempotent schema setup, including hypertable registration for
//     the high-frequency state table
//   - Upserts for re-announceable metadata (discovery, entity) and
//     append-only inserts for facts (status, command, state)
//   - Transactional multi-row batch writes for state updates
//   - Internal reconnection with backoff on connectivity errors
//
// Security Considerations:
//   - All statements use parameterised queries (no SQL injection)
//   - Credentials come from configuration/environment, never literals
//
// Failure model: transport errors are retried here within a bounded
// budget; only after that does the caller see ErrWriteFailed and apply
// its own retry/drop policy. Server-reported statement errors surface
// immediately — retrying them cannot succeed.
//
// Usage:
//
//	st, err := store.Connect(ctx, cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	if err := st.EnsureSchema(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
