package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fernvale/espsink/internal/infrastructure/config"
)

// Timeouts and retry budget for store operations.
const (
	// connectTimeout is the timeout for verifying database connectivity.
	connectTimeout = 5 * time.Second

	// reconnectAttempts is how many times a write is retried internally
	// on a connectivity error before the failure surfaces to the caller.
	reconnectAttempts = 3

	// reconnectDelay is the pause between internal reconnection attempts.
	reconnectDelay = 1 * time.Second
)

// Store owns the TimescaleDB connection pool and all database I/O.
//
// Transient connectivity failures are absorbed here: a write is retried
// with a fresh connection up to a bounded budget before the error
// surfaces, at which point the caller applies its own retry/drop
// policy.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The upsert path is serialized internally so concurrent
//     re-announcements of the same device cannot race on one key.
type Store struct {
	pool *pgxpool.Pool

	// upsertMu serializes discovery/entity upserts.
	upsertMu sync.Mutex

	// logger for retry/reconnect logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect establishes the connection pool and verifies it with a ping.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Database configuration from config.yaml
//
// Returns:
//   - *Store: Connected store ready for use
//   - error: If the pool cannot be created or the ping fails
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing connection string: %w", ErrConnectionFailed, err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Store{pool: pool}, nil
}

// connString builds a postgres:// URL from the config.
func connString(cfg config.DatabaseConfig) string {
	connURL := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.DBName,
	}

	if cfg.User != "" {
		if cfg.Password != "" {
			connURL.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			connURL.User = url.User(cfg.User)
		}
	}

	query := connURL.Query()
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	query.Set("sslmode", sslMode)
	query.Set("application_name", "espsink")
	connURL.RawQuery = query.Encode()

	return connURL.String()
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// HealthCheck verifies the database is reachable.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	return nil
}

// SetLogger sets a logger for reconnect/retry logging.
func (s *Store) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (s *Store) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// withReconnect runs op, retrying on connectivity errors with a fresh
// ping in between, up to the bounded internal budget. Server-side
// errors (constraint violations, bad SQL) are never retried: the
// server answered, so the connection is fine and a retry cannot help.
func (s *Store) withReconnect(ctx context.Context, name string, op func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !isConnectivityError(err) {
			return fmt.Errorf("%w: %s: %w", ErrWriteFailed, name, err)
		}

		if logger := s.getLogger(); logger != nil {
			logger.Warn("database connectivity error, reconnecting",
				"op", name,
				"attempt", attempt,
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrWriteFailed, name, ctx.Err())
		case <-time.After(reconnectDelay):
		}

		// A successful ping re-establishes pool connections; a failed
		// one just burns an attempt.
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		_ = s.pool.Ping(pingCtx)
		cancel()
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrWriteFailed, name, reconnectAttempts, err)
}

// isConnectivityError reports whether err looks like a transport
// problem rather than a server-reported statement failure.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	// A PgError means the server processed the statement and rejected it.
	return !errors.As(err, &pgErr)
}
