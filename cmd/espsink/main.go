// espsink - ESPHome MQTT to TimescaleDB ingestion service
//
// espsink subscribes to the MQTT topics ESPHome devices publish on,
// classifies every message by topic shape, and persists the result into
// a five-table TimescaleDB schema with the high-frequency state table
// registered as a hypertable. It is a pure consumer: it never publishes
// to the bus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fernvale/espsink/internal/bus"
	"github.com/fernvale/espsink/internal/classify"
	"github.com/fernvale/espsink/internal/infrastructure/config"
	"github.com/fernvale/espsink/internal/infrastructure/logging"
	"github.com/fernvale/espsink/internal/ingest"
	"github.com/fernvale/espsink/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// The only unrecoverable failure is the startup path: reaching the
// database and establishing the schema within the bounded retry budget.
// Everything after that degrades and recovers without exiting.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting espsink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath)

	// Connect to TimescaleDB with the bounded startup retry budget,
	// then ensure the schema. Failure here is fatal.
	st, err := connectStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database pool")
		st.Close()
	}()
	st.SetLogger(log.With("component", "store"))

	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	log.Info("database schema ready",
		"database", cfg.Database.DBName,
		"hypertable", "esphome_data",
	)

	// Build the pipeline: queues, counters, writers, accumulator,
	// dispatcher. Writers and accumulator start before the bus so no
	// message can arrive with nowhere to go.
	counters := &ingest.Counters{}
	policy := ingest.RetryPolicy{
		Attempts:       cfg.Ingest.WriteAttempts,
		BackoffInitial: cfg.GetWriteBackoffInitial(),
		BackoffMax:     cfg.GetWriteBackoffMax(),
	}

	immediateCh := make(chan classify.Record, cfg.Ingest.ImmediateCapacity)
	stateCh := make(chan classify.StateRecord, cfg.Ingest.BatchSize)

	// Writers keep draining during shutdown; their context is only a
	// backstop against retry loops outliving the process.
	writeCtx, cancelWrites := context.WithCancel(context.Background())
	defer cancelWrites()

	var writers sync.WaitGroup

	immediateWriter := ingest.NewImmediateWriter(immediateCh, st, policy, counters, log.With("component", "immediate_writer"))
	writers.Add(1)
	go func() {
		defer writers.Done()
		immediateWriter.Run(writeCtx)
	}()

	accumulator := ingest.NewAccumulator(stateCh, cfg.Ingest.BatchSize, cfg.GetFlushInterval(), log.With("component", "accumulator"))
	var accumulatorDone sync.WaitGroup
	accumulatorDone.Add(1)
	go func() {
		defer accumulatorDone.Done()
		accumulator.Run()
	}()

	batchLog := log.With("component", "batch_writer")
	for i := 0; i < cfg.Ingest.FlushWorkers; i++ {
		w := ingest.NewBatchWriter(accumulator.Batches(), st, policy, counters, batchLog)
		writers.Add(1)
		go func() {
			defer writers.Done()
			w.Run(writeCtx)
		}()
	}

	// Connect to the MQTT broker and subscribe the category wildcards.
	client, err := bus.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	client.SetLogger(log.With("component", "bus"))
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected, reconnecting with backoff", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	listener := bus.NewListener(client, byte(cfg.MQTT.QoS), cfg.Ingest.QueueCapacity)
	if err := listener.Start(); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	log.Info("subscriptions established", "count", client.SubscriptionCount())

	// Dispatcher loop: the heart of the pipeline.
	dispatcher := ingest.NewDispatcher(
		listener.Envelopes(),
		immediateCh,
		stateCh,
		cfg.GetDispatchTimeout(),
		cfg.GetDrainTimeout(),
		counters,
		log.With("component", "dispatcher"),
	)

	var dispatcherDone sync.WaitGroup
	dispatcherDone.Add(1)
	go func() {
		defer dispatcherDone.Done()
		dispatcher.Run(ctx)
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, st, client); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed, ingesting")

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutdown signal received")

	// Orderly shutdown: stop intake first, let the dispatcher drain
	// the ingestion channel up to its deadline, then close the queues
	// so the accumulator performs its final flush and the writers
	// finish the remaining work.
	if closeErr := client.Close(); closeErr != nil {
		log.Error("error closing MQTT", "error", closeErr)
	}

	dispatcherDone.Wait()
	close(stateCh)
	close(immediateCh)
	accumulatorDone.Wait()
	writers.Wait()

	snapshot := counters.Snapshot()
	log.Info("pipeline stopped",
		append([]any{"overflow_drops", listener.OverflowCount()}, snapshot.LogArgs()...)...,
	)

	return nil
}

// connectStore dials the database with the configured bounded retry
// budget. Exhausting the budget is an unrecoverable startup failure.
func connectStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (*store.Store, error) {
	attempts := cfg.Database.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		st, err := store.Connect(ctx, cfg.Database)
		if err == nil {
			log.Info("database connected",
				"host", cfg.Database.Host,
				"port", cfg.Database.Port,
				"database", cfg.Database.DBName,
			)
			return st, nil
		}
		lastErr = err
		log.Warn("database connection failed",
			"attempt", attempt,
			"of", attempts,
			"error", err,
		)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("connecting to database: %w", ctx.Err())
			case <-time.After(cfg.GetConnectRetryDelay()):
			}
		}
	}
	return nil, fmt.Errorf("connecting to database after %d attempts: %w", attempts, lastErr)
}

// getConfigPath returns the configuration file path.
// Uses ESPSINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ESPSINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, st *store.Store, client *bus.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := st.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := client.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}
