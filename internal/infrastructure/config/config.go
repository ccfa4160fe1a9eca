package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for espsink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig contains TimescaleDB connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// MaxConns is the upper bound on pooled connections.
	MaxConns int32 `yaml:"max_conns"`

	// MinConns is the number of connections the pool keeps warm.
	MinConns int32 `yaml:"min_conns"`

	// ConnectAttempts bounds startup connection retries before the
	// process gives up and exits non-zero.
	ConnectAttempts int `yaml:"connect_attempts"`

	// ConnectRetryDelay is the pause between startup attempts (seconds).
	ConnectRetryDelay int `yaml:"connect_retry_delay"`
}

// IngestConfig contains pipeline tuning settings.
type IngestConfig struct {
	// QueueCapacity is the size of the bounded ingestion channel between
	// the bus listener and the dispatcher. A full channel drops messages
	// rather than blocking the broker's delivery path.
	QueueCapacity int `yaml:"queue_capacity"`

	// ImmediateCapacity is the size of the queue feeding the immediate
	// writer (discovery, entity, status, command records).
	ImmediateCapacity int `yaml:"immediate_capacity"`

	// DispatchTimeout is how long the dispatcher waits on a full sink
	// before dropping a message (milliseconds).
	DispatchTimeout int `yaml:"dispatch_timeout"`

	// BatchSize is the state-record count that triggers a flush.
	BatchSize int `yaml:"batch_size"`

	// FlushInterval is the maximum age of a partial batch before it is
	// flushed anyway (seconds).
	FlushInterval int `yaml:"flush_interval"`

	// FlushWorkers is the number of persistence workers draining flushed
	// batches. With more than one worker cross-batch write order is not
	// guaranteed; rows carry their own timestamps so this is acceptable.
	FlushWorkers int `yaml:"flush_workers"`

	// WriteAttempts bounds retries for a failed batch or immediate write
	// before the data is logged as lost.
	WriteAttempts int `yaml:"write_attempts"`

	// WriteBackoffInitial is the first retry delay (milliseconds).
	WriteBackoffInitial int `yaml:"write_backoff_initial"`

	// WriteBackoffMax caps the exponential retry delay (milliseconds).
	WriteBackoffMax int `yaml:"write_backoff_max"`

	// DrainTimeout is how long shutdown waits for the dispatcher to
	// drain buffered envelopes (seconds).
	DrainTimeout int `yaml:"drain_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ESPSINK_SECTION_KEY
// For example: ESPSINK_MQTT_HOST, ESPSINK_DATABASE_PASSWORD
//
// A missing file is not an error: the service runs on defaults plus
// environment overrides, which is the normal container deployment mode.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("parsing config file: %w", unmarshalErr)
		}
	case os.IsNotExist(err):
		// Defaults + env only.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with development-friendly defaults:
// a local unauthenticated broker and a local TimescaleDB instance.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "127.0.0.1",
				Port:     1883,
				ClientID: "espsink",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Host:              "localhost",
			Port:              5432,
			User:              "postgres",
			DBName:            "telemetry_db",
			SSLMode:           "disable",
			MaxConns:          4,
			MinConns:          1,
			ConnectAttempts:   5,
			ConnectRetryDelay: 3,
		},
		Ingest: IngestConfig{
			QueueCapacity:       4096,
			ImmediateCapacity:   256,
			DispatchTimeout:     250,
			BatchSize:           500,
			FlushInterval:       5,
			FlushWorkers:        1,
			WriteAttempts:       3,
			WriteBackoffInitial: 500,
			WriteBackoffMax:     5000,
			DrainTimeout:        10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ESPSINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("ESPSINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ESPSINK_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("ESPSINK_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("ESPSINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ESPSINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("ESPSINK_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("ESPSINK_DATABASE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("ESPSINK_DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("ESPSINK_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("ESPSINK_DATABASE_DBNAME"); v != "" {
		cfg.Database.DBName = v
	}

	// Ingest
	if v := os.Getenv("ESPSINK_INGEST_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.BatchSize = n
		}
	}
	if v := os.Getenv("ESPSINK_INGEST_FLUSH_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.FlushInterval = n
		}
	}

	// Logging
	if v := os.Getenv("ESPSINK_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Database validation
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errs = append(errs, "database.port must be between 1 and 65535")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}

	// Ingest validation
	if c.Ingest.QueueCapacity < 1 {
		errs = append(errs, "ingest.queue_capacity must be at least 1")
	}
	if c.Ingest.BatchSize < 1 {
		errs = append(errs, "ingest.batch_size must be at least 1")
	}
	if c.Ingest.FlushInterval < 1 {
		errs = append(errs, "ingest.flush_interval must be at least 1 second")
	}
	if c.Ingest.FlushWorkers < 1 {
		errs = append(errs, "ingest.flush_workers must be at least 1")
	}
	if c.Ingest.WriteAttempts < 1 {
		errs = append(errs, "ingest.write_attempts must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetDispatchTimeout returns the dispatcher sink timeout as a Duration.
func (c *Config) GetDispatchTimeout() time.Duration {
	return time.Duration(c.Ingest.DispatchTimeout) * time.Millisecond
}

// GetFlushInterval returns the batch age limit as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.Ingest.FlushInterval) * time.Second
}

// GetWriteBackoffInitial returns the first retry delay as a Duration.
func (c *Config) GetWriteBackoffInitial() time.Duration {
	return time.Duration(c.Ingest.WriteBackoffInitial) * time.Millisecond
}

// GetWriteBackoffMax returns the retry delay ceiling as a Duration.
func (c *Config) GetWriteBackoffMax() time.Duration {
	return time.Duration(c.Ingest.WriteBackoffMax) * time.Millisecond
}

// GetDrainTimeout returns the shutdown drain limit as a Duration.
func (c *Config) GetDrainTimeout() time.Duration {
	return time.Duration(c.Ingest.DrainTimeout) * time.Second
}

// GetConnectRetryDelay returns the startup database retry pause as a Duration.
func (c *Config) GetConnectRetryDelay() time.Duration {
	return time.Duration(c.Database.ConnectRetryDelay) * time.Second
}
