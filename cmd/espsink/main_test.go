package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("ESPSINK_CONFIG", "")

	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("ESPSINK_CONFIG", "/etc/espsink/config.yaml")

	if got := getConfigPath(); got != "/etc/espsink/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
}

// TestRun_MalformedConfig verifies run fails fast on a config file that
// does not parse, before any broker or database connection is attempted.
func TestRun_MalformedConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("mqtt: [broken"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("ESPSINK_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail on malformed config")
	}
	if !strings.Contains(err.Error(), "config") {
		t.Errorf("run() error = %v, want config load failure", err)
	}
}

// TestRun_InvalidConfig verifies run fails fast on a config that parses
// but does not validate.
func TestRun_InvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
mqtt:
  qos: 7
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("ESPSINK_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail on invalid config")
	}
	if !strings.Contains(err.Error(), "qos") {
		t.Errorf("run() error = %v, want qos validation failure", err)
	}
}
