package bus

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/fernvale/espsink/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "espsink-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "ingest"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("len(Servers) = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
	}
	if opts.ClientID != "espsink-test" {
		t.Errorf("ClientID = %q, want espsink-test", opts.ClientID)
	}
	if opts.Username != "ingest" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want ingest/secret", opts.Username, opts.Password)
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if !opts.ConnectRetry {
		t.Error("ConnectRetry = false, want true")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	// Pure consumer: no Last Will.
	if opts.WillEnabled {
		t.Error("WillEnabled = true, want false")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
		t.Errorf("broker URL = %q, want ssl://127.0.0.1:8883", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig = nil, want configured")
	}
	if opts.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("TLSConfig.MinVersion = %d, want TLS 1.2", opts.TLSConfig.MinVersion)
	}
}

func TestBuildClientOptions_NoAuthWithoutUsername(t *testing.T) {
	opts := buildClientOptions(testConfig())

	if opts.Username != "" || opts.Password != "" {
		t.Errorf("credentials = %q/%q, want empty", opts.Username, opts.Password)
	}
}

func TestListener_EnqueueStampsAndDelivers(t *testing.T) {
	l := NewListener(nil, 1, 4)

	before := time.Now().UTC()
	l.enqueue("d1/sensor/temp/state", []byte("21.5"))
	after := time.Now().UTC()

	select {
	case env := <-l.Envelopes():
		if env.Topic != "d1/sensor/temp/state" {
			t.Errorf("Topic = %q, want d1/sensor/temp/state", env.Topic)
		}
		if string(env.Payload) != "21.5" {
			t.Errorf("Payload = %q, want 21.5", env.Payload)
		}
		if env.ReceivedAt.Before(before) || env.ReceivedAt.After(after) {
			t.Errorf("ReceivedAt = %v, want within [%v, %v]", env.ReceivedAt, before, after)
		}
	default:
		t.Fatal("envelope not enqueued")
	}
}

func TestListener_EnqueuePreservesOrder(t *testing.T) {
	l := NewListener(nil, 1, 8)

	l.enqueue("d1/status", []byte("online"))
	l.enqueue("d1/status", []byte("offline"))

	for _, want := range []string{"online", "offline"} {
		env := <-l.Envelopes()
		if string(env.Payload) != want {
			t.Errorf("Payload = %q, want %q (order violated)", env.Payload, want)
		}
	}
}

func TestListener_EnqueueDropsWhenFull(t *testing.T) {
	l := NewListener(nil, 1, 2)

	for i := 0; i < 5; i++ {
		l.enqueue("d1/status", []byte("online"))
	}

	if got := l.OverflowCount(); got != 3 {
		t.Errorf("OverflowCount() = %d, want 3", got)
	}
	if got := len(l.ingest); got != 2 {
		t.Errorf("buffered envelopes = %d, want 2", got)
	}
}

func TestCategoryTopics(t *testing.T) {
	want := []string{
		"esphome/discover/#",
		"homeassistant/#",
		"+/status",
		"+/+/+/command",
		"+/+/+/state",
	}

	if len(categoryTopics) != len(want) {
		t.Fatalf("len(categoryTopics) = %d, want %d", len(categoryTopics), len(want))
	}
	for i, topic := range want {
		if categoryTopics[i] != topic {
			t.Errorf("categoryTopics[%d] = %q, want %q", i, categoryTopics[i], topic)
		}
	}
}
