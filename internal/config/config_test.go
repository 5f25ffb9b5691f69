package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const minimalYAML = `
network:
  ssid: lab-ap
  passphrase: hunter2
`

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(minimalYAML), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Network.Driver != DriverNMCLI {
		t.Errorf("network.driver = %q, want %q", cfg.Network.Driver, DriverNMCLI)
	}
	if cfg.Network.PollIntervalSec != 1 {
		t.Errorf("network.poll_interval_sec = %d, want 1", cfg.Network.PollIntervalSec)
	}
	if cfg.MQTT.Broker != "mqtt://broker.hivemq.com:1883" {
		t.Errorf("mqtt.broker = %q", cfg.MQTT.Broker)
	}
	if cfg.Publish.Topic != "status" || cfg.Publish.Payload != "Hello! i = %d" {
		t.Errorf("publish = %+v", cfg.Publish)
	}
	if cfg.Publish.IntervalSec != 10 || cfg.Publish.QoS != 1 || !cfg.Publish.Retain {
		t.Errorf("publish cadence = %+v, want 10s qos1 retained", cfg.Publish)
	}
	if cfg.Publish.OnFailure != "fatal" {
		t.Errorf("publish.on_failure = %q, want fatal", cfg.Publish.OnFailure)
	}
}

func TestLoad_ExplicitZeroValuesSurvive(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML+`
publish:
  qos: 0
  retain: false
`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Publish.QoS != 0 {
		t.Errorf("publish.qos = %d, want 0", cfg.Publish.QoS)
	}
	if cfg.Publish.Retain {
		t.Error("publish.retain = true, want false")
	}
	if cfg.Publish.Topic != "status" {
		t.Errorf("publish.topic = %q, want default", cfg.Publish.Topic)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TETHER_TEST_PASS", "secret123")
	path := writeConfig(t, "network:\n  ssid: lab\n  passphrase: ${TETHER_TEST_PASS}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Network.Passphrase != "secret123" {
		t.Errorf("passphrase = %q, want %q", cfg.Network.Passphrase, "secret123")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "network: [unclosed")); err == nil {
		t.Fatal("Load with invalid YAML should error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"nmcli without ssid", func(c *Config) { c.Network.SSID = "" }, "network.ssid"},
		{"unknown driver", func(c *Config) { c.Network.Driver = "ppp" }, "network.driver"},
		{"probe without target", func(c *Config) { c.Network.Driver = DriverProbe }, "network.probe.target"},
		{"probe bad kind", func(c *Config) {
			c.Network.Driver = DriverProbe
			c.Network.Probe.Target = "1.1.1.1:53"
			c.Network.Probe.Kind = "udp"
		}, "network.probe.kind"},
		{"static", func(c *Config) { c.Network.Driver = DriverStatic; c.Network.SSID = "" }, ""},
		{"missing broker", func(c *Config) { c.MQTT.Broker = "" }, "mqtt.broker is required"},
		{"bad scheme", func(c *Config) { c.MQTT.Broker = "http://example.com" }, "scheme"},
		{"no host", func(c *Config) { c.MQTT.Broker = "mqtt://" }, "no host"},
		{"tls broker", func(c *Config) { c.MQTT.Broker = "mqtts://broker:8883" }, ""},
		{"device name slash", func(c *Config) { c.MQTT.DeviceName = "a/b" }, "device_name"},
		{"subscription qos", func(c *Config) {
			c.MQTT.Subscriptions = []SubscriptionConfig{{Topic: "cmd/#", QoS: 5}}
		}, "subscriptions[0].qos"},
		{"empty topic", func(c *Config) { c.Publish.Topic = "" }, "publish.topic"},
		{"wildcard topic", func(c *Config) { c.Publish.Topic = "a/#" }, "wildcards"},
		{"payload without verb", func(c *Config) { c.Publish.Payload = "hello" }, "%d"},
		{"zero interval", func(c *Config) { c.Publish.IntervalSec = 0 }, "interval_sec"},
		{"bad qos", func(c *Config) { c.Publish.QoS = 3 }, "publish.qos"},
		{"bad policy", func(c *Config) { c.Publish.OnFailure = "retry" }, "on_failure"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Network.SSID = "lab-ap"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{" trace ", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level:       LevelTrace,
		ReplaceAttr: ReplaceLogLevelNames,
	}))
	logger.Log(t.Context(), LevelTrace, "poll")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("output %q does not contain level=TRACE", buf.String())
	}
}
