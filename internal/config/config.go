// Package config handles tether configuration loading.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/tether/config.yaml, /etc/tether/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tether", "config.yaml"))
	}

	paths = append(paths, "/etc/tether/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all tether configuration.
type Config struct {
	Network   NetworkConfig `yaml:"network"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	Publish   PublishConfig `yaml:"publish"`
	Metrics   MetricsConfig `yaml:"metrics"`
	DataDir   string        `yaml:"data_dir"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"` // text (default) or json
}

// Network driver names accepted in network.driver.
const (
	DriverNMCLI  = "nmcli"
	DriverProbe  = "probe"
	DriverStatic = "static"
)

// NetworkConfig selects and configures the network driver.
type NetworkConfig struct {
	// Driver is one of nmcli, probe, or static.
	Driver string `yaml:"driver"`
	// Interface is the device to manage (e.g. wlan0). Empty lets
	// NetworkManager pick.
	Interface  string `yaml:"interface"`
	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase"`
	// PollIntervalSec is the delay between health polls (default 1).
	PollIntervalSec int `yaml:"poll_interval_sec"`
	// CommandTimeoutSec bounds each nmcli invocation (default 30).
	CommandTimeoutSec int         `yaml:"command_timeout_sec"`
	Probe             ProbeConfig `yaml:"probe"`
}

// ProbeConfig configures the reachability check used by the probe driver.
type ProbeConfig struct {
	Kind       string `yaml:"kind"`   // tcp (default) or icmp
	Target     string `yaml:"target"` // host:port for tcp, host for icmp
	TimeoutSec int    `yaml:"timeout_sec"`
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	DeviceName string `yaml:"device_name"`
	// DiscoveryPrefix enables Home Assistant discovery when non-empty.
	DiscoveryPrefix    string               `yaml:"discovery_prefix"`
	KeepAliveSec       int                  `yaml:"keep_alive_sec"`
	ConnectTimeoutSec  int                  `yaml:"connect_timeout_sec"`
	PublishTimeoutSec  int                  `yaml:"publish_timeout_sec"`
	Subscriptions      []SubscriptionConfig `yaml:"subscriptions"`
	RateLimitPerMinute int                  `yaml:"rate_limit_per_minute"`
}

// SubscriptionConfig is a topic filter logged on receipt.
type SubscriptionConfig struct {
	Topic string `yaml:"topic"`
	QoS   int    `yaml:"qos"`
}

// PublishConfig describes the periodic status message.
type PublishConfig struct {
	Topic string `yaml:"topic"`
	// Payload is a format string with one %d verb for the sequence number.
	Payload     string `yaml:"payload"`
	IntervalSec int    `yaml:"interval_sec"`
	QoS         int    `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
	// OnFailure is fatal (default) or skip.
	OnFailure string `yaml:"on_failure"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Load reads configuration from a YAML file, expands environment
// variables, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration. Keys absent from the YAML
// file keep these values, so explicit zeroes (qos: 0, retain: false)
// survive unmarshalling.
func Default() *Config {
	return &Config{
		DataDir:   "./data",
		LogLevel:  "info",
		LogFormat: "text",
		Network: NetworkConfig{
			Driver:            DriverNMCLI,
			PollIntervalSec:   1,
			CommandTimeoutSec: 30,
			Probe: ProbeConfig{
				Kind:       "tcp",
				TimeoutSec: 2,
			},
		},
		MQTT: MQTTConfig{
			Broker:             "mqtt://broker.hivemq.com:1883",
			DeviceName:         "tether",
			KeepAliveSec:       30,
			ConnectTimeoutSec:  30,
			PublishTimeoutSec:  10,
			RateLimitPerMinute: 600,
		},
		Publish: PublishConfig{
			Topic:       "status",
			Payload:     "Hello! i = %d",
			IntervalSec: 10,
			QoS:         1,
			Retain:      true,
			OnFailure:   "fatal",
		},
		Metrics: MetricsConfig{
			Address: ":9100",
		},
	}
}

// applyDefaults fills fields a config file explicitly blanked.
func (c *Config) applyDefaults() {
	d := Default()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.Network.PollIntervalSec <= 0 {
		c.Network.PollIntervalSec = d.Network.PollIntervalSec
	}
	if c.Network.CommandTimeoutSec <= 0 {
		c.Network.CommandTimeoutSec = d.Network.CommandTimeoutSec
	}
	if c.Network.Probe.Kind == "" {
		c.Network.Probe.Kind = d.Network.Probe.Kind
	}
	if c.Network.Probe.TimeoutSec <= 0 {
		c.Network.Probe.TimeoutSec = d.Network.Probe.TimeoutSec
	}
	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = d.MQTT.DeviceName
	}
	if c.MQTT.KeepAliveSec <= 0 {
		c.MQTT.KeepAliveSec = d.MQTT.KeepAliveSec
	}
	if c.MQTT.ConnectTimeoutSec <= 0 {
		c.MQTT.ConnectTimeoutSec = d.MQTT.ConnectTimeoutSec
	}
	if c.MQTT.PublishTimeoutSec <= 0 {
		c.MQTT.PublishTimeoutSec = d.MQTT.PublishTimeoutSec
	}
	if c.MQTT.RateLimitPerMinute <= 0 {
		c.MQTT.RateLimitPerMinute = d.MQTT.RateLimitPerMinute
	}
	if c.Publish.OnFailure == "" {
		c.Publish.OnFailure = d.Publish.OnFailure
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = d.Metrics.Address
	}
}

// Validate checks the configuration for errors that would only surface
// once the supervisor is running. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q invalid (expected text or json)", c.LogFormat))
	}

	switch c.Network.Driver {
	case DriverNMCLI:
		if c.Network.SSID == "" {
			errs = append(errs, errors.New("network.ssid is required for the nmcli driver"))
		}
	case DriverProbe:
		if c.Network.Probe.Target == "" {
			errs = append(errs, errors.New("network.probe.target is required for the probe driver"))
		}
		if k := c.Network.Probe.Kind; k != "tcp" && k != "icmp" {
			errs = append(errs, fmt.Errorf("network.probe.kind %q invalid (expected tcp or icmp)", k))
		}
	case DriverStatic:
	default:
		errs = append(errs, fmt.Errorf("network.driver %q invalid (expected nmcli, probe, or static)", c.Network.Driver))
	}

	if err := validateBroker(c.MQTT.Broker); err != nil {
		errs = append(errs, err)
	}
	if strings.ContainsAny(c.MQTT.DeviceName, "/+# ") {
		errs = append(errs, fmt.Errorf("mqtt.device_name %q must not contain '/', '+', '#', or spaces", c.MQTT.DeviceName))
	}
	for i, s := range c.MQTT.Subscriptions {
		if s.Topic == "" {
			errs = append(errs, fmt.Errorf("mqtt.subscriptions[%d].topic is empty", i))
		}
		if s.QoS < 0 || s.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.subscriptions[%d].qos %d invalid", i, s.QoS))
		}
	}

	if c.Publish.Topic == "" {
		errs = append(errs, errors.New("publish.topic is required"))
	} else if strings.ContainsAny(c.Publish.Topic, "+#") {
		errs = append(errs, fmt.Errorf("publish.topic %q must not contain wildcards", c.Publish.Topic))
	}
	if !strings.Contains(c.Publish.Payload, "%d") {
		errs = append(errs, fmt.Errorf("publish.payload %q must contain a %%d verb", c.Publish.Payload))
	}
	if c.Publish.IntervalSec <= 0 {
		errs = append(errs, fmt.Errorf("publish.interval_sec must be positive, got %d", c.Publish.IntervalSec))
	}
	if c.Publish.QoS < 0 || c.Publish.QoS > 2 {
		errs = append(errs, fmt.Errorf("publish.qos %d invalid (expected 0, 1, or 2)", c.Publish.QoS))
	}
	if c.Publish.OnFailure != "fatal" && c.Publish.OnFailure != "skip" {
		errs = append(errs, fmt.Errorf("publish.on_failure %q invalid (expected fatal or skip)", c.Publish.OnFailure))
	}

	return errors.Join(errs...)
}

// validateBroker checks that the broker URL uses a scheme the MQTT
// client can dial.
func validateBroker(broker string) error {
	if broker == "" {
		return errors.New("mqtt.broker is required")
	}
	u, err := url.Parse(broker)
	if err != nil {
		return fmt.Errorf("mqtt.broker: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "tcp", "mqtts", "ssl", "tls", "ws", "wss":
	default:
		return fmt.Errorf("mqtt.broker scheme %q unsupported", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("mqtt.broker %q has no host", broker)
	}
	return nil
}
