package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/tether/internal/config"
	"github.com/nugget/tether/internal/supervisor"
)

// Driver implements [supervisor.EndpointDriver] on top of autopaho.
type Driver struct {
	cfg         config.MQTTConfig
	instanceID  string
	statusTopic string
	device      DeviceInfo
	handler     MessageHandler
	logger      *slog.Logger

	connectTimeout time.Duration
	publishTimeout time.Duration
}

// NewDriver creates a Driver but does not connect. statusTopic is the
// topic the supervisor publishes to; it becomes the discovery sensor's
// state topic.
func NewDriver(cfg config.MQTTConfig, instanceID, statusTopic string, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		cfg:            cfg,
		instanceID:     instanceID,
		statusTopic:    statusTopic,
		device:         NewDeviceInfo(instanceID, cfg.DeviceName),
		handler:        logMessageHandler(logger),
		logger:         logger,
		connectTimeout: time.Duration(cfg.ConnectTimeoutSec) * time.Second,
		publishTimeout: time.Duration(cfg.PublishTimeoutSec) * time.Second,
	}
}

// SetMessageHandler replaces the handler for inbound messages on the
// configured subscriptions. Must be called before ConnectEndpoint.
func (d *Driver) SetMessageHandler(h MessageHandler) {
	if h != nil {
		d.handler = h
	}
}

// ConnectEndpoint connects to broker and waits for the first CONNACK,
// up to the configured connect timeout. The returned [*Session] lives
// until ctx is cancelled or Close is called.
func (d *Driver) ConnectEndpoint(ctx context.Context, broker string) (supervisor.Endpoint, error) {
	brokerURL, err := parseBroker(broker)
	if err != nil {
		return nil, err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		driver:  d,
		cancel:  cancel,
		limiter: newMessageRateLimiter(int64(d.cfg.RateLimitPerMinute), time.Minute, d.logger),
	}

	cm, err := autopaho.NewConnection(sessCtx, d.clientConfig(sessCtx, brokerURL, s))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	connCtx, connCancel := context.WithTimeout(ctx, d.connectTimeout)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// Stop autopaho's background retries; the supervisor does not
		// retry a failed endpoint connect.
		cancel()
		return nil, fmt.Errorf("mqtt connect %s: %w", brokerURL.Redacted(), err)
	}

	s.cm = cm
	if len(d.cfg.Subscriptions) > 0 {
		go s.limiter.start(sessCtx)
	}
	return s, nil
}

// clientConfig builds the autopaho configuration. Callbacks report into s.
func (d *Driver) clientConfig(ctx context.Context, brokerURL *url.URL, s *Session) autopaho.ClientConfig {
	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     uint16(d.cfg.KeepAliveSec),
		ConnectTimeout:                d.connectTimeout,
		CleanStartOnInitialConnection: true,
		WillMessage: &paho.WillMessage{
			Topic:   d.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.up.Store(true)
			d.logger.Info("mqtt connected to broker", "broker", brokerURL.Redacted())
			s.onConnectionUp(ctx, cm)
		},
		OnConnectError: func(err error) {
			s.up.Store(false)
			d.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: d.clientID(),
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				s.onPublishReceived,
			},
			OnClientError: func(err error) {
				s.up.Store(false)
				d.logger.Warn("mqtt client error", "error", err)
			},
			OnServerDisconnect: func(dc *paho.Disconnect) {
				s.up.Store(false)
				d.logger.Warn("mqtt server requested disconnect", "reason_code", dc.ReasonCode)
			},
		},
	}

	if d.cfg.Username != "" {
		cfg.ConnectUsername = d.cfg.Username
	}
	if d.cfg.Password != "" {
		cfg.ConnectPassword = []byte(d.cfg.Password)
	}

	switch brokerURL.Scheme {
	case "mqtts", "ssl", "tls", "wss":
		cfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return cfg
}

// parseBroker validates the broker URL. Unlike config validation it
// runs on whatever string the supervisor passes in.
func parseBroker(broker string) (*url.URL, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker URL: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "tcp", "mqtts", "ssl", "tls", "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported mqtt broker scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("mqtt broker URL %q has no host", broker)
	}
	return u, nil
}

// --- Identity and topic helpers ---

func (d *Driver) clientID() string {
	id := "tether-" + d.cfg.DeviceName
	if len(d.instanceID) >= 8 {
		id += "-" + d.instanceID[:8]
	}
	return id
}

func (d *Driver) baseTopic() string {
	return "tether/" + d.cfg.DeviceName
}

func (d *Driver) availabilityTopic() string {
	return d.baseTopic() + "/availability"
}

func (d *Driver) discoveryTopic() string {
	return d.cfg.DiscoveryPrefix + "/sensor/" + d.cfg.DeviceName + "/status/config"
}

// statusSensor is the discovery payload for the status message.
func (d *Driver) statusSensor() SensorConfig {
	return SensorConfig{
		Name:              "Status",
		ObjectID:          "status",
		HasEntityName:     true,
		UniqueID:          d.instanceID + "_status",
		StateTopic:        d.statusTopic,
		AvailabilityTopic: d.availabilityTopic(),
		Device:            d.device,
		Icon:              "mdi:access-point-network",
		EntityCategory:    "diagnostic",
	}
}

func (d *Driver) discoveryPayload() ([]byte, error) {
	return json.Marshal(d.statusSensor())
}
