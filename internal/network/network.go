// Package network provides the link-layer drivers the supervisor polls:
// a Wi-Fi driver that delegates to NetworkManager's nmcli, a probe
// driver for wired hosts that only checks reachability, and a static
// driver that always reports connected.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/tether/internal/config"
)

// Driver joins and reports on a network link.
type Driver interface {
	ConnectNetwork(ctx context.Context) error
	NetworkConnected(ctx context.Context) bool
}

// New builds the driver selected by cfg.Driver.
func New(cfg config.NetworkConfig, logger *slog.Logger) (Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case config.DriverNMCLI:
		creds := Credentials{SSID: cfg.SSID, Passphrase: cfg.Passphrase}
		n := NewNMCLI(cfg.Interface, creds, logger)
		n.timeout = time.Duration(cfg.CommandTimeoutSec) * time.Second
		return n, nil
	case config.DriverProbe:
		return NewProbe(cfg.Probe.Kind, cfg.Probe.Target,
			time.Duration(cfg.Probe.TimeoutSec)*time.Second, logger)
	case config.DriverStatic:
		return Static{}, nil
	default:
		return nil, fmt.Errorf("unknown network driver %q", cfg.Driver)
	}
}

// Static is a Driver for links managed outside tether. It always
// reports connected.
type Static struct{}

// ConnectNetwork is a no-op.
func (Static) ConnectNetwork(context.Context) error { return nil }

// NetworkConnected always returns true.
func (Static) NetworkConnected(context.Context) bool { return true }
