package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// nmDeviceConnected is NM_DEVICE_STATE_ACTIVATED as reported by
// GENERAL.STATE.
const nmDeviceConnected = 100

// NMCLI joins Wi-Fi networks through NetworkManager. ConnectNetwork is
// safe to call repeatedly: nmcli reuses the existing connection profile
// for the SSID.
type NMCLI struct {
	iface   string
	creds   Credentials
	run     Runner
	timeout time.Duration
	logger  *slog.Logger
}

// NewNMCLI creates a Wi-Fi driver for iface. An empty iface lets
// NetworkManager choose the device and switches health checks to the
// global connectivity state.
func NewNMCLI(iface string, creds Credentials, logger *slog.Logger) *NMCLI {
	if logger == nil {
		logger = slog.Default()
	}
	return &NMCLI{
		iface:   iface,
		creds:   creds,
		run:     execRunner,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// ConnectNetwork asks NetworkManager to join the configured SSID.
func (n *NMCLI) ConnectNetwork(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := []string{"device", "wifi", "connect", n.creds.SSID}
	if n.creds.Passphrase != "" {
		args = append(args, "password", n.creds.Passphrase)
	}
	if n.iface != "" {
		args = append(args, "ifname", n.iface)
	}

	n.logger.Debug("joining access point", "credentials", n.creds, "interface", n.iface)

	out, err := n.run(ctx, "nmcli", args...)
	if err != nil {
		return fmt.Errorf("nmcli wifi connect %q: %w: %s", n.creds.SSID, err, n.scrub(out))
	}
	return nil
}

// NetworkConnected reports whether the managed device (or, with no
// interface configured, NetworkManager as a whole) is connected.
func (n *NMCLI) NetworkConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var (
		out []byte
		err error
	)
	if n.iface == "" {
		out, err = n.run(ctx, "nmcli", "-t", "-f", "STATE", "general")
	} else {
		out, err = n.run(ctx, "nmcli", "-t", "-f", "GENERAL.STATE", "device", "show", n.iface)
	}
	if err != nil {
		n.logger.Debug("nmcli state query failed", "interface", n.iface, "error", err)
		return false
	}

	connected, err := parseState(out, n.iface != "")
	if err != nil {
		n.logger.Debug("nmcli state unparseable", "interface", n.iface, "error", err)
		return false
	}
	return connected
}

// Addresses returns the IPv4 addresses on the managed interface.
func (n *NMCLI) Addresses(ctx context.Context) ([]string, error) {
	if n.iface == "" {
		return nil, errors.New("no interface configured")
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	out, err := n.run(ctx, "nmcli", "-t", "-f", "IP4.ADDRESS", "device", "show", n.iface)
	if err != nil {
		return nil, fmt.Errorf("nmcli device show %s: %w", n.iface, err)
	}

	var addrs []string
	for _, line := range strings.Split(string(out), "\n") {
		_, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if ok && val != "" {
			addrs = append(addrs, val)
		}
	}
	return addrs, nil
}

// parseState interprets terse nmcli output. Device output looks like
// "GENERAL.STATE:100 (connected)"; general output is a bare state word
// such as "connected" or "connected (local only)".
func parseState(out []byte, device bool) (bool, error) {
	line := strings.TrimSpace(string(bytes.SplitN(out, []byte("\n"), 2)[0]))
	if line == "" {
		return false, errors.New("empty output")
	}

	if !device {
		return line == "connected", nil
	}

	_, val, ok := strings.Cut(line, ":")
	if !ok {
		return false, fmt.Errorf("unexpected line %q", line)
	}
	code, _, _ := strings.Cut(val, " ")
	n, err := strconv.Atoi(code)
	if err != nil {
		return false, fmt.Errorf("state code %q: %w", code, err)
	}
	return n == nmDeviceConnected, nil
}

// scrub trims command output to its first line and removes the
// passphrase in case nmcli echoes it back.
func (n *NMCLI) scrub(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if n.creds.Passphrase != "" {
		s = strings.ReplaceAll(s, n.creds.Passphrase, "[REDACTED]")
	}
	return s
}
