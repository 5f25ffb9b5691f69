package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Probe is a Driver for links tether does not manage (Ethernet, a host
// already on Wi-Fi). ConnectNetwork does nothing; NetworkConnected
// checks that Target is reachable.
type Probe struct {
	kind    string
	target  string
	timeout time.Duration
	logger  *slog.Logger
	seq     int
}

// NewProbe creates a reachability driver. kind is "tcp" (dial
// target as host:port) or "icmp" (echo request to target host, using
// an unprivileged datagram socket).
func NewProbe(kind, target string, timeout time.Duration, logger *slog.Logger) (*Probe, error) {
	if kind != "tcp" && kind != "icmp" {
		return nil, fmt.Errorf("unknown probe kind %q", kind)
	}
	if target == "" {
		return nil, errors.New("probe target must not be empty")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{kind: kind, target: target, timeout: timeout, logger: logger}, nil
}

// ConnectNetwork is a no-op; the link is managed elsewhere.
func (p *Probe) ConnectNetwork(context.Context) error { return nil }

// NetworkConnected reports whether the probe target answered within
// the timeout.
func (p *Probe) NetworkConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var err error
	switch p.kind {
	case "icmp":
		err = p.ping(ctx)
	default:
		err = p.dial(ctx)
	}
	if err != nil {
		p.logger.Debug("network probe failed", "kind", p.kind, "target", p.target, "error", err)
		return false
	}
	return true
}

func (p *Probe) dial(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.target)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p *Probe) ping(ctx context.Context) error {
	dst, err := net.DefaultResolver.LookupIPAddr(ctx, p.target)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", p.target, err)
	}
	var ip net.IP
	for _, a := range dst {
		if v4 := a.IP.To4(); v4 != nil {
			ip = v4
			break
		}
	}
	if ip == nil {
		return fmt.Errorf("no IPv4 address for %s", p.target)
	}

	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return fmt.Errorf("icmp listen: %w", err)
	}
	defer conn.Close()

	p.seq = (p.seq + 1) & 0xffff
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: 0, Seq: p.seq, Data: []byte("tether")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("marshal echo: %w", err)
	}
	if _, err := conn.WriteTo(wb, &net.UDPAddr{IP: ip}); err != nil {
		return fmt.Errorf("send echo: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return err
		}
	}

	rb := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			return fmt.Errorf("await echo reply: %w", err)
		}
		rm, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), rb[:n])
		if err != nil {
			continue
		}
		if rm.Type == ipv4.ICMPTypeEchoReply {
			return nil
		}
	}
}
