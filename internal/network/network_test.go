package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nugget/tether/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner records invocations and replies from a lookup keyed on
// the joined argument list.
type fakeRunner struct {
	calls   [][]string
	replies map[string]string
	errs    map[string]error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)
	key := strings.Join(args, " ")
	return []byte(f.replies[key]), f.errs[key]
}

func TestNMCLI_ConnectNetworkArgs(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{}
	n := NewNMCLI("wlan0", Credentials{SSID: "lab-ap", Passphrase: "hunter2"}, discardLogger())
	n.run = fr.run

	if err := n.ConnectNetwork(context.Background()); err != nil {
		t.Fatalf("ConnectNetwork() error = %v", err)
	}

	want := "nmcli device wifi connect lab-ap password hunter2 ifname wlan0"
	if len(fr.calls) != 1 || strings.Join(fr.calls[0], " ") != want {
		t.Errorf("calls = %v, want [%s]", fr.calls, want)
	}
}

func TestNMCLI_ConnectNetworkOpenAP(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{}
	n := NewNMCLI("", Credentials{SSID: "cafe"}, discardLogger())
	n.run = fr.run

	if err := n.ConnectNetwork(context.Background()); err != nil {
		t.Fatalf("ConnectNetwork() error = %v", err)
	}
	if got := strings.Join(fr.calls[0], " "); got != "nmcli device wifi connect cafe" {
		t.Errorf("call = %q", got)
	}
}

func TestNMCLI_ConnectErrorRedactsPassphrase(t *testing.T) {
	t.Parallel()
	key := "device wifi connect lab-ap password hunter2 ifname wlan0"
	fr := &fakeRunner{
		replies: map[string]string{key: "Error: bad secret hunter2\nmore detail"},
		errs:    map[string]error{key: errors.New("exit status 4")},
	}
	var logs bytes.Buffer
	n := NewNMCLI("wlan0", Credentials{SSID: "lab-ap", Passphrase: "hunter2"},
		slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	n.run = fr.run

	err := n.ConnectNetwork(context.Background())
	if err == nil {
		t.Fatal("ConnectNetwork() error = nil, want error")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Errorf("error leaks passphrase: %v", err)
	}
	if strings.Contains(err.Error(), "more detail") {
		t.Errorf("error should only carry the first output line: %v", err)
	}
	if strings.Contains(logs.String(), "hunter2") {
		t.Errorf("logs leak passphrase: %s", logs.String())
	}
}

func TestNMCLI_NetworkConnected(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		iface string
		reply string
		err   error
		want  bool
	}{
		{"device connected", "wlan0", "GENERAL.STATE:100 (connected)\n", nil, true},
		{"device connecting", "wlan0", "GENERAL.STATE:70 (connecting (getting IP configuration))\n", nil, false},
		{"device disconnected", "wlan0", "GENERAL.STATE:30 (disconnected)\n", nil, false},
		{"device query fails", "wlan0", "", errors.New("exit status 10"), false},
		{"global connected", "", "connected\n", nil, true},
		{"global local only", "", "connected (local only)\n", nil, false},
		{"global disconnected", "", "disconnected\n", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNMCLI(tt.iface, Credentials{SSID: "x"}, discardLogger())
			n.run = func(context.Context, string, ...string) ([]byte, error) {
				return []byte(tt.reply), tt.err
			}
			if got := n.NetworkConnected(context.Background()); got != tt.want {
				t.Errorf("NetworkConnected() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNMCLI_Addresses(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{replies: map[string]string{
		"-t -f IP4.ADDRESS device show wlan0": "IP4.ADDRESS[1]:192.168.1.42/24\nIP4.ADDRESS[2]:10.0.0.5/8\n",
	}}
	n := NewNMCLI("wlan0", Credentials{SSID: "x"}, discardLogger())
	n.run = fr.run

	addrs, err := n.Addresses(context.Background())
	if err != nil {
		t.Fatalf("Addresses() error = %v", err)
	}
	want := []string{"192.168.1.42/24", "10.0.0.5/8"}
	if len(addrs) != len(want) || addrs[0] != want[0] || addrs[1] != want[1] {
		t.Errorf("Addresses() = %v, want %v", addrs, want)
	}

	if _, err := NewNMCLI("", Credentials{}, nil).Addresses(context.Background()); err == nil {
		t.Error("Addresses() without interface should error")
	}
}

func TestParseState(t *testing.T) {
	t.Parallel()
	if _, err := parseState([]byte(""), true); err == nil {
		t.Error("parseState(empty) should error")
	}
	if _, err := parseState([]byte("garbage"), true); err == nil {
		t.Error("parseState(no colon) should error")
	}
	if _, err := parseState([]byte("GENERAL.STATE:abc"), true); err == nil {
		t.Error("parseState(non-numeric) should error")
	}
}

func TestCredentials_NeverRenderPassphrase(t *testing.T) {
	t.Parallel()
	c := Credentials{SSID: "lab-ap", Passphrase: "hunter2"}

	var logs bytes.Buffer
	slog.New(slog.NewTextHandler(&logs, nil)).Info("join", "credentials", c)
	slog.New(slog.NewJSONHandler(&logs, nil)).Info("join", "credentials", c)

	rendered := []string{
		c.String(),
		fmt.Sprintf("%v", c),
		fmt.Sprintf("%+v", c),
		fmt.Sprintf("%#v", c),
		logs.String(),
	}
	for _, s := range rendered {
		if strings.Contains(s, "hunter2") {
			t.Errorf("passphrase leaked in %q", s)
		}
		if !strings.Contains(s, "lab-ap") {
			t.Errorf("ssid missing from %q", s)
		}
	}

	if got := (Credentials{SSID: "open"}).String(); !strings.Contains(got, "(none)") {
		t.Errorf("open network String() = %q, want (none) marker", got)
	}
}

func TestProbe_TCP(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	p, err := NewProbe("tcp", ln.Addr().String(), time.Second, discardLogger())
	if err != nil {
		t.Fatalf("NewProbe() error = %v", err)
	}
	if !p.NetworkConnected(context.Background()) {
		t.Error("NetworkConnected() = false with listener up")
	}

	addr := ln.Addr().String()
	ln.Close()
	p2, _ := NewProbe("tcp", addr, 200*time.Millisecond, discardLogger())
	if p2.NetworkConnected(context.Background()) {
		t.Error("NetworkConnected() = true after listener closed")
	}
	if err := p2.ConnectNetwork(context.Background()); err != nil {
		t.Errorf("ConnectNetwork() error = %v, want nil", err)
	}
}

func TestNewProbe_Validation(t *testing.T) {
	t.Parallel()
	if _, err := NewProbe("udp", "host:1", time.Second, nil); err == nil {
		t.Error("NewProbe(udp) should error")
	}
	if _, err := NewProbe("tcp", "", time.Second, nil); err == nil {
		t.Error("NewProbe with empty target should error")
	}
	p, err := NewProbe("icmp", "192.0.2.1", 0, nil)
	if err != nil {
		t.Fatalf("NewProbe(icmp) error = %v", err)
	}
	if p.timeout != 2*time.Second {
		t.Errorf("default timeout = %v, want 2s", p.timeout)
	}
}

func TestNew_SelectsDriver(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cfg     config.NetworkConfig
		want    string
		wantErr bool
	}{
		{config.NetworkConfig{Driver: config.DriverNMCLI, SSID: "a", CommandTimeoutSec: 5}, "*network.NMCLI", false},
		{config.NetworkConfig{Driver: config.DriverProbe, Probe: config.ProbeConfig{Kind: "tcp", Target: "h:1"}}, "*network.Probe", false},
		{config.NetworkConfig{Driver: config.DriverStatic}, "network.Static", false},
		{config.NetworkConfig{Driver: "ppp"}, "", true},
	}
	for _, tt := range tests {
		d, err := New(tt.cfg, discardLogger())
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.cfg.Driver, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && fmt.Sprintf("%T", d) != tt.want {
			t.Errorf("New(%q) = %T, want %s", tt.cfg.Driver, d, tt.want)
		}
	}

	d, _ := New(config.NetworkConfig{Driver: config.DriverNMCLI, SSID: "a", CommandTimeoutSec: 5}, nil)
	if got := d.(*NMCLI).timeout; got != 5*time.Second {
		t.Errorf("nmcli timeout = %v, want 5s", got)
	}
}

func TestStatic(t *testing.T) {
	t.Parallel()
	var s Static
	if err := s.ConnectNetwork(context.Background()); err != nil {
		t.Errorf("ConnectNetwork() error = %v", err)
	}
	if !s.NetworkConnected(context.Background()) {
		t.Error("NetworkConnected() = false")
	}
}
