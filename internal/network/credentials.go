package network

import "log/slog"

// Credentials identify the access point to join. The passphrase is
// never rendered by String, fmt verbs, or slog.
type Credentials struct {
	SSID       string
	Passphrase string
}

// String renders the SSID with the passphrase redacted.
func (c Credentials) String() string {
	return "ssid=" + c.SSID + " passphrase=" + c.redacted()
}

// GoString keeps %#v from leaking the passphrase.
func (c Credentials) GoString() string {
	return "network.Credentials{SSID:" + c.SSID + ", Passphrase:" + c.redacted() + "}"
}

// LogValue implements [slog.LogValuer].
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("ssid", c.SSID),
		slog.String("passphrase", c.redacted()),
	)
}

func (c Credentials) redacted() string {
	if c.Passphrase == "" {
		return "(none)"
	}
	return "[REDACTED]"
}
