package status

import (
	"fmt"
	"time"

	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/pkg/security"
)

// NATSSubjectsConfig lists the NATS subjects the gateway relays to connected
// websocket clients. The broker publishes FSM transitions and component logs
// on these subjects; the gateway never writes to them.
type NATSSubjectsConfig struct {
	// StatusUpdates is the subject (with wildcard) the broker publishes
	// broker/node FSM transitions on, e.g. "hermes.status.>"
	StatusUpdates string `json:"status_updates"`

	// Logs is the subject component.Logger publishes structured log
	// entries on, e.g. "hermes.logs.>"
	Logs string `json:"logs"`
}

// DefaultNATSSubjects returns the conventional subject tree used by the
// broker and node FSMs.
func DefaultNATSSubjects() NATSSubjectsConfig {
	return NATSSubjectsConfig{
		StatusUpdates: "hermes.status.>",
		Logs:          "hermes.logs.>",
	}
}

// Config holds configuration for the status gateway HTTP/websocket server.
type Config struct {
	// BindAddress is the address the HTTP server listens on, e.g. ":8090"
	BindAddress string `json:"bind_address"`

	// WebSocketPath is the URL path for the live-push websocket endpoint
	WebSocketPath string `json:"websocket_path"`

	// StatusPath is the URL path for the JSON status snapshot endpoint
	StatusPath string `json:"status_path"`

	// MetricsPath is the URL path the Prometheus metrics registry is
	// exposed on, when the gateway is constructed with a registry.
	MetricsPath string `json:"metrics_path,omitempty"`

	// EnableCORS enables CORS headers (requires explicit CORSOrigins)
	EnableCORS bool `json:"enable_cors"`

	// CORSOrigins lists allowed CORS origins, required when EnableCORS is true
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// TimeoutStr is the HTTP read/write timeout, e.g. "30s"
	TimeoutStr string `json:"timeout,omitempty"`

	// NATSSubjects configures which NATS subjects are relayed to clients
	NATSSubjects NATSSubjectsConfig `json:"nats_subjects"`

	// TLS, when Enabled, serves the status/websocket endpoints over HTTPS
	// using pkg/tlsutil, optionally with mTLS client-certificate checks.
	// Mode "acme" obtains and auto-renews a certificate via pkg/acme instead
	// of reading CertFile/KeyFile from disk.
	TLS security.ServerTLSConfig `json:"tls,omitempty"`

	timeout time.Duration
}

// Validate checks the configuration and fills in parsed fields.
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "bind_address is required")
	}

	if c.WebSocketPath == "" {
		c.WebSocketPath = "/ws"
	}
	if c.StatusPath == "" {
		c.StatusPath = "/status"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}

	if c.TimeoutStr == "" {
		c.timeout = 30 * time.Second
	} else {
		d, err := time.ParseDuration(c.TimeoutStr)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", fmt.Sprintf("invalid timeout %q", c.TimeoutStr))
		}
		c.timeout = d
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"enable_cors requires explicit cors_origins (use [\"*\"] for development only)")
	}

	if c.NATSSubjects.StatusUpdates == "" && c.NATSSubjects.Logs == "" {
		c.NATSSubjects = DefaultNATSSubjects()
	}

	if c.TLS.Enabled && c.TLS.Mode != "acme" {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"tls.enabled requires cert_file and key_file unless tls.mode is \"acme\"")
		}
	}
	if c.TLS.Enabled && c.TLS.Mode == "acme" && len(c.TLS.ACME.Domains) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"tls.mode \"acme\" requires acme.domains")
	}

	return nil
}

// Timeout returns the parsed HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return c.timeout
}

// DefaultConfig returns sensible defaults for the status gateway.
func DefaultConfig() Config {
	return Config{
		BindAddress:   ":8090",
		WebSocketPath: "/ws",
		StatusPath:    "/status",
		MetricsPath:   "/metrics",
		EnableCORS:    false,
		TimeoutStr:    "30s",
		NATSSubjects:  DefaultNATSSubjects(),
	}
}
