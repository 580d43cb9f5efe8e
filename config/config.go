package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/emedia-lab/hermes/gateway/status"
	"github.com/emedia-lab/hermes/pkg/security"
)

// NodeConfig describes one Node's inventory entry under config.nodes[]
// (spec.md §6): role, driver selection, the streams it owns, and
// driver-specific parameters passed through verbatim.
type NodeConfig struct {
	NodeID         string         `json:"node_id"`
	Role           string         `json:"role"` // "producer", "consumer", "pipeline"
	Driver         string         `json:"driver"`
	InputStreams   []string       `json:"input_streams,omitempty"`
	OutputStreams  []string       `json:"output_streams,omitempty"`
	Process        bool           `json:"process,omitempty"` // copied into NodeDescriptor.Process; not acted on, Nodes run as goroutines
	DelayEstimator string         `json:"delay_estimator,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
}

// StorageConfig configures the persistence engine (spec.md §6,
// storage.{root_dir, flush_hz, high_water, drain_deadline_ms, video_codec}).
type StorageConfig struct {
	RootDir         string  `json:"root_dir"`
	FlushHz         float64 `json:"flush_hz"`
	HighWater       int     `json:"high_water"`
	DrainDeadlineMs int     `json:"drain_deadline_ms"`
	VideoCodec      string  `json:"video_codec,omitempty"`
}

// FlushInterval returns the configured flush cadence as a time.Duration.
func (s StorageConfig) FlushInterval() time.Duration {
	if s.FlushHz <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / s.FlushHz)
}

// DrainDeadline returns the configured drain deadline as a time.Duration.
func (s StorageConfig) DrainDeadline() time.Duration {
	return time.Duration(s.DrainDeadlineMs) * time.Millisecond
}

// SyncConfig configures the DISCOVER/SYNC deadlines (spec.md §6,
// sync.{discover_timeout_ms, sync_timeout_ms}).
type SyncConfig struct {
	DiscoverTimeoutMs int   `json:"discover_timeout_ms"`
	SyncTimeoutMs     int   `json:"sync_timeout_ms"`
	ToleranceNs       int64 `json:"tolerance_ns,omitempty"`
}

// DiscoverTimeout returns the discovery deadline as a time.Duration.
func (s SyncConfig) DiscoverTimeout() time.Duration {
	return time.Duration(s.DiscoverTimeoutMs) * time.Millisecond
}

// SyncTimeout returns the sync deadline as a time.Duration.
func (s SyncConfig) SyncTimeout() time.Duration {
	return time.Duration(s.SyncTimeoutMs) * time.Millisecond
}

// ExperimentConfig is propagated verbatim into session metadata (spec.md
// §6, experiment.{project, site, subject, group, session, ...}).
type ExperimentConfig struct {
	Project string         `json:"project,omitempty"`
	Site    string         `json:"site,omitempty"`
	Subject string         `json:"subject,omitempty"`
	Group   string         `json:"group,omitempty"`
	Session string         `json:"session,omitempty"`
	Extra   map[string]any `json:"-"`
}

// MarshalJSON flattens Extra alongside the named fields so arbitrary
// experiment metadata round-trips without a dedicated schema entry.
func (e ExperimentConfig) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range e.Extra {
		out[k] = v
	}
	if e.Project != "" {
		out["project"] = e.Project
	}
	if e.Site != "" {
		out["site"] = e.Site
	}
	if e.Subject != "" {
		out["subject"] = e.Subject
	}
	if e.Group != "" {
		out["group"] = e.Group
	}
	if e.Session != "" {
		out["session"] = e.Session
	}
	return json.Marshal(out)
}

// UnmarshalJSON captures the named fields and keeps any remaining keys in
// Extra.
func (e *ExperimentConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Extra = make(map[string]any, len(raw))
	for k, v := range raw {
		switch k {
		case "project":
			e.Project, _ = v.(string)
		case "site":
			e.Site, _ = v.(string)
		case "subject":
			e.Subject, _ = v.(string)
		case "group":
			e.Group, _ = v.(string)
		case "session":
			e.Session, _ = v.(string)
		default:
			e.Extra[k] = v
		}
	}
	return nil
}

// NATSConfig defines the NATS connection used by transport/natsrelay.go.
type NATSConfig struct {
	URLs          []string        `json:"urls,omitempty"`
	MaxReconnects int             `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration   `json:"reconnect_wait,omitempty"`
	Username      string          `json:"username,omitempty"`
	Password      string          `json:"password,omitempty"`
	Token         string          `json:"token,omitempty"`
	TLS           NATSTLSConfig   `json:"tls,omitempty"`
	JetStream     JetStreamConfig `json:"jetstream,omitempty"`
}

// NATSTLSConfig for secure NATS connections.
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty"`
}

// JetStreamConfig for JetStream-backed storage. It is parsed and carried in
// Config but not read by any component: the NATS relay uses core NATS
// publish/subscribe only.
type JetStreamConfig struct {
	Enabled bool   `json:"enabled"`
	Domain  string `json:"domain,omitempty"`
}

// TransportConfig selects the data-plane driver a Producer, Consumer, or
// Pipeline publishes/subscribes through (spec.md §5.4). "tcp" (the
// default) fans samples out over the in-process transport.Bus; "nats"
// publishes the same envelope bytes on NATS subjects via transport.NATSRelay,
// for deployments that already run a NATS broker and want Nodes on
// different hosts to share a data plane without HERMES's own peer-link
// control protocol. The control plane (DISCOVER/SYNC) always dials direct
// TCP peer links regardless of this setting: clock negotiation measures
// round-trip time across a single connection, which a pub/sub relay
// cannot provide.
type TransportConfig struct {
	Driver string `json:"driver,omitempty"`
}

// Config is the single configuration object parameterizing the HERMES
// core (spec.md §6, "CLI surface").
type Config struct {
	BrokerID       string           `json:"broker_id"`
	ControlAddr    string           `json:"control_addr"`
	DataAddr       string           `json:"data_addr,omitempty"`
	Peers          []string         `json:"peers,omitempty"`
	ClockEligible  bool             `json:"clock_eligible"`
	Nodes          []NodeConfig     `json:"nodes,omitempty"`
	Storage        StorageConfig    `json:"storage"`
	Sync           SyncConfig       `json:"sync"`
	DelayEstimator string           `json:"delay_estimator,omitempty"`
	Experiment     ExperimentConfig `json:"experiment,omitempty"`
	Transport      TransportConfig  `json:"transport,omitempty"`
	NATS           NATSConfig       `json:"nats,omitempty"`
	Security       security.Config  `json:"security,omitempty"`
	Status         StatusConfig     `json:"status,omitempty"`
}

// StatusConfig toggles the read-only FSM status gateway (spec.md §11
// supplemented feature, gateway/status). Disabled by default: the Broker
// runs with no HTTP surface unless Enabled is set.
type StatusConfig struct {
	Enabled bool          `json:"enabled,omitempty"`
	Gateway status.Config `json:"gateway,omitempty"`
}

// SafeConfig provides thread-safe access to a loaded configuration, for
// the rare component that reads it outside the BOOT-time load path (e.g.
// the status gateway serving a debug snapshot).
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg for concurrent reads.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Clone creates a deep copy of the configuration via JSON round-trip,
// matching the teacher's own Clone() implementation.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Validate checks the configuration object for internal consistency ahead
// of BOOT. Schema-level checks (types, required fields, enum ranges) live
// in validator.go; this method carries the hand-written cross-field rules
// a JSON Schema document cannot express.
func (c *Config) Validate() error {
	if c.BrokerID == "" {
		return errors.New("broker_id is required")
	}
	if c.ControlAddr == "" {
		return errors.New("control_addr is required")
	}
	if c.Storage.RootDir == "" {
		return errors.New("storage.root_dir is required")
	}
	if c.Storage.FlushHz <= 0 {
		return errors.New("storage.flush_hz must be positive")
	}
	if c.Storage.HighWater <= 0 {
		return errors.New("storage.high_water must be positive")
	}
	if c.Sync.DiscoverTimeoutMs <= 0 {
		return errors.New("sync.discover_timeout_ms must be positive")
	}
	if c.Sync.SyncTimeoutMs <= 0 {
		return errors.New("sync.sync_timeout_ms must be positive")
	}

	seen := make(map[string]struct{}, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.NodeID == "" {
			return fmt.Errorf("nodes[%d].node_id is required", i)
		}
		if _, dup := seen[n.NodeID]; dup {
			return fmt.Errorf("nodes[%d]: duplicate node_id %q", i, n.NodeID)
		}
		seen[n.NodeID] = struct{}{}
		switch n.Role {
		case "producer":
			if len(n.OutputStreams) == 0 {
				return fmt.Errorf("nodes[%d] (%s): producer requires output_streams", i, n.NodeID)
			}
		case "consumer":
			if len(n.InputStreams) == 0 {
				return fmt.Errorf("nodes[%d] (%s): consumer requires input_streams", i, n.NodeID)
			}
		case "pipeline":
			if len(n.InputStreams) == 0 || len(n.OutputStreams) == 0 {
				return fmt.Errorf("nodes[%d] (%s): pipeline requires both input_streams and output_streams", i, n.NodeID)
			}
		default:
			return fmt.Errorf("nodes[%d] (%s): unknown role %q", i, n.NodeID, n.Role)
		}
	}

	switch c.Transport.Driver {
	case "", "tcp":
	case "nats":
		if len(c.NATS.URLs) == 0 {
			return errors.New("transport.driver=nats requires at least one nats.urls entry")
		}
	default:
		return fmt.Errorf("transport.driver: unknown driver %q", c.Transport.Driver)
	}

	if err := c.validateSecurity(); err != nil {
		return fmt.Errorf("security configuration: %w", err)
	}

	if c.Status.Enabled {
		if err := c.Status.Gateway.Validate(); err != nil {
			return fmt.Errorf("status configuration: %w", err)
		}
	}
	return nil
}

// validateSecurity validates the TLS configuration, unchanged from the
// teacher's own rule set.
func (c *Config) validateSecurity() error {
	if c.Security.TLS.Server.Enabled {
		if c.Security.TLS.Server.CertFile == "" {
			return errors.New("tls.server.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.Server.KeyFile == "" {
			return errors.New("tls.server.key_file is required when TLS is enabled")
		}
		if _, err := os.Stat(c.Security.TLS.Server.CertFile); err != nil {
			return fmt.Errorf("tls.server.cert_file: %w", err)
		}
		if _, err := os.Stat(c.Security.TLS.Server.KeyFile); err != nil {
			return fmt.Errorf("tls.server.key_file: %w", err)
		}
		if c.Security.TLS.Server.MinVersion != "" {
			if err := validateTLSVersion(c.Security.TLS.Server.MinVersion); err != nil {
				return fmt.Errorf("tls.server.min_version: %w", err)
			}
		}
	}

	for i, caFile := range c.Security.TLS.Client.CAFiles {
		if _, err := os.Stat(caFile); err != nil {
			return fmt.Errorf("tls.client.ca_files[%d]: %w", i, err)
		}
	}

	if c.Security.TLS.Client.InsecureSkipVerify {
		_, _ = fmt.Fprintf(os.Stderr,
			"WARNING: TLS certificate verification is disabled (insecure_skip_verify=true). This should only be used in development/testing!\n")
	}

	if c.Security.TLS.Client.MinVersion != "" {
		if err := validateTLSVersion(c.Security.TLS.Client.MinVersion); err != nil {
			return fmt.Errorf("tls.client.min_version: %w", err)
		}
	}
	return nil
}

func validateTLSVersion(version string) error {
	switch version {
	case "1.2", "1.3":
		return nil
	default:
		return fmt.Errorf("invalid TLS version %q (must be \"1.2\" or \"1.3\")", version)
	}
}

// ConfigDigest returns the sha256 of the canonicalized configuration
// document (spec.md §6's config_digest; the digest is not written into
// the session metadata group). Canonicalization is JSON re-encoding with sorted map keys,
// which encoding/json already guarantees for map[string]any values.
func (c *Config) ConfigDigest() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("canonicalize config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Loader handles configuration loading with layered overrides, following
// the teacher's deep-merge-by-map approach (config.go's mergeFromMap).
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{envPrefix: "HERMES"}
}

// AddLayer adds a configuration file layer; later layers override earlier
// ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation on Load.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers over the built-in
// defaults, then applies environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := l.getDefaults()

	for _, path := range l.layers {
		rawConfig, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = l.mergeFromMap(cfg, rawConfig)
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (l *Loader) getDefaults() *Config {
	return &Config{
		Storage: StorageConfig{
			FlushHz:         10,
			HighWater:       10000,
			DrainDeadlineMs: 5000,
		},
		Sync: SyncConfig{
			DiscoverTimeoutMs: 5000,
			SyncTimeoutMs:     2000,
		},
	}
}

func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, err
	}
	l.parseDurations(rawConfig)
	return rawConfig, nil
}

func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if override == nil {
		return base
	}
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	mergedMap := l.deepMergeMaps(baseMap, override)

	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return base
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return base
	}
	return &merged
}

func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// parseDurations converts duration strings to nanoseconds ahead of
// unmarshaling, mirroring the teacher's own pre-pass for
// nats.reconnect_wait.
func (l *Loader) parseDurations(data map[string]any) {
	if nats, ok := data["nats"].(map[string]any); ok {
		if wait, ok := nats["reconnect_wait"].(string); ok {
			if d, err := time.ParseDuration(wait); err == nil {
				nats["reconnect_wait"] = d.Nanoseconds()
			}
		}
	}
}

func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_BROKER_ID"); val != "" {
		cfg.BrokerID = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_URLS"); val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val := os.Getenv(l.envPrefix + "_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
}

// SaveToFile saves the configuration to a JSON file.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// String returns a JSON representation of the config, for debug logging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
