package component

import "time"

// Discoverable identifies a component that can report its own identity and
// health. Brokers and nodes implement this so that the lifecycle manager and
// the health aggregator can treat them uniformly regardless of role.
type Discoverable interface {
	Meta() Metadata
	Health() HealthStatus
}

// Metadata describes a component's identity for logging and status reporting.
type Metadata struct {
	Name        string
	Type        string // "broker", "node.producer", "node.consumer", "node.pipeline"
	Description string
	Version     string
}

// HealthStatus is a component's self-reported health at the time it was asked.
type HealthStatus struct {
	Healthy    bool
	LastCheck  time.Time
	ErrorCount int
	LastError  string
	Uptime     time.Duration
}
