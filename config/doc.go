// Package config loads and validates the single configuration object that
// parameterizes a HERMES process (spec.md §6): broker identity and peers,
// clock eligibility, Node inventory, storage tuning, sync deadlines, the
// default delay_estimator driver, and experiment metadata propagated
// verbatim into session metadata.
//
// # Core Components
//
// Config: the configuration object itself, plus the NATS and TLS settings
// needed by transport/natsrelay.go and the status gateway.
//
// SafeConfig: thread-safe read access for the rare component that reads
// configuration outside the BOOT-time load path.
//
// Loader: loads configuration with layer merging (base + overrides) and
// environment variable substitution.
//
// ValidateSchema / LoadAndValidate: JSON Schema structural validation
// (validator.go) run ahead of Config.Validate's cross-field rules.
//
// # Basic usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.json")
//	loader.AddLayer("config/host-a.json") // overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Or, for a single file checked against the JSON Schema as well:
//
//	cfg, err := config.LoadAndValidate("hermes.json")
//
// # Environment variable overrides
//
//	export HERMES_BROKER_ID="host-a"
//	export HERMES_NATS_URLS="nats://server1:4222,nats://server2:4222"
//
// # Security
//
//   - File size limits (10MB max) to prevent memory exhaustion
//   - JSON depth validation (100 levels max) to prevent DoS attacks
//   - Path validation to prevent directory traversal
//   - Regular file checks (no symlinks or device files)
package config
