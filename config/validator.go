package config

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/emedia-lab/hermes/errors"
)

// Schema is the JSON Schema document describing the HERMES configuration
// object (spec.md §6's CLI surface), checked by ValidateSchema and, inside
// LoadAndValidate, ahead of the hand-written cross-field rules in
// Config.Validate.
const Schema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "hermes.Config",
	"type": "object",
	"required": ["broker_id", "storage", "sync"],
	"properties": {
		"broker_id": {"type": "string", "minLength": 1},
		"peers": {"type": "array", "items": {"type": "string"}},
		"clock_eligible": {"type": "boolean"},
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["node_id", "role", "driver"],
				"properties": {
					"node_id": {"type": "string", "minLength": 1},
					"role": {"type": "string", "enum": ["producer", "consumer", "pipeline"]},
					"driver": {"type": "string", "minLength": 1},
					"input_streams": {"type": "array", "items": {"type": "string"}},
					"output_streams": {"type": "array", "items": {"type": "string"}},
					"process": {"type": "boolean"},
					"delay_estimator": {"type": "string"}
				}
			}
		},
		"storage": {
			"type": "object",
			"required": ["root_dir", "flush_hz", "high_water", "drain_deadline_ms"],
			"properties": {
				"root_dir": {"type": "string", "minLength": 1},
				"flush_hz": {"type": "number", "exclusiveMinimum": 0},
				"high_water": {"type": "integer", "exclusiveMinimum": 0},
				"drain_deadline_ms": {"type": "integer", "exclusiveMinimum": 0},
				"video_codec": {"type": "string"}
			}
		},
		"sync": {
			"type": "object",
			"required": ["discover_timeout_ms", "sync_timeout_ms"],
			"properties": {
				"discover_timeout_ms": {"type": "integer", "exclusiveMinimum": 0},
				"sync_timeout_ms": {"type": "integer", "exclusiveMinimum": 0},
				"tolerance_ns": {"type": "integer", "minimum": 0}
			}
		},
		"delay_estimator": {"type": "string"},
		"experiment": {"type": "object"},
		"transport": {
			"type": "object",
			"properties": {
				"driver": {"type": "string", "enum": ["tcp", "nats"]}
			}
		}
	}
}`

// ValidateSchema checks raw configuration bytes against Schema, returning
// all violations it finds. This runs before Config.Validate's cross-field
// checks, and before unmarshaling into the typed Config struct, so a
// structurally invalid document is rejected with a complete error list
// rather than the first json.Unmarshal type mismatch.
func ValidateSchema(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(Schema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.WrapInvalid(err, "config", "ValidateSchema", "schema evaluation")
	}
	if !result.Valid() {
		msg := "configuration failed schema validation:"
		for _, desc := range result.Errors() {
			msg += fmt.Sprintf("\n  - %s: %s", desc.Field(), desc.Description())
		}
		return errors.WrapInvalid(fmt.Errorf("%s", msg), "config", "ValidateSchema", "document validation")
	}
	return nil
}

// LoadAndValidate reads, schema-validates, unmarshals, and cross-field
// validates a configuration document in one call. cmd/hermesd does not call
// it: it loads through Loader.LoadFile and Config.Validate, without the
// schema check.
func LoadAndValidate(path string) (*Config, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadAndValidate", "read config file")
	}
	if err := validateJSONDepth(data); err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadAndValidate", "JSON depth check")
	}
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadAndValidate", "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadAndValidate", "cross-field validation")
	}
	return &cfg, nil
}
