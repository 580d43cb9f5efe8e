package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSchemaValidDocument(t *testing.T) {
	doc := []byte(`{
		"broker_id": "host-a",
		"storage": {"root_dir": "/data", "flush_hz": 10, "high_water": 1000, "drain_deadline_ms": 5000},
		"sync": {"discover_timeout_ms": 5000, "sync_timeout_ms": 2000}
	}`)
	assert.NoError(t, ValidateSchema(doc))
}

func TestValidateSchemaMissingRequiredField(t *testing.T) {
	doc := []byte(`{
		"storage": {"root_dir": "/data", "flush_hz": 10, "high_water": 1000, "drain_deadline_ms": 5000},
		"sync": {"discover_timeout_ms": 5000, "sync_timeout_ms": 2000}
	}`)
	assert.Error(t, ValidateSchema(doc))
}

func TestValidateSchemaWrongType(t *testing.T) {
	doc := []byte(`{
		"broker_id": "host-a",
		"storage": {"root_dir": "/data", "flush_hz": "fast", "high_water": 1000, "drain_deadline_ms": 5000},
		"sync": {"discover_timeout_ms": 5000, "sync_timeout_ms": 2000}
	}`)
	assert.Error(t, ValidateSchema(doc))
}

func TestValidateSchemaInvalidRoleEnum(t *testing.T) {
	doc := []byte(`{
		"broker_id": "host-a",
		"nodes": [{"node_id": "imu01", "role": "bogus", "driver": "xsens"}],
		"storage": {"root_dir": "/data", "flush_hz": 10, "high_water": 1000, "drain_deadline_ms": 5000},
		"sync": {"discover_timeout_ms": 5000, "sync_timeout_ms": 2000}
	}`)
	assert.Error(t, ValidateSchema(doc))
}
