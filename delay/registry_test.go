package delay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryZeroPreregistered(t *testing.T) {
	r := NewRegistry()
	est, err := r.Build("zero", nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), est.Estimate(Metadata{}))
}

func TestRegistryRegisterAndBuild(t *testing.T) {
	r := NewRegistry()
	err := r.Register("constant", func(config map[string]any) (Estimator, error) {
		ns, _ := config["ns"].(int64)
		return Constant(ns), nil
	})
	assert.NoError(t, err)

	est, err := r.Build("constant", map[string]any{"ns": int64(2000)})
	assert.NoError(t, err)
	assert.Equal(t, int64(2000), est.Estimate(Metadata{}))
}

func TestRegistryBuildUnknownDriver(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("bogus", nil)
	assert.Error(t, err)
}

func TestRegistryRegisterDuplicateRejected(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register("constant", func(map[string]any) (Estimator, error) { return Zero, nil }))
	err := r.Register("constant", func(map[string]any) (Estimator, error) { return Zero, nil })
	assert.Error(t, err)
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	names := r.Names()
	assert.Contains(t, names, "zero")
}
