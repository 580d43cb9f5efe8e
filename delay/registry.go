package delay

import (
	"sync"

	"github.com/emedia-lab/hermes/errors"
)

// Factory builds an Estimator from the driver-specific config carried under
// a stream's delay_estimator key.
type Factory func(config map[string]any) (Estimator, error)

// Registry maps delay_estimator driver names to factories, selected per
// stream from configuration (spec.md §6, "delay_estimator driver selection
// per stream").
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry with "zero" pre-registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories["zero"] = func(map[string]any) (Estimator, error) { return Zero, nil }
	return r
}

// Register installs a named factory. Re-registering "zero" is allowed, to
// let callers override the default; any other duplicate name is rejected.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "delay.Registry", "Register", "estimator name cannot be empty")
	}
	if factory == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "delay.Registry", "Register", "factory cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists && name != "zero" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "delay.Registry", "Register", "estimator already registered: "+name)
	}
	r.factories[name] = factory
	return nil
}

// Build looks up name and constructs an Estimator from config.
func (r *Registry) Build(name string, config map[string]any) (Estimator, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()
	if !exists {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "delay.Registry", "Build", "unknown delay_estimator driver: "+name)
	}
	est, err := factory(config)
	if err != nil {
		return nil, errors.Wrap(err, "delay.Registry", "Build", "estimator construction")
	}
	return est, nil
}

// Names returns the registered driver names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
