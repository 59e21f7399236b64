package storage

import (
	"fmt"
)

// Builder constructs an EntityStore from a configuration map.
type Builder func(config map[string]interface{}) (EntityStore, error)

// Factory creates store instances based on a registered backend name.
type Factory struct {
	builders map[string]Builder
}

// NewFactory creates a new store factory with no backends registered.
func NewFactory() *Factory {
	return &Factory{
		builders: make(map[string]Builder),
	}
}

// Register adds a new store builder to the factory.
func (f *Factory) Register(name string, builder Builder) {
	f.builders[name] = builder
}

// CreateStore creates a new store instance for the named backend.
func (f *Factory) CreateStore(name string, config map[string]interface{}) (EntityStore, error) {
	builder, ok := f.builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown store backend: %s", name)
	}
	return builder(config)
}
