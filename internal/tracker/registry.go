package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory builds a configured backend.
type Factory func(ctx context.Context, cfg *Config) (Backend, error)

// Registry manages registered backends. Backends register themselves at init
// time, and the registry provides access to them by name.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Factory)}
}

// globalRegistry is the default registry used by Register and Open.
var globalRegistry = NewRegistry()

// Register adds a backend factory to the global registry.
// The name should be lowercase (e.g., "jira", "sql", "memory").
func Register(name string, factory Factory) {
	globalRegistry.Register(name, factory)
}

// List returns the names of all registered backends.
func List() []string {
	return globalRegistry.List()
}

// Open builds the named backend from the global registry.
func Open(ctx context.Context, name string, cfg *Config) (Backend, error) {
	return globalRegistry.Open(ctx, name, cfg)
}

// Register adds a factory to this registry.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// Get retrieves a factory from this registry.
func (r *Registry) Get(name string) Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[name]
}

// List returns the names of all registered backends, sorted alphabetically.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the named backend. cfg may be nil.
func (r *Registry) Open(ctx context.Context, name string, cfg *Config) (Backend, error) {
	factory := r.Get(name)
	if factory == nil {
		return nil, fmt.Errorf("unknown backend %q (available: %v)", name, r.List())
	}
	if cfg == nil {
		cfg = NewConfig(ctx, name, nil)
	}
	return factory(ctx, cfg)
}
