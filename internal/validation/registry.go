package validation

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a validator from its policy parameters. Factories reject
// unrecognized or missing required parameters so misconfiguration fails at
// policy load time, never at request time.
type Factory func(params Params) (Validator, error)

// Registry maps validator identifiers to constructors. Register everything
// at startup; lookups at policy load are read-only.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory under name, replacing any previous entry.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Build constructs the named validator with the given parameters.
func (r *Registry) Build(name string, params Params) (Validator, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown validator %q", name)
	}
	v, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("validator %q: %w", name, err)
	}
	return v, nil
}

// Names lists registered validator identifiers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
