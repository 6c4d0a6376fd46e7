package llm

import (
	"fmt"
	"sync"
)

// Registry holds the Bindings a node knows about, keyed by name, so
// runtime.Engine can resolve an agent's configured binding name at the
// start of each turn. It's a plain guarded map rather than a generic
// container, since a node only ever registers one kind of thing
// against it.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]Binding
}

// NewRegistry returns an empty Binding registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]Binding)}
}

// RegisterBinding adds binding under its own Name(). Re-registering an
// already-known name fails rather than silently replacing it.
func (r *Registry) RegisterBinding(binding Binding) error {
	if binding == nil {
		return fmt.Errorf("binding cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := binding.Name()
	if _, exists := r.bindings[name]; exists {
		return fmt.Errorf("binding %q already registered", name)
	}
	r.bindings[name] = binding
	return nil
}

// Get returns the Binding registered under name, if any.
func (r *Registry) Get(name string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[name]
	return b, ok
}
