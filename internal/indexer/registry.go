package indexer

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured engines by name. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*Engine)}
}

// Add registers an engine. Adding a second engine under the same name
// is an error.
func (r *Registry) Add(engine *Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := engine.Name()
	if _, exists := r.engines[name]; exists {
		return fmt.Errorf("indexer %q is already registered", name)
	}
	r.engines[name] = engine
	return nil
}

// Get returns the engine registered under name, or nil.
func (r *Registry) Get(name string) *Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[name]
}

// Names returns the registered names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered engine in name order.
func (r *Registry) All() []*Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engines := make([]*Engine, 0, len(r.engines))
	for _, engine := range r.engines {
		engines = append(engines, engine)
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i].Name() < engines[j].Name() })
	return engines
}

// Len returns the number of registered engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}
