package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps backend names to implementations.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry returns a registry holding the given backends.
func NewRegistry(backends ...Backend) (*Registry, error) {
	r := &Registry{backends: make(map[string]Backend)}
	for _, b := range backends {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds b. Names must be unique.
func (r *Registry) Register(b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := b.Name()
	if name == "" {
		return fmt.Errorf("register backend: empty name")
	}
	if _, ok := r.backends[name]; ok {
		return fmt.Errorf("register backend %q: already registered", name)
	}
	r.backends[name] = b
	return nil
}

// Lookup returns the backend registered under name.
func (r *Registry) Lookup(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, name)
	}
	return b, nil
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate looks up the named backend and validates doc against it.
func (r *Registry) Validate(name string, doc Document) error {
	b, err := r.Lookup(name)
	if err != nil {
		return err
	}
	return b.Validate(doc)
}

// Execute looks up the named backend and executes doc with it.
func (r *Registry) Execute(ctx context.Context, name string, doc Document) (*Result, error) {
	b, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return b.Execute(ctx, doc)
}
