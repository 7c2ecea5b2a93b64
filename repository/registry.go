package repository

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory constructs an uninitialised handle for a catalogue record.
type Factory func(rec Record) (Handle, error)

// Registry maps record types to implementation factories. It satisfies Loader.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory for the given repository type.
func (r *Registry) Register(kind string, factory Factory) error {
	if r == nil {
		return fmt.Errorf("repository type %s: registry not initialised", kind)
	}
	key := normalizeType(kind)
	if key == "" {
		return fmt.Errorf("repository type must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("repository type %s: factory must not be nil", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("repository type %s already registered", key)
	}
	r.factories[key] = factory
	return nil
}

// Load instantiates the implementation registered for rec.Type.
func (r *Registry) Load(rec Record) (Handle, error) {
	key := normalizeType(rec.Type)
	if r == nil {
		return nil, fmt.Errorf("repository %s: %w: registry not initialised", rec.Name, ErrLoad)
	}
	r.mu.RLock()
	factory := r.factories[key]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("repository %s: %w: no factory registered for type %q", rec.Name, ErrLoad, rec.Type)
	}
	handle, err := factory(rec)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w: %w", rec.Name, ErrLoad, err)
	}
	if handle == nil {
		return nil, fmt.Errorf("repository %s: %w: factory for type %q returned no handle", rec.Name, ErrLoad, rec.Type)
	}
	return handle, nil
}

// Types lists the registered repository types in sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		types = append(types, kind)
	}
	sort.Strings(types)
	return types
}

func normalizeType(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
