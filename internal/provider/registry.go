// Package provider holds the name-keyed factory registries used to pick
// adapters (LLM, embedding, tools, user storage) from configuration.
package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// UnknownError reports a lookup for a name nothing registered.
type UnknownError struct {
	Kind string
	Name string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown %s provider '%s'", e.Kind, e.Name)
}

// Registry maps provider names to factories of type F.
type Registry[F any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]F
}

// NewRegistry returns an empty registry; kind labels lookup errors.
func NewRegistry[F any](kind string) *Registry[F] {
	return &Registry[F]{kind: kind, factories: make(map[string]F)}
}

// Register binds name to factory, replacing any previous binding.
func (r *Registry[F]) Register(name string, factory F) {
	key := normalize(name)
	if key == "" {
		panic("provider: empty registration name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = factory
}

// Lookup returns the factory bound to name or an *UnknownError.
func (r *Registry[F]) Lookup(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[normalize(name)]
	if !ok {
		var zero F
		return zero, &UnknownError{Kind: r.kind, Name: name}
	}
	return factory, nil
}

// Names lists registered names in sorted order.
func (r *Registry[F]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
