package backend

import (
	"fmt"
	"sync"
)

// Predicate reports whether a backend owns an array value.
type Predicate func(v any) bool

type registration struct {
	match   Predicate
	backend Backend
}

var (
	registryMu sync.RWMutex
	registry   []registration
)

// Register adds a backend to the dispatch table. Backends register at
// package init or on first successful construction; earlier registrations
// win on overlapping predicates.
func Register(match Predicate, b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, registration{match: match, backend: b})
}

// Of returns the backend owning v, walking the table in registration order.
func Of(v any) (Backend, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, r := range registry {
		if r.match(v) {
			return r.backend, nil
		}
	}
	return nil, fmt.Errorf("no backend registered for value %T", v)
}

// ByName returns the registered backend with the given name.
func ByName(name string) (Backend, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, r := range registry {
		if r.backend.Name() == name {
			return r.backend, nil
		}
	}
	return nil, fmt.Errorf("no backend registered with name %q", name)
}
