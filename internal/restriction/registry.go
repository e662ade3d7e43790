// Package restriction selects the restriction authority that enforces a
// profile's targets. Enforcement itself happens outside this process.
package restriction

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"focusgate/internal/core"
)

var (
	ErrAuthorityNotFound      = errors.New("restriction authority not found")
	ErrAuthorityAlreadyExists = errors.New("restriction authority already registered")
)

// Registry manages the registered authorities by name
type Registry struct {
	mu          sync.RWMutex
	authorities map[string]core.RestrictionAuthority
}

// NewRegistry creates a new authority registry
func NewRegistry() *Registry {
	return &Registry{
		authorities: make(map[string]core.RestrictionAuthority),
	}
}

// Register adds an authority to the registry
func (r *Registry) Register(a core.RestrictionAuthority) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.authorities[name]; exists {
		return fmt.Errorf("%w: %s", ErrAuthorityAlreadyExists, name)
	}
	r.authorities[name] = a
	return nil
}

// Get retrieves an authority by name
func (r *Registry) Get(name string) (core.RestrictionAuthority, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.authorities[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAuthorityNotFound, name)
	}
	return a, nil
}

// List returns all registered authority names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.authorities))
	for name := range r.authorities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
