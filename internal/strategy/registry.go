// Package strategy holds the blocking strategy variants and the registry the
// session engine resolves them through.
package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"focusgate/internal/core"
)

var (
	ErrStrategyNotFound      = errors.New("strategy not found")
	ErrStrategyAlreadyExists = errors.New("strategy already registered")
)

// Registry manages the registered strategies by kind
type Registry struct {
	mu         sync.RWMutex
	strategies map[core.StrategyKind]core.BlockingStrategy
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[core.StrategyKind]core.BlockingStrategy),
	}
}

// NewDefaultRegistry returns a registry with every built-in variant
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry()
	for _, s := range []core.BlockingStrategy{
		NewManual(logger),
		NewNFC(logger),
		NewQR(logger),
		NewSchedule(logger),
	} {
		// kinds are distinct, Register cannot fail here
		_ = r.Register(s)
	}
	return r
}

// Register adds a strategy to the registry
func (r *Registry) Register(s core.BlockingStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := s.Kind()
	if _, exists := r.strategies[kind]; exists {
		return fmt.Errorf("%w: %s", ErrStrategyAlreadyExists, kind)
	}
	r.strategies[kind] = s
	return nil
}

// Get retrieves a strategy by kind
func (r *Registry) Get(kind core.StrategyKind) (core.BlockingStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.strategies[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStrategyNotFound, kind)
	}
	return s, nil
}

// List returns the registered kinds in sorted order
func (r *Registry) List() []core.StrategyKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]core.StrategyKind, 0, len(r.strategies))
	for kind := range r.strategies {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

var _ core.StrategyRegistry = (*Registry)(nil)
