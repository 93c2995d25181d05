// Package strategy defines the Strategy interface that acts as the decision
// oracle during a backtest and provides a Registry for looking strategies up
// by name.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"chartist/internal/domain"
)

// DecisionRequest is the market state handed to a strategy at one bar.
type DecisionRequest struct {
	Symbol    string            `json:"symbol"`
	Timeframe string            `json:"timeframe"`
	Balance   decimal.Decimal   `json:"balance"`
	Positions []domain.Position `json:"positions"`
	// Window holds the lookback bars, oldest first. The last bar is the one
	// being decided on.
	Window []domain.Bar `json:"window"`
}

// Last returns the most recent bar of the window.
func (r *DecisionRequest) Last() domain.Bar {
	if len(r.Window) == 0 {
		return domain.Bar{}
	}
	return r.Window[len(r.Window)-1]
}

// Strategy is the interface that all decision oracles must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Decide returns the recommended action for the last bar of the
	// request window.
	Decide(ctx context.Context, req DecisionRequest) (domain.Decision, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// Lookup is like Get but returns an error naming the missing strategy.
func (r *Registry) Lookup(name string) (Strategy, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, r.List())
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
