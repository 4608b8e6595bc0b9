// Package adapter defines the uniform contract every downstream
// service integration implements, plus optional capabilities the
// engine discovers through interface upgrades.
package adapter

import (
	"context"
	"fmt"
	"sort"

	"jml/internal/domain"
)

// Adapter is the uniform service contract. Execute performs the
// mutating termination action for one service and must only be called
// in production mode.
type Adapter interface {
	Name() string
	TestConnectivity(ctx context.Context) error
	Execute(ctx context.Context, id domain.Identity) (string, error)
}

// ConditionChecker is implemented by adapters whose phase only applies
// to a subset of users. The check must be read only.
type ConditionChecker interface {
	IsApplicable(ctx context.Context, id domain.Identity) (bool, error)
}

// DataTransferrer is implemented by adapters that can hand user data
// off to the manager before the account is terminated.
type DataTransferrer interface {
	TransferData(ctx context.Context, id domain.Identity) (string, error)
}

// Planner lets an adapter describe its production action for dry runs.
type Planner interface {
	Plan(id domain.Identity) string
}

// PlanDetail returns the dry-run plan line for an adapter.
func PlanDetail(a Adapter, id domain.Identity) string {
	if p, ok := a.(Planner); ok {
		return p.Plan(id)
	}
	return fmt.Sprintf("terminate %s access for %s", a.Name(), id.Email)
}

// Registry holds adapters keyed by phase name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// Register adds an adapter under its phase name. Re-registering a name
// replaces the previous adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a phase name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns registered phase names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
