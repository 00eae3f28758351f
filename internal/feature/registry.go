// Package feature implements the optional-provider gate. Providers such as
// the regional catalog client or the premium cover client are registered as
// features with dependency edges; the gate decides per tenant whether a
// feature is active and hands out the lazily built provider.
package feature

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/MarcinSachs/libriya/internal/config"
)

var (
	// ErrDependencyCycle is returned when registering a feature would close
	// a dependency cycle.
	ErrDependencyCycle = errors.New("feature dependency cycle")
	// ErrDuplicateFeature is returned when a feature ID is registered twice.
	ErrDuplicateFeature = errors.New("feature already registered")
	// ErrUnknownFeature is returned when a feature ID is not registered.
	ErrUnknownFeature = errors.New("unknown feature")
)

// Descriptor declares one optional feature.
type Descriptor struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Description string   `yaml:"description,omitempty"`
	// EnvVar is the process-wide fallback switch consulted when a tenant
	// has no explicit flag. Empty means the PREMIUM_<ID>_ENABLED default.
	EnvVar    string   `yaml:"env_var,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// DefaultEnvVar derives the conventional fallback variable name for a
// feature ID, e.g. "bookcover_api" becomes PREMIUM_BOOKCOVER_API_ENABLED.
func DefaultEnvVar(id string) string {
	return "PREMIUM_" + strings.ToUpper(id) + "_ENABLED"
}

// envVar returns the descriptor's fallback variable, defaulted by convention.
func (d Descriptor) envVar() string {
	if d.EnvVar != "" {
		return d.EnvVar
	}
	return DefaultEnvVar(d.ID)
}

// ConfigKey is the viper key the feature's fallback switch is bound to.
func (d Descriptor) ConfigKey() string {
	return "features." + d.ID + ".enabled"
}

// BuildFunc constructs the provider behind a feature. It runs at most once,
// on first use of an enabled feature.
type BuildFunc func() (any, error)

type entry struct {
	desc  Descriptor
	build BuildFunc

	once  sync.Once
	value any
	err   error
}

// Registry holds the known features and their providers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty feature registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]*entry{}}
}

// Register adds a feature and its provider constructor. Registration fails
// if the ID is already taken or if the feature's dependencies close a cycle.
func (r *Registry) Register(d Descriptor, build BuildFunc) error {
	if d.ID == "" {
		return errors.New("feature ID must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[d.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFeature, d.ID)
	}

	if cycle := r.findCycle(d); cycle != nil {
		return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cycle, " -> "))
	}

	r.entries[d.ID] = &entry{desc: d, build: build}
	config.BindFeatureEnv(d.ConfigKey(), d.envVar())
	return nil
}

// MustRegister is Register for process startup, where a bad feature graph is
// a deployment error and the process must not come up.
func (r *Registry) MustRegister(d Descriptor, build BuildFunc) {
	if err := r.Register(d, build); err != nil {
		slog.Error("Failed to register feature", "feature", d.ID, "error", err)
		os.Exit(1)
	}
}

// findCycle walks the dependency graph as it would look with d added and
// returns the cycle path if d can reach itself. Edges to IDs that are not
// registered yet are dead ends; the registration that completes such a
// cycle later is the one that fails. Caller holds r.mu.
func (r *Registry) findCycle(d Descriptor) []string {
	var walk func(id string, path []string) []string
	walk = func(id string, path []string) []string {
		var deps []string
		switch {
		case id == d.ID:
			deps = d.DependsOn
		default:
			e, ok := r.entries[id]
			if !ok {
				return nil
			}
			deps = e.desc.DependsOn
		}
		for _, dep := range deps {
			if dep == d.ID {
				return append(append(path, id), dep)
			}
			if found := walk(dep, append(path, id)); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(d.ID, nil)
}

// Descriptor returns the descriptor for a registered feature.
func (r *Registry) Descriptor(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// All returns every registered descriptor, sorted by ID.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		descs = append(descs, e.desc)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].ID < descs[j].ID })
	return descs
}

// Provider returns the feature's provider, constructing it on first call.
// A failed construction is remembered and returned on every later call.
func (r *Registry) Provider(id string) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, id)
	}

	e.once.Do(func() {
		if e.build == nil {
			e.err = fmt.Errorf("feature %s has no provider", id)
			return
		}
		e.value, e.err = e.build()
	})
	return e.value, e.err
}
