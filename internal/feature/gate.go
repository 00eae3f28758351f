package feature

import (
	"context"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/MarcinSachs/libriya/internal/cover"
	"github.com/MarcinSachs/libriya/internal/metadata"
)

// Tenant identifies whose flags govern a lookup. The zero value is the
// anonymous tenant, which has no stored flags and resolves every feature
// from the process-wide environment default.
type Tenant struct {
	ID int64
}

// Anonymous is the tenant used when no tenant context exists.
var Anonymous = Tenant{}

// FlagReader supplies the explicit per-tenant flags. Features absent from
// the returned map fall back to the environment default.
type FlagReader interface {
	Flags(ctx context.Context, tenantID int64) (map[string]bool, error)
}

// Gate answers "is this feature active for this tenant" and hands out the
// providers behind enabled features.
type Gate struct {
	registry *Registry
	flags    FlagReader
}

// NewGate creates a gate over a registry. flags may be nil, in which case
// only the environment defaults apply.
func NewGate(registry *Registry, flags FlagReader) *Gate {
	return &Gate{registry: registry, flags: flags}
}

// IsEnabled reports whether a feature is active for the tenant. A feature
// is active when it is registered, every feature it depends on is active
// for the same tenant, and either the tenant carries an explicit enabled
// flag or, absent one, the feature's environment switch is on.
func (g *Gate) IsEnabled(ctx context.Context, featureID string, tenant Tenant) bool {
	return g.isEnabled(ctx, featureID, tenant, map[string]bool{})
}

// isEnabled memoizes per-feature answers for one IsEnabled call, so a
// dependency shared by several features is evaluated once and keeps its
// result. The registry rejects dependency cycles at registration, which
// bounds the walk.
func (g *Gate) isEnabled(ctx context.Context, featureID string, tenant Tenant, memo map[string]bool) bool {
	if enabled, ok := memo[featureID]; ok {
		return enabled
	}
	enabled := g.evalEnabled(ctx, featureID, tenant, memo)
	memo[featureID] = enabled
	return enabled
}

func (g *Gate) evalEnabled(ctx context.Context, featureID string, tenant Tenant, memo map[string]bool) bool {
	desc, ok := g.registry.Descriptor(featureID)
	if !ok {
		slog.Warn("Feature gate queried for unregistered feature", "feature", featureID)
		return false
	}

	for _, dep := range desc.DependsOn {
		if !g.isEnabled(ctx, dep, tenant, memo) {
			return false
		}
	}

	if g.flags != nil && tenant != Anonymous {
		flags, err := g.flags.Flags(ctx, tenant.ID)
		if err != nil {
			slog.Warn("Failed to read tenant flags, using environment default",
				"tenant", tenant.ID, "feature", featureID, "error", err)
		} else if enabled, ok := flags[featureID]; ok {
			return enabled
		}
	}

	return viper.GetBool(desc.ConfigKey())
}

// MetadataSource returns the catalog client behind a feature, or (nil,
// false) when the feature is disabled for the tenant or its provider
// cannot be built.
func (g *Gate) MetadataSource(ctx context.Context, featureID string, tenant Tenant) (metadata.Source, bool) {
	value, ok := g.provider(ctx, featureID, tenant)
	if !ok {
		return nil, false
	}
	src, ok := value.(metadata.Source)
	if !ok {
		slog.Error("Feature provider is not a metadata source", "feature", featureID)
		return nil, false
	}
	return src, true
}

// CoverSource returns the cover client behind a feature, or (nil, false)
// when the feature is disabled for the tenant or its provider cannot be
// built.
func (g *Gate) CoverSource(ctx context.Context, featureID string, tenant Tenant) (cover.Source, bool) {
	value, ok := g.provider(ctx, featureID, tenant)
	if !ok {
		return nil, false
	}
	src, ok := value.(cover.Source)
	if !ok {
		slog.Error("Feature provider is not a cover source", "feature", featureID)
		return nil, false
	}
	return src, true
}

func (g *Gate) provider(ctx context.Context, featureID string, tenant Tenant) (any, bool) {
	if !g.IsEnabled(ctx, featureID, tenant) {
		return nil, false
	}
	value, err := g.registry.Provider(featureID)
	if err != nil {
		slog.Error("Failed to build feature provider", "feature", featureID, "error", err)
		return nil, false
	}
	return value, true
}
