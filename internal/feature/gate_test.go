package feature

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcinSachs/libriya/internal/cover"
	"github.com/MarcinSachs/libriya/internal/metadata"
)

// fakeFlags is an in-memory FlagReader.
type fakeFlags struct {
	flags map[int64]map[string]bool
	err   error
}

func (f *fakeFlags) Flags(ctx context.Context, tenantID int64) (map[string]bool, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.flags[tenantID], nil
}

func TestGateIsEnabled_UnregisteredFeature(t *testing.T) {
	setupFeatureTest(t)

	gate := NewGate(NewRegistry(), nil)
	assert.False(t, gate.IsEnabled(context.Background(), "ghost", Anonymous))
}

func TestGateIsEnabled_EnvFallback(t *testing.T) {
	setupFeatureTest(t)
	t.Setenv("PREMIUM_BOOKCOVER_API_ENABLED", "true")

	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{ID: "bookcover_api"}, noopBuild))

	gate := NewGate(r, nil)
	assert.True(t, gate.IsEnabled(context.Background(), "bookcover_api", Anonymous))
}

func TestGateIsEnabled_EnvFallbackOff(t *testing.T) {
	setupFeatureTest(t)

	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{ID: "bookcover_api"}, noopBuild))

	gate := NewGate(r, nil)
	assert.False(t, gate.IsEnabled(context.Background(), "bookcover_api", Anonymous))
}

func TestGateIsEnabled_TenantFlagBeatsEnv(t *testing.T) {
	setupFeatureTest(t)
	t.Setenv("PREMIUM_BOOKCOVER_API_ENABLED", "true")

	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{ID: "bookcover_api"}, noopBuild))

	flags := &fakeFlags{flags: map[int64]map[string]bool{
		7: {"bookcover_api": false},
		8: {"bookcover_api": true},
	}}
	gate := NewGate(r, flags)

	ctx := context.Background()
	assert.False(t, gate.IsEnabled(ctx, "bookcover_api", Tenant{ID: 7}),
		"explicit tenant disable must override the environment default")
	assert.True(t, gate.IsEnabled(ctx, "bookcover_api", Tenant{ID: 8}))

	// A tenant without a stored flag falls back to the environment.
	assert.True(t, gate.IsEnabled(ctx, "bookcover_api", Tenant{ID: 99}))
}

func TestGateIsEnabled_AnonymousIgnoresFlags(t *testing.T) {
	setupFeatureTest(t)

	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{ID: "bookcover_api"}, noopBuild))

	// Tenant 0 flags must never apply to the anonymous tenant.
	flags := &fakeFlags{flags: map[int64]map[string]bool{
		0: {"bookcover_api": true},
	}}
	gate := NewGate(r, flags)

	assert.False(t, gate.IsEnabled(context.Background(), "bookcover_api", Anonymous))
}

func TestGateIsEnabled_FlagReaderErrorFallsBack(t *testing.T) {
	setupFeatureTest(t)
	t.Setenv("PREMIUM_BOOKCOVER_API_ENABLED", "true")

	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{ID: "bookcover_api"}, noopBuild))

	gate := NewGate(r, &fakeFlags{err: errors.New("db gone")})
	assert.True(t, gate.IsEnabled(context.Background(), "bookcover_api", Tenant{ID: 1}))
}

func TestGateIsEnabled_DependencyMustBeEnabled(t *testing.T) {
	setupFeatureTest(t)
	t.Setenv("PREMIUM_CHILD_ENABLED", "true")

	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{ID: "parent"}, noopBuild))
	require.NoError(t, r.Register(Descriptor{ID: "child", DependsOn: []string{"parent"}}, noopBuild))

	gate := NewGate(r, nil)
	ctx := context.Background()

	// Child is switched on but its dependency is not.
	assert.False(t, gate.IsEnabled(ctx, "child", Anonymous))

	t.Setenv("PREMIUM_PARENT_ENABLED", "true")
	assert.True(t, gate.IsEnabled(ctx, "child", Anonymous))
}

func TestGateIsEnabled_SharedDependencyDiamond(t *testing.T) {
	setupFeatureTest(t)
	t.Setenv("PREMIUM_APP_ENABLED", "true")
	t.Setenv("PREMIUM_MID_ENABLED", "true")
	t.Setenv("PREMIUM_BASE_ENABLED", "true")

	// app depends on mid and base, mid depends on base. The shared
	// dependency is reached twice; revisiting it must not flip the answer.
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{ID: "base"}, noopBuild))
	require.NoError(t, r.Register(Descriptor{ID: "mid", DependsOn: []string{"base"}}, noopBuild))
	require.NoError(t, r.Register(Descriptor{ID: "app", DependsOn: []string{"mid", "base"}}, noopBuild))

	gate := NewGate(r, nil)
	ctx := context.Background()
	assert.True(t, gate.IsEnabled(ctx, "app", Anonymous))

	// Disabling the shared dependency still disables the whole diamond.
	t.Setenv("PREMIUM_BASE_ENABLED", "false")
	assert.False(t, gate.IsEnabled(ctx, "app", Anonymous))
}

func TestGateIsEnabled_MissingDependencyDisables(t *testing.T) {
	setupFeatureTest(t)
	t.Setenv("PREMIUM_LEAF_ENABLED", "true")

	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{ID: "leaf", DependsOn: []string{"unregistered"}}, noopBuild))

	gate := NewGate(r, nil)
	assert.False(t, gate.IsEnabled(context.Background(), "leaf", Anonymous))
}

func TestGateMetadataSource(t *testing.T) {
	setupFeatureTest(t)
	t.Setenv("PREMIUM_NATIONAL_LIBRARY_ENABLED", "true")

	gate := NewGate(DefaultRegistry(), nil)
	ctx := context.Background()

	src, ok := gate.MetadataSource(ctx, NationalLibraryID, Anonymous)
	require.True(t, ok)
	var _ metadata.Source = src
	assert.NotNil(t, src)

	// Disabled features yield no provider.
	_, ok = gate.MetadataSource(ctx, BookcoverAPIID, Anonymous)
	assert.False(t, ok)
}

func TestGateMetadataSource_WrongKind(t *testing.T) {
	setupFeatureTest(t)
	t.Setenv("PREMIUM_BOOKCOVER_API_ENABLED", "true")

	// bookcover_api builds a cover source, not a metadata source.
	gate := NewGate(DefaultRegistry(), nil)
	_, ok := gate.MetadataSource(context.Background(), BookcoverAPIID, Anonymous)
	assert.False(t, ok)
}

func TestGateCoverSource(t *testing.T) {
	setupFeatureTest(t)
	t.Setenv("PREMIUM_BOOKCOVER_API_ENABLED", "true")

	gate := NewGate(DefaultRegistry(), nil)

	src, ok := gate.CoverSource(context.Background(), BookcoverAPIID, Anonymous)
	require.True(t, ok)
	var _ cover.Source = src
	assert.NotNil(t, src)
}

func TestGateCoverSource_Disabled(t *testing.T) {
	setupFeatureTest(t)

	gate := NewGate(DefaultRegistry(), nil)
	src, ok := gate.CoverSource(context.Background(), BookcoverAPIID, Anonymous)
	assert.False(t, ok)
	assert.Nil(t, src)
}
