package feature

import (
	"errors"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFeatureTest(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func noopBuild() (any, error) { return struct{}{}, nil }

func TestRegistryRegister(t *testing.T) {
	setupFeatureTest(t)
	r := NewRegistry()

	require.NoError(t, r.Register(Descriptor{ID: "premium_covers"}, noopBuild))

	desc, ok := r.Descriptor("premium_covers")
	assert.True(t, ok)
	assert.Equal(t, "premium_covers", desc.ID)

	_, ok = r.Descriptor("missing")
	assert.False(t, ok)
}

func TestRegistryRegister_EmptyID(t *testing.T) {
	setupFeatureTest(t)
	r := NewRegistry()

	require.Error(t, r.Register(Descriptor{}, noopBuild))
}

func TestRegistryRegister_Duplicate(t *testing.T) {
	setupFeatureTest(t)
	r := NewRegistry()

	require.NoError(t, r.Register(Descriptor{ID: "dup"}, noopBuild))
	err := r.Register(Descriptor{ID: "dup"}, noopBuild)
	require.ErrorIs(t, err, ErrDuplicateFeature)
}

func TestRegistryRegister_CycleDetection(t *testing.T) {
	setupFeatureTest(t)
	r := NewRegistry()

	// A cycle is only detectable once its closing edge is registered.
	require.NoError(t, r.Register(Descriptor{ID: "a", DependsOn: []string{"b"}}, noopBuild))
	require.NoError(t, r.Register(Descriptor{ID: "b", DependsOn: []string{"c"}}, noopBuild))

	err := r.Register(Descriptor{ID: "c", DependsOn: []string{"a"}}, noopBuild)
	require.ErrorIs(t, err, ErrDependencyCycle)

	// The failed registration must not be visible.
	_, ok := r.Descriptor("c")
	assert.False(t, ok)
}

func TestRegistryRegister_SelfCycle(t *testing.T) {
	setupFeatureTest(t)
	r := NewRegistry()

	err := r.Register(Descriptor{ID: "narcissist", DependsOn: []string{"narcissist"}}, noopBuild)
	require.ErrorIs(t, err, ErrDependencyCycle)
}

func TestRegistryRegister_DanglingDependencyAllowed(t *testing.T) {
	setupFeatureTest(t)
	r := NewRegistry()

	// Depending on a not-yet-registered feature is fine at registration
	// time; the gate treats the missing dependency as disabled.
	require.NoError(t, r.Register(Descriptor{ID: "leaf", DependsOn: []string{"unregistered"}}, noopBuild))
}

func TestRegistryAll_Sorted(t *testing.T) {
	setupFeatureTest(t)
	r := NewRegistry()

	require.NoError(t, r.Register(Descriptor{ID: "zeta"}, noopBuild))
	require.NoError(t, r.Register(Descriptor{ID: "alpha"}, noopBuild))
	require.NoError(t, r.Register(Descriptor{ID: "mid"}, noopBuild))

	var ids []string
	for _, d := range r.All() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}

func TestRegistryProvider_Memoized(t *testing.T) {
	setupFeatureTest(t)
	r := NewRegistry()

	builds := 0
	require.NoError(t, r.Register(Descriptor{ID: "lazy"}, func() (any, error) {
		builds++
		return "provider", nil
	}))

	// Registration alone must not construct the provider.
	assert.Equal(t, 0, builds)

	v1, err := r.Provider("lazy")
	require.NoError(t, err)
	v2, err := r.Provider("lazy")
	require.NoError(t, err)

	assert.Equal(t, "provider", v1)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, builds)
}

func TestRegistryProvider_BuildErrorRemembered(t *testing.T) {
	setupFeatureTest(t)
	r := NewRegistry()

	buildErr := errors.New("no credentials")
	builds := 0
	require.NoError(t, r.Register(Descriptor{ID: "broken"}, func() (any, error) {
		builds++
		return nil, buildErr
	}))

	_, err := r.Provider("broken")
	require.ErrorIs(t, err, buildErr)
	_, err = r.Provider("broken")
	require.ErrorIs(t, err, buildErr)
	assert.Equal(t, 1, builds)
}

func TestRegistryProvider_Unknown(t *testing.T) {
	setupFeatureTest(t)
	r := NewRegistry()

	_, err := r.Provider("ghost")
	require.ErrorIs(t, err, ErrUnknownFeature)
}

func TestDefaultEnvVar(t *testing.T) {
	assert.Equal(t, "PREMIUM_BOOKCOVER_API_ENABLED", DefaultEnvVar("bookcover_api"))
	assert.Equal(t, "PREMIUM_NATIONAL_LIBRARY_ENABLED", DefaultEnvVar("national_library"))

	d := Descriptor{ID: "custom", EnvVar: "MY_SWITCH"}
	assert.Equal(t, "MY_SWITCH", d.envVar())
	assert.Equal(t, "features.custom.enabled", d.ConfigKey())
}

func TestDefaultRegistry(t *testing.T) {
	setupFeatureTest(t)
	r := DefaultRegistry()

	for _, id := range []string{NationalLibraryID, BookcoverAPIID} {
		desc, ok := r.Descriptor(id)
		require.True(t, ok, "expected %s to be registered", id)
		assert.NotEmpty(t, desc.DisplayName)

		provider, err := r.Provider(id)
		require.NoError(t, err)
		assert.NotNil(t, provider)
	}
}
