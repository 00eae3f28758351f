package testutil

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/MarcinSachs/libriya/internal/config"
)

// ConfigState holds the state of the config package variables.
type ConfigState struct {
	CoversDir          string
	DefaultCoverPath   string
	PremiumCoversFirst bool
}

// SaveConfigState captures the current state of config package variables.
func SaveConfigState() ConfigState {
	return ConfigState{
		CoversDir:          config.CoversDir,
		DefaultCoverPath:   config.DefaultCoverPath,
		PremiumCoversFirst: config.PremiumCoversFirst,
	}
}

// RestoreConfigState restores the config package variables to a saved state.
func RestoreConfigState(state ConfigState) {
	config.CoversDir = state.CoversDir
	config.DefaultCoverPath = state.DefaultCoverPath
	config.PremiumCoversFirst = state.PremiumCoversFirst
}

// ResetConfig saves the current config state and schedules restoration
// when the test completes. It also resets viper.
func ResetConfig(t *testing.T) {
	t.Helper()

	state := SaveConfigState()
	viper.Reset()

	t.Cleanup(func() {
		RestoreConfigState(state)
		viper.Reset()
	})
}

// SetTestConfig sets up a test configuration with common defaults and
// restores the previous state when the test completes.
func SetTestConfig(t *testing.T) {
	t.Helper()

	state := SaveConfigState()
	viper.Reset()
	config.SetDefaults()

	config.CoversDir = t.TempDir()
	config.DefaultCoverPath = "/static/default-book-cover.png"
	config.PremiumCoversFirst = false

	t.Cleanup(func() {
		RestoreConfigState(state)
		viper.Reset()
	})
}

// SetViperValue sets a viper configuration value and schedules cleanup.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()

	oldValue := viper.Get(key)
	hadValue := viper.IsSet(key)

	viper.Set(key, value)

	t.Cleanup(func() {
		if hadValue {
			viper.Set(key, oldValue)
		}
		// viper has no Unset, so a previously unset key stays set.
	})
}

// SetupTestCache points the cache at a database file inside the test
// environment and returns the cache directory.
func SetupTestCache(t *testing.T, env *TestEnv) string {
	t.Helper()

	cacheDir := env.Path("cache")
	env.MkdirAll("cache")

	SetViperValue(t, "cache.dbfile", env.Path("cache", "test-cache.db"))
	SetViperValue(t, "cache.ttl", "24h")

	return cacheDir
}

// SetupTenantDB points the tenant flag store at a database file inside the
// test environment and returns its path.
func SetupTenantDB(t *testing.T, env *TestEnv) string {
	t.Helper()

	dbPath := env.Path("tenants.db")
	SetViperValue(t, "tenants.dbfile", dbPath)
	return dbPath
}
