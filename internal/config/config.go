// Package config holds process-wide configuration backed by viper.
package config

import (
	"log/slog"

	"github.com/spf13/viper"
)

// Global configuration variables
var (
	// CoversDir is the directory downloaded cover images are written to.
	CoversDir string
	// DefaultCoverPath is the static asset served when no provider has a cover.
	DefaultCoverPath string
	// PremiumCoversFirst selects the premium client ahead of metadata-embedded
	// covers in the fallback chain.
	PremiumCoversFirst bool
)

// InitConfig initializes the global configuration from viper.
func InitConfig() {
	SetDefaults()

	CoversDir = viper.GetString("covers.dir")
	DefaultCoverPath = viper.GetString("covers.default")
	PremiumCoversFirst = viper.GetString("covers.precedence") == "premium"
}

// SetDefaults registers the default values for every configuration key the
// pipeline reads. Safe to call more than once.
func SetDefaults() {
	viper.SetDefault("covers.dir", "./covers/")
	viper.SetDefault("covers.default", "/static/default-book-cover.png")
	// Precedence between a cover embedded in metadata and the premium
	// client; the providers' own docs disagree, so it stays configurable.
	viper.SetDefault("covers.precedence", "embedded")

	viper.SetDefault("cache.dbfile", "./cache.db")
	viper.SetDefault("cache.ttl", "720h") // 30 days

	viper.SetDefault("tenants.dbfile", "./tenants.db")

	viper.SetDefault("search.limit", 10)
}

// BindFeatureEnv binds the process-wide fallback switch for one optional
// feature, e.g. feature id "bookcover_api" → PREMIUM_BOOKCOVER_API_ENABLED.
func BindFeatureEnv(key, envVar string) {
	if err := viper.BindEnv(key, envVar); err != nil {
		slog.Error("Failed to bind environment variable", "key", key, "env", envVar, "error", err)
	}
}
