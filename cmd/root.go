// Package cmd wires the resolution pipeline into the libriya command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/MarcinSachs/libriya/internal/cache"
	"github.com/MarcinSachs/libriya/internal/config"
	"github.com/MarcinSachs/libriya/internal/coverstore"
	"github.com/MarcinSachs/libriya/internal/feature"
	"github.com/MarcinSachs/libriya/internal/resolve"
	"github.com/MarcinSachs/libriya/internal/tenant"
	"github.com/MarcinSachs/libriya/internal/tui"
)

// Indirections for tests.
var (
	selectResult  = tui.Select
	downloadCover = coverstore.Download
)

// CLI represents the complete command structure for the libriya application.
type CLI struct {
	// Global flags
	Tenant int64 `help:"Tenant whose feature flags govern this invocation (0 = anonymous)" default:"0"`

	// Cache flags
	CacheDBFile string `help:"Path to cache SQLite database file" default:"./cache.db"`
	CacheTTL    string `help:"Cache time-to-live duration (e.g., 720h for 30 days)" default:"720h"`

	// Tenant store flags
	TenantsDBFile string `help:"Path to tenant feature flag SQLite database file" default:"./tenants.db"`

	// Cover flags
	CoversDir       string `help:"Directory downloaded cover images are written to" default:"./covers/"`
	CoverPrecedence string `help:"Cover chain order: 'embedded' or 'premium' first" default:"embedded" enum:"embedded,premium"`

	// Feature manifest
	FeatureManifest string `help:"Path to a features.yaml manifest (optional)"`

	Lookup   LookupCmd   `cmd:"" help:"Resolve book metadata and covers"`
	Features FeaturesCmd `cmd:"" help:"Manage per-tenant feature flags"`
	Cache    CacheCmd    `cmd:"" help:"Manage the provider response cache"`
}

// LookupCmd groups the resolution commands.
type LookupCmd struct {
	ISBN  ISBNCmd  `cmd:"" help:"Resolve a single book by ISBN"`
	Title TitleCmd `cmd:"" help:"Search books by title"`
}

// ISBNCmd resolves one ISBN to metadata plus a cover.
type ISBNCmd struct {
	ISBN     string `arg:"" help:"ISBN-10 or ISBN-13, hyphens and spaces allowed"`
	Download bool   `help:"Download the resolved cover into the covers directory"`
}

// TitleCmd searches by title across the enabled catalogs.
type TitleCmd struct {
	Title         string `arg:"" help:"Title to search for (minimum 3 characters)"`
	Author        string `short:"a" help:"Optional author name to narrow the search"`
	Limit         int    `short:"n" help:"Maximum number of results" default:"10"`
	NoInteractive bool   `help:"Print all results instead of opening the selection UI"`
}

// FeaturesCmd groups the feature flag admin commands.
type FeaturesCmd struct {
	List    FeaturesListCmd    `cmd:"" help:"List features and their state for a tenant"`
	Enable  FeaturesEnableCmd  `cmd:"" help:"Enable a feature for a tenant"`
	Disable FeaturesDisableCmd `cmd:"" help:"Disable a feature for a tenant"`
	Clear   FeaturesClearCmd   `cmd:"" help:"Remove a tenant's explicit flag so the environment default applies"`
}

// FeaturesListCmd lists the registered features.
type FeaturesListCmd struct{}

// FeaturesEnableCmd enables a feature for a tenant.
type FeaturesEnableCmd struct {
	Feature string `arg:"" help:"Feature ID"`
}

// FeaturesDisableCmd disables a feature for a tenant.
type FeaturesDisableCmd struct {
	Feature string `arg:"" help:"Feature ID"`
}

// FeaturesClearCmd clears a tenant's explicit flag.
type FeaturesClearCmd struct {
	Feature string `arg:"" help:"Feature ID"`
}

// CacheCmd groups cache maintenance commands.
type CacheCmd struct {
	Clear CacheClearCmd `cmd:"" help:"Drop all cached provider responses"`
}

// CacheClearCmd empties every provider cache table.
type CacheClearCmd struct{}

// Execute runs the Kong-based CLI.
func Execute() {
	initLogging()
	initConfig()

	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("libriya"),
		kong.Description("Book metadata and cover resolution pipeline."),
		kong.UsageOnError(),
		kong.Bind(&cli),
	)

	updateGlobalConfig(&cli)

	err := ctx.Run()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults()

	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Debug("Config file not found, using defaults")
		} else {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}

	config.InitConfig()
}

func updateGlobalConfig(cli *CLI) {
	viper.Set("cache.dbfile", cli.CacheDBFile)
	viper.Set("cache.ttl", cli.CacheTTL)
	viper.Set("tenants.dbfile", cli.TenantsDBFile)
	viper.Set("covers.dir", cli.CoversDir)
	viper.Set("covers.precedence", cli.CoverPrecedence)

	config.CoversDir = cli.CoversDir
	config.PremiumCoversFirst = cli.CoverPrecedence == "premium"
}

// pipeline bundles the gate, its backing flag store and the orchestrator
// for the duration of one command.
type pipeline struct {
	registry     *feature.Registry
	gate         *feature.Gate
	store        *tenant.Store
	orchestrator *resolve.Orchestrator
	tenant       feature.Tenant
}

func (p *pipeline) close() {
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			slog.Warn("Failed to close tenant store", "error", err)
		}
	}
}

func newPipeline(cli *CLI) (*pipeline, error) {
	registry, err := buildRegistry(cli.FeatureManifest)
	if err != nil {
		return nil, err
	}

	store, err := tenant.Open(viper.GetString("tenants.dbfile"))
	if err != nil {
		return nil, err
	}

	gate := feature.NewGate(registry, store)
	return &pipeline{
		registry:     registry,
		gate:         gate,
		store:        store,
		orchestrator: resolve.New(gate),
		tenant:       feature.Tenant{ID: cli.Tenant},
	}, nil
}

func buildRegistry(manifestPath string) (*feature.Registry, error) {
	if manifestPath == "" {
		return feature.DefaultRegistry(), nil
	}

	manifest, err := feature.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	registry := feature.NewRegistry()
	if err := manifest.Apply(registry, feature.DefaultBuilders()); err != nil {
		return nil, err
	}
	return registry, nil
}

// Run methods for each command

func (c *ISBNCmd) Run(cli *CLI) error {
	p, err := newPipeline(cli)
	if err != nil {
		return err
	}
	defer p.close()

	ctx := context.Background()
	result, err := p.orchestrator.ByISBN(ctx, c.ISBN, p.tenant)
	if err != nil {
		return fmt.Errorf("invalid ISBN %q: %w", c.ISBN, err)
	}
	if result == nil {
		fmt.Printf("No metadata found for %s\n", c.ISBN)
		return nil
	}

	printResult(result)

	if c.Download && strings.HasPrefix(result.Cover.URL, "http") {
		filename, err := downloadCover(ctx, result.Cover.URL, config.CoversDir)
		if err != nil {
			slog.Warn("Cover download failed, keeping remote URL", "error", err)
			return nil
		}
		fmt.Printf("Cover saved as %s\n", filename)
	}

	return nil
}

func (c *TitleCmd) Run(cli *CLI) error {
	p, err := newPipeline(cli)
	if err != nil {
		return err
	}
	defer p.close()

	ctx := context.Background()
	results, err := p.orchestrator.ByTitle(ctx, c.Title, c.Author, c.Limit, p.tenant)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Printf("No results for %q\n", c.Title)
		return nil
	}

	if c.NoInteractive {
		for i := range results {
			printResult(&results[i])
		}
		return nil
	}

	selection, err := selectResult(c.Title, results)
	if err != nil {
		return err
	}
	if selection.Action == tui.ActionSelected && selection.Selection != nil {
		printResult(selection.Selection)
	}
	return nil
}

func (c *FeaturesListCmd) Run(cli *CLI) error {
	p, err := newPipeline(cli)
	if err != nil {
		return err
	}
	defer p.close()

	ctx := context.Background()
	for _, desc := range p.registry.All() {
		state := "disabled"
		if p.gate.IsEnabled(ctx, desc.ID, p.tenant) {
			state = "enabled"
		}
		fmt.Printf("%-24s %-10s %s\n", desc.ID, state, desc.DisplayName)
	}
	return nil
}

func (c *FeaturesEnableCmd) Run(cli *CLI) error {
	return setTenantFlag(cli, c.Feature, true)
}

func (c *FeaturesDisableCmd) Run(cli *CLI) error {
	return setTenantFlag(cli, c.Feature, false)
}

func (c *FeaturesClearCmd) Run(cli *CLI) error {
	if cli.Tenant == 0 {
		return fmt.Errorf("a tenant is required (--tenant)")
	}

	store, err := tenant.Open(viper.GetString("tenants.dbfile"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.ClearFlag(context.Background(), cli.Tenant, c.Feature); err != nil {
		return err
	}
	fmt.Printf("Cleared %s for tenant %d\n", c.Feature, cli.Tenant)
	return nil
}

func setTenantFlag(cli *CLI, featureID string, enabled bool) error {
	if cli.Tenant == 0 {
		return fmt.Errorf("a tenant is required (--tenant)")
	}

	registry, err := buildRegistry(cli.FeatureManifest)
	if err != nil {
		return err
	}
	if _, ok := registry.Descriptor(featureID); !ok {
		return fmt.Errorf("unknown feature %q", featureID)
	}

	store, err := tenant.Open(viper.GetString("tenants.dbfile"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.SetFlag(context.Background(), cli.Tenant, featureID, enabled); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("%s %s for tenant %d\n", featureID, state, cli.Tenant)
	return nil
}

func (c *CacheClearCmd) Run(cli *CLI) error {
	db, err := cache.Global()
	if err != nil {
		return err
	}

	var deleted int64
	for _, table := range cache.CacheTableNames {
		rows, err := db.ClearAll(table)
		if err != nil {
			return err
		}
		deleted += rows
	}
	fmt.Printf("Removed %d cached responses\n", deleted)
	return nil
}

func printResult(result *resolve.Result) {
	rec := result.Record
	fmt.Printf("%s\n", rec.Title)
	if len(rec.Authors) > 0 {
		fmt.Printf("  by %s\n", strings.Join(rec.Authors, ", "))
	}
	if !rec.ISBN.IsZero() {
		fmt.Printf("  ISBN: %s\n", rec.ISBN.Formatted())
	}
	if rec.Year > 0 {
		fmt.Printf("  Year: %d\n", rec.Year)
	}
	if rec.Publisher != "" {
		fmt.Printf("  Publisher: %s\n", rec.Publisher)
	}
	if len(rec.Genres) > 0 {
		fmt.Printf("  Genres: %s\n", strings.Join(rec.Genres, ", "))
	}
	fmt.Printf("  Source: %s\n", rec.Source)
	fmt.Printf("  Cover: %s (%s)\n", result.Cover.URL, result.Cover.Source)
}

func initLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LIBRIYA_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}
