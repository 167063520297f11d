package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/lepinkainen/recto/internal/cache"
	"github.com/lepinkainen/recto/internal/config"
	recerrors "github.com/lepinkainen/recto/internal/errors"
	"github.com/spf13/viper"
)

// CLI represents the complete command structure for the recto application
type CLI struct {
	// Global flags
	Debug  bool   `help:"Enable debug logging"`
	Format string `help:"Output format" enum:"json,yaml" default:"json"`
	Region string `help:"Default storefront region for links"`

	// Database flags
	StoreDB     string `help:"Path to the record store SQLite database (overrides store.dbfile)"`
	CacheDBFile string `help:"Path to cache SQLite database file (overrides cache.dbfile)"`
	CacheTTL    string `help:"Search cache time-to-live duration, e.g. 24h (overrides cache.ttl)"`

	Resolve ResolveCmd `cmd:"" help:"Resolve a work key into a canonical record"`
	Links   LinksCmd   `cmd:"" help:"Show retailer and library links for a work key"`
	Search  SearchCmd  `cmd:"" help:"Search OpenLibrary by title, author or genre"`
	Cache   CacheCmd   `cmd:"" help:"Manage the search cache"`
}

// CacheCmd groups the cache maintenance subcommands
type CacheCmd struct {
	Invalidate   cache.InvalidateCacheCmd `cmd:"" help:"Remove every cached entry for a source"`
	ClearExpired cache.ClearExpiredCmd    `cmd:"" help:"Remove expired cache entries"`
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging(slog.LevelInfo)
	initConfig()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("recto"),
		kong.Description("Resolve, enrich and link book records from OpenLibrary."),
		kong.UsageOnError(),
	)

	updateGlobalConfig(&cli)
	if config.Debug {
		initLogging(slog.LevelDebug)
	}

	if err := ctx.Run(); err != nil {
		slog.Error("Command failed", "error", err, "status", recerrors.HTTPStatus(err))
		os.Exit(exitCode(err))
	}
}

func initConfig() {
	config.InitConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
		slog.Debug("Config file not found, using defaults")
	}

	// Values from the file may have changed the globals.
	config.Debug = viper.GetBool("debug")
	config.Region = viper.GetString("region")
}

func updateGlobalConfig(cli *CLI) {
	if cli.Debug {
		config.SetDebug(true)
	}
	config.SetRegion(cli.Region)

	viper.Set("output.format", cli.Format)
	if cli.Region != "" {
		viper.Set("region", cli.Region)
	}
	if cli.StoreDB != "" {
		viper.Set("store.dbfile", cli.StoreDB)
	}
	if cli.CacheDBFile != "" {
		viper.Set("cache.dbfile", cli.CacheDBFile)
	}
	if cli.CacheTTL != "" {
		viper.Set("cache.ttl", cli.CacheTTL)
	}
}

// exitCode maps the error taxonomy onto process exit codes.
func exitCode(err error) int {
	switch {
	case recerrors.IsValidation(err):
		return 2
	case recerrors.IsNotFound(err):
		return 3
	case recerrors.IsServiceUnavailable(err):
		return 4
	default:
		return 1
	}
}

func initLogging(level slog.Level) {
	// Logs go to stderr so command output on stdout stays machine-readable
	handler := humanlog.NewHandler(os.Stderr, &humanlog.Options{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}
