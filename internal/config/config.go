// Package config holds recto's viper-backed settings.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/recto/internal/affiliate"
	"github.com/lepinkainen/recto/internal/catalog"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every automatically bound environment variable,
// so store.dbfile is read from RECTO_STORE_DBFILE.
const EnvPrefix = "RECTO"

// Global configuration variables
var (
	// Debug enables debug level logging
	Debug bool
	// Region is the storefront region used when a command does not name one
	Region string
)

// OpenLibrary configures the external source client.
type OpenLibrary struct {
	BaseURL         string
	UserAgent       string
	WorkTimeout     time.Duration
	EditionsTimeout time.Duration
	SearchTimeout   time.Duration
	RatePerSecond   int
	MaxConnsPerHost int
}

// Backfill configures the background supplementary id backfill.
type Backfill struct {
	Workers    int
	QueueSize  int
	RetryDelay time.Duration
}

// Settings is the typed view of the configuration.
type Settings struct {
	StoreDB          string
	CacheDB          string
	CacheTTL         time.Duration
	NegativeCacheTTL time.Duration
	Freshness        time.Duration
	Region           string
	OpenLibrary      OpenLibrary
	Backfill         Backfill
	Match            catalog.MatchPolicy
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.dbfile", "./recto.db")
	v.SetDefault("cache.dbfile", "./cache.db")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.negative_ttl", "1h")
	v.SetDefault("freshness", "168h") // 7 days
	v.SetDefault("region", "US")

	v.SetDefault("openlibrary.base_url", "https://openlibrary.org")
	v.SetDefault("openlibrary.user_agent", "Recto/1.0 (recto.help@gmail.com)")
	v.SetDefault("openlibrary.work_timeout", "3s")
	v.SetDefault("openlibrary.editions_timeout", "5s")
	v.SetDefault("openlibrary.search_timeout", "10s")
	v.SetDefault("openlibrary.rate_per_second", 5)
	v.SetDefault("openlibrary.max_conns_per_host", 50)

	v.SetDefault("backfill.workers", 4)
	v.SetDefault("backfill.queue_size", 256)
	v.SetDefault("backfill.retry_delay", "2s")

	policy := catalog.DefaultMatchPolicy()
	v.SetDefault("match.disable_containment", policy.DisableContainment)
	v.SetDefault("match.min_containment_length", policy.MinContainmentLength)
	v.SetDefault("match.candidate_limit", policy.CandidateLimit)
}

// BindEnv enables RECTO_ prefixed environment variables and binds the
// conventional affiliate id variables, e.g. AMAZON_AFFILIATE_ID_US.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	for _, platform := range affiliate.AffiliatePlatforms() {
		bind(v, affiliate.ConfigKey(platform, "default"), affiliate.EnvName(platform, ""))
		for _, region := range affiliate.Regions() {
			bind(v, affiliate.ConfigKey(platform, string(region)), affiliate.EnvName(platform, string(region)))
		}
	}
}

func bind(v *viper.Viper, key, env string) {
	if err := v.BindEnv(key, env); err != nil {
		slog.Error("Failed to bind environment variable", "key", key, "env", env, "error", err)
	}
}

// InitConfig initializes the global viper instance and the global variables.
func InitConfig() {
	SetDefaults(viper.GetViper())
	BindEnv(viper.GetViper())

	Debug = viper.GetBool("debug")
	Region = viper.GetString("region")
}

// SetDebug sets the Debug flag
func SetDebug(debug bool) {
	Debug = debug
}

// SetRegion sets the default storefront region
func SetRegion(region string) {
	if region != "" {
		Region = region
	}
}

// Load reads Settings from v, or from the global viper instance when v is nil.
func Load(v *viper.Viper) (Settings, error) {
	if v == nil {
		v = viper.GetViper()
	}

	var s Settings
	var err error
	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"cache.ttl", &s.CacheTTL},
		{"cache.negative_ttl", &s.NegativeCacheTTL},
		{"freshness", &s.Freshness},
		{"openlibrary.work_timeout", &s.OpenLibrary.WorkTimeout},
		{"openlibrary.editions_timeout", &s.OpenLibrary.EditionsTimeout},
		{"openlibrary.search_timeout", &s.OpenLibrary.SearchTimeout},
		{"backfill.retry_delay", &s.Backfill.RetryDelay},
	}
	for _, d := range durations {
		if *d.target, err = duration(v, d.key); err != nil {
			return Settings{}, err
		}
	}

	s.StoreDB = v.GetString("store.dbfile")
	s.CacheDB = v.GetString("cache.dbfile")
	s.Region = v.GetString("region")
	s.OpenLibrary.BaseURL = v.GetString("openlibrary.base_url")
	s.OpenLibrary.UserAgent = v.GetString("openlibrary.user_agent")
	s.OpenLibrary.RatePerSecond = v.GetInt("openlibrary.rate_per_second")
	s.OpenLibrary.MaxConnsPerHost = v.GetInt("openlibrary.max_conns_per_host")
	s.Backfill.Workers = v.GetInt("backfill.workers")
	s.Backfill.QueueSize = v.GetInt("backfill.queue_size")
	s.Match = catalog.MatchPolicy{
		DisableContainment:   v.GetBool("match.disable_containment"),
		MinContainmentLength: v.GetInt("match.min_containment_length"),
		CandidateLimit:       v.GetInt("match.candidate_limit"),
	}

	if s.StoreDB == "" {
		return Settings{}, fmt.Errorf("store.dbfile must not be empty")
	}
	if s.Freshness <= 0 {
		return Settings{}, fmt.Errorf("freshness must be positive, got %s", s.Freshness)
	}
	if s.OpenLibrary.RatePerSecond <= 0 {
		return Settings{}, fmt.Errorf("openlibrary.rate_per_second must be positive, got %d", s.OpenLibrary.RatePerSecond)
	}
	return s, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
