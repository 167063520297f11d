package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/recto/internal/affiliate"
	"github.com/lepinkainen/recto/internal/cache"
	"github.com/lepinkainen/recto/internal/config"
	"github.com/lepinkainen/recto/internal/openlibrary"
	"github.com/lepinkainen/recto/internal/ratelimit"
	"github.com/lepinkainen/recto/internal/resolver"
	"github.com/lepinkainen/recto/internal/search"
	"github.com/lepinkainen/recto/internal/store"
	"github.com/spf13/viper"
)

// backfillDrainTimeout bounds how long a command waits for queued backfills
// before exiting.
const backfillDrainTimeout = 15 * time.Second

// app holds the wired components for one command invocation.
type app struct {
	settings  config.Settings
	store     *store.SQLiteStore
	cache     *cache.CacheDB
	client    *openlibrary.Client
	backfill  *resolver.Backfiller
	resolver  *resolver.Resolver
	search    *search.Service
	affiliate affiliate.IDSource
}

// newApp opens the databases and wires the resolver from the current viper
// configuration.
func newApp() (*app, error) {
	settings, err := config.Load(nil)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{settings: settings, affiliate: affiliate.NewViperIDSource(viper.GetViper())}

	a.store = store.NewSQLiteStore(settings.StoreDB)
	if err := a.store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	if settings.CacheDB != "" {
		a.cache, err = cache.NewCacheDB(settings.CacheDB)
		if err != nil {
			_ = a.store.Close()
			return nil, fmt.Errorf("failed to open cache database: %w", err)
		}
	}

	ol := settings.OpenLibrary
	a.client = openlibrary.NewClient(
		openlibrary.WithHTTPClient(openlibrary.NewHTTPClient(ol.MaxConnsPerHost)),
		openlibrary.WithBaseURL(ol.BaseURL),
		openlibrary.WithUserAgent(ol.UserAgent),
		openlibrary.WithRateLimiter(ratelimit.New(openlibrary.SourceName, ol.RatePerSecond)),
		openlibrary.WithTimeouts(ol.WorkTimeout, ol.EditionsTimeout, ol.SearchTimeout),
	)

	a.backfill = resolver.NewBackfiller(a.store, a.client,
		resolver.WithWorkers(settings.Backfill.Workers),
		resolver.WithQueueSize(settings.Backfill.QueueSize),
		resolver.WithRetryDelay(settings.Backfill.RetryDelay),
	)

	a.resolver = resolver.New(a.store, a.client,
		resolver.WithFreshness(settings.Freshness),
		resolver.WithMatchPolicy(settings.Match),
		resolver.WithBackfill(a.backfill),
	)

	a.search = search.NewService(a.client, search.WithCache(a.cache, settings.CacheTTL, settings.NegativeCacheTTL))

	slog.Debug("Components wired",
		"store", settings.StoreDB,
		"cache", settings.CacheDB,
		"openlibrary", ol.BaseURL,
		"freshness", settings.Freshness)
	return a, nil
}

// close drains pending backfills and closes both databases.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), backfillDrainTimeout)
	defer cancel()

	var errs []error
	if err := a.backfill.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("backfill did not finish: %w", err))
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
