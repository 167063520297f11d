package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// InvalidateCacheCmd represents the cache invalidate subcommand
type InvalidateCacheCmd struct {
	Source string `arg:"" help:"Cache source to invalidate: search" required:""`
}

func (i *InvalidateCacheCmd) Run() error {
	tableName := i.Source + "_cache"
	if !ValidCacheTableNames[tableName] {
		return fmt.Errorf("invalid cache source '%s'; valid sources are: %s", i.Source, strings.Join(sources(), ", "))
	}

	cacheDB, err := openConfigured()
	if err != nil {
		return err
	}
	defer func() { _ = cacheDB.Close() }()

	slog.Info("Invalidating cache", "source", i.Source, "database", cacheDB.Path())

	rowsDeleted, err := cacheDB.InvalidateSource(tableName)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	slog.Info("Cache invalidated", "source", i.Source, "rows_deleted", rowsDeleted)
	return nil
}

// ClearExpiredCmd represents the cache clear-expired subcommand
type ClearExpiredCmd struct{}

func (c *ClearExpiredCmd) Run() error {
	cacheDB, err := openConfigured()
	if err != nil {
		return err
	}
	defer func() { _ = cacheDB.Close() }()

	var errs []error
	var total int64
	for _, source := range sources() {
		rows, err := cacheDB.ClearExpired(source + "_cache")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += rows
	}

	slog.Info("Expired cache entries removed", "database", cacheDB.Path(), "rows_deleted", total)
	return errors.Join(errs...)
}

// openConfigured opens the cache database named by the cache.dbfile setting.
func openConfigured() (*CacheDB, error) {
	dbPath := viper.GetString("cache.dbfile")
	if dbPath == "" {
		dbPath = "./cache.db"
	}
	cacheDB, err := NewCacheDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	return cacheDB, nil
}

func sources() []string {
	var out []string
	for name := range ValidCacheTableNames {
		out = append(out, strings.TrimSuffix(name, "_cache"))
	}
	sort.Strings(out)
	return out
}
