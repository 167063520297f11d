package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lepinkainen/recto/internal/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestData struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// hasEntry reports whether key is stored in table, expired or not.
func hasEntry(c *CacheDB, table, key string) bool {
	if validateTableName(table) != nil {
		return false
	}
	var one int
	err := c.db.QueryRow("SELECT 1 FROM "+table+" WHERE cache_key = ? LIMIT 1", key).Scan(&one)
	return err == nil
}

func setupTestCache(t *testing.T) *CacheDB {
	t.Helper()

	// Register test_cache as a valid table name for tests
	ValidCacheTableNames["test_cache"] = true
	t.Cleanup(func() {
		delete(ValidCacheTableNames, "test_cache")
	})

	env := testutil.NewTestEnv(t)
	cache, err := NewCacheDB(env.Path("test_cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	testSchema := `
		CREATE TABLE IF NOT EXISTS test_cache (
			cache_key TEXT PRIMARY KEY NOT NULL,
			data TEXT NOT NULL,
			cached_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);
	`
	require.NoError(t, cache.CreateTable(testSchema))
	return cache
}

// advance moves the cache clock forward by d.
func advance(cache *CacheDB, d time.Duration) {
	base := cache.now()
	cache.now = func() time.Time { return base.Add(d) }
}

func TestGetOrFetch_CacheHit(t *testing.T) {
	cache := setupTestCache(t)
	require.NoError(t, cache.Set("test_cache", "test-key", `{"id":1,"name":"Test"}`, time.Hour))

	fetchCalled := false
	result, fromCache, err := GetOrFetchWithTTL(context.Background(), cache, "test_cache", "test-key",
		func(context.Context) (TestData, error) {
			fetchCalled = true
			return TestData{}, nil
		}, nil)

	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.False(t, fetchCalled)
	assert.Equal(t, TestData{ID: 1, Name: "Test"}, result)
}

func TestGetOrFetch_CacheMiss(t *testing.T) {
	cache := setupTestCache(t)

	calls := 0
	fetch := func(context.Context) (TestData, error) {
		calls++
		return TestData{ID: 2, Name: "Fetched"}, nil
	}

	result, fromCache, err := GetOrFetchWithTTL(context.Background(), cache, "test_cache", "miss", fetch, nil)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "Fetched", result.Name)

	result, fromCache, err = GetOrFetchWithTTL(context.Background(), cache, "test_cache", "miss", fetch, nil)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, 2, result.ID)
	assert.Equal(t, 1, calls)
}

func TestGetOrFetch_NegativeTTL(t *testing.T) {
	cache := setupTestCache(t)

	selector := SelectNegativeCacheTTL(24*time.Hour, time.Hour, func(d TestData) bool { return d.ID == 0 })
	calls := 0
	fetch := func(context.Context) (TestData, error) {
		calls++
		return TestData{}, nil
	}

	_, _, err := GetOrFetchWithTTL(context.Background(), cache, "test_cache", "empty", fetch, selector)
	require.NoError(t, err)

	advance(cache, 30*time.Minute)
	_, fromCache, err := GetOrFetchWithTTL(context.Background(), cache, "test_cache", "empty", fetch, selector)
	require.NoError(t, err)
	assert.True(t, fromCache)

	advance(cache, time.Hour)
	_, fromCache, err = GetOrFetchWithTTL(context.Background(), cache, "test_cache", "empty", fetch, selector)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 2, calls)
}

func TestGetOrFetch_ZeroTTLSkipsStore(t *testing.T) {
	cache := setupTestCache(t)

	_, _, err := GetOrFetchWithTTL(context.Background(), cache, "test_cache", "skip",
		func(context.Context) (TestData, error) { return TestData{ID: 1}, nil },
		func(TestData) time.Duration { return 0 })
	require.NoError(t, err)
	assert.False(t, hasEntry(cache, "test_cache", "skip"))
}

func TestGetOrFetch_FetchError(t *testing.T) {
	cache := setupTestCache(t)
	boom := errors.New("upstream down")

	_, fromCache, err := GetOrFetchWithTTL(context.Background(), cache, "test_cache", "err",
		func(context.Context) (TestData, error) { return TestData{}, boom }, nil)
	require.ErrorIs(t, err, boom)
	assert.False(t, fromCache)
	assert.False(t, hasEntry(cache, "test_cache", "err"))
}

func TestGetOrFetch_NilCacheFetchesDirectly(t *testing.T) {
	result, fromCache, err := GetOrFetchWithTTL(context.Background(), nil, "test_cache", "k",
		func(context.Context) (TestData, error) { return TestData{ID: 9}, nil }, nil)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 9, result.ID)
}

func TestCacheDB_GetExpired(t *testing.T) {
	cache := setupTestCache(t)
	require.NoError(t, cache.Set("test_cache", "k", "v", time.Minute))

	data, ok, err := cache.Get("test_cache", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", data)

	advance(cache, time.Minute)
	_, ok, err = cache.Get("test_cache", "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, hasEntry(cache, "test_cache", "k"))
}

func TestCacheDB_ClearExpired(t *testing.T) {
	cache := setupTestCache(t)
	require.NoError(t, cache.Set("test_cache", "short", "v", time.Minute))
	require.NoError(t, cache.Set("test_cache", "long", "v", time.Hour))

	advance(cache, 2*time.Minute)
	rows, err := cache.ClearExpired("test_cache")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.False(t, hasEntry(cache, "test_cache", "short"))
	assert.True(t, hasEntry(cache, "test_cache", "long"))
}

func TestCacheDB_InvalidateSource(t *testing.T) {
	cache := setupTestCache(t)
	require.NoError(t, cache.Set("test_cache", "a", "1", time.Hour))
	require.NoError(t, cache.Set("test_cache", "b", "2", time.Hour))

	rows, err := cache.InvalidateSource("test_cache")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.False(t, hasEntry(cache, "test_cache", "a"))
}

func TestCacheDB_RejectsUnknownTables(t *testing.T) {
	cache := setupTestCache(t)

	_, err := cache.InvalidateSource("records; DROP TABLE records")
	require.Error(t, err)
	require.Error(t, cache.Set("nope", "k", "v", time.Hour))
	_, _, err = cache.Get("nope", "k")
	require.Error(t, err)
	assert.False(t, hasEntry(cache, "nope", "k"))
}

func TestInvalidateCacheCmd(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	env := testutil.NewTestEnv(t)
	dbPath := env.Path("cache.db")
	viper.Set("cache.dbfile", dbPath)

	seed, err := NewCacheDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, seed.Set("search_cache", "title:dune:1", "{}", time.Hour))
	require.NoError(t, seed.Close())

	require.NoError(t, (&InvalidateCacheCmd{Source: "search"}).Run())
	require.Error(t, (&InvalidateCacheCmd{Source: "tmdb"}).Run())
	require.NoError(t, (&ClearExpiredCmd{}).Run())

	check, err := NewCacheDB(dbPath)
	require.NoError(t, err)
	defer func() { _ = check.Close() }()
	assert.False(t, hasEntry(check, "search_cache", "title:dune:1"))
}
