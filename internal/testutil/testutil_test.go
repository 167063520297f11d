package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lepinkainen/recto/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTestEnv_Path(t *testing.T) {
	env := NewTestEnv(t)

	path := env.Path("subdir", "recto.db")
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, filepath.Join(env.rootDir, "subdir", "recto.db"), path)
}

func TestTestEnv_Path_WithinSandbox(t *testing.T) {
	env := NewTestEnv(t)

	assert.True(t, env.isWithinSandbox(env.Path("a", "..", "b")))
	assert.True(t, env.isWithinSandbox(env.rootDir))
	assert.False(t, env.isWithinSandbox(filepath.Dir(env.rootDir)))
	assert.False(t, env.isWithinSandbox(env.rootDir+"-sibling"))
}

// GoldenHelper tests

func TestGoldenHelper_AssertGoldenString(t *testing.T) {
	env := NewTestEnv(t)
	writeFile(t, env.Path("golden", "test.golden"), "expected string content")

	golden := NewGoldenHelper(t, env.Path("golden"))
	golden.AssertGoldenString("test.golden", "expected string content")
}

func TestGoldenHelper_AssertGoldenJSON(t *testing.T) {
	env := NewTestEnv(t)
	writeFile(t, env.Path("golden", "record.json"), `{"title": "Dune", "authors": ["Frank Herbert"]}`)

	golden := NewGoldenHelper(t, env.Path("golden"))
	golden.AssertGoldenJSON("record.json", []byte(`{
  "authors": ["Frank Herbert"],
  "title": "Dune"
}`))
}

func TestGoldenHelper_GoldenPath(t *testing.T) {
	golden := NewGoldenHelper(t, "/some/golden/dir")
	assert.Equal(t, "/some/golden/dir/test.golden", golden.GoldenPath("test.golden"))
}

func TestGoldenHelper_IsUpdateMode(t *testing.T) {
	t.Setenv("UPDATE_GOLDEN", "")
	assert.False(t, NewGoldenHelper(t, "testdata").IsUpdateMode())

	t.Setenv("UPDATE_GOLDEN", "true")
	assert.True(t, NewGoldenHelper(t, "testdata").IsUpdateMode())
}

func TestGoldenHelper_UpdateWritesFile(t *testing.T) {
	t.Setenv("UPDATE_GOLDEN", "true")
	env := NewTestEnv(t)

	golden := NewGoldenHelper(t, env.Path("golden"))
	golden.AssertGoldenString("nested/new.golden", "fresh")

	data, err := os.ReadFile(env.Path("golden", "nested", "new.golden"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

// Config management tests

func TestResetConfig(t *testing.T) {
	origDebug := config.Debug
	origRegion := config.Region

	t.Run("inner", func(t *testing.T) {
		ResetConfig(t)

		config.Debug = !origDebug
		config.Region = "modified"

		assert.NotEqual(t, origDebug, config.Debug)
		assert.NotEqual(t, origRegion, config.Region)
	})

	// After inner test, config should be restored
	assert.Equal(t, origDebug, config.Debug)
	assert.Equal(t, origRegion, config.Region)
}

func TestSetTestConfig(t *testing.T) {
	origRegion := config.Region

	t.Run("inner", func(t *testing.T) {
		env := NewTestEnv(t)
		SetTestConfig(t, env)

		assert.Equal(t, "US", config.Region)
		assert.False(t, config.Debug)
		assert.Equal(t, env.Path("recto.db"), viper.GetString("store.dbfile"))
		assert.Equal(t, env.Path("cache.db"), viper.GetString("cache.dbfile"))
		assert.Equal(t, "24h", viper.GetString("cache.ttl"))
	})

	assert.Equal(t, origRegion, config.Region)
}
