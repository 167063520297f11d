package testutil

import (
	"testing"

	"github.com/lepinkainen/recto/internal/config"
	"github.com/spf13/viper"
)

// ResetConfig resets viper and restores it, along with the config package
// globals, when the test completes.
func ResetConfig(t *testing.T) {
	t.Helper()

	debug, region := config.Debug, config.Region
	viper.Reset()

	t.Cleanup(func() {
		config.Debug = debug
		config.Region = region
		viper.Reset()
	})
}

// SetTestConfig resets viper, installs the defaults and points both
// databases into env. It restores everything when the test completes.
func SetTestConfig(t *testing.T, env *TestEnv) {
	t.Helper()

	ResetConfig(t)
	config.InitConfig()

	viper.Set("store.dbfile", env.Path("recto.db"))
	viper.Set("cache.dbfile", env.Path("cache.db"))
	config.Debug = false
	config.Region = "US"
}
