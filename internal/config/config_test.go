package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadAppliesDefaults(t *testing.T) {
	v := newTestViper()
	v.Set("runtime.jwt-secret", "shh")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Environment)
	assert.Equal(t, "0.0.0.0", cfg.Server.IP)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Runtime.PointsQueueCapacity)
	assert.Equal(t, "kz-stats-fit", cfg.Runtime.StatsBinaryPath)
	assert.Equal(t, "DepotDownloaderMod", cfg.DepotDownloader.BinaryPath)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	v := newTestViper()

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt-secret")
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	v := newTestViper()
	v.Set("runtime.jwt-secret", "shh")
	v.Set("environment", "moon-base")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moon-base")
}

func TestLoadAcceptsEachKnownEnvironment(t *testing.T) {
	for _, env := range []Environment{EnvLocal, EnvStaging, EnvProduction} {
		v := newTestViper()
		v.Set("runtime.jwt-secret", "shh")
		v.Set("environment", string(env))

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, env, cfg.Environment)
	}
}
