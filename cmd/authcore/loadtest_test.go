package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.Equal(t, time.Duration(1), percentile(samples, 0))
	assert.Equal(t, time.Duration(5), percentile(samples, 50))
	assert.Equal(t, time.Duration(10), percentile(samples, 100))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

func TestComputeStatsSortsSamples(t *testing.T) {
	s := computeStats(time.Second, []time.Duration{30, 10, 20}, 1)

	assert.Equal(t, 3, s.ops)
	assert.Equal(t, int64(1), s.failures)
	assert.Equal(t, time.Duration(20), s.p50)
	assert.InDelta(t, 3.0, s.opsPerS, 0.001)
}

func TestEngineConfigFromEnv(t *testing.T) {
	t.Setenv("AUTHCORE_FRONTEND_URL", "https://app.example.com")
	t.Setenv("AUTHCORE_ACCESS_TTL", "5m")
	t.Setenv("AUTHCORE_PRODUCTION_MODE", "false")

	cfg, err := loadEnvConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)

	_, err = cfg.engineConfig(false)
	require.Error(t, err, "secrets are required outside ephemeral mode")

	engineCfg, err := cfg.engineConfig(true)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, engineCfg.Token.AccessTTL)
	assert.Equal(t, "https://app.example.com", engineCfg.PasswordReset.FrontendURL)
	assert.False(t, engineCfg.Security.ProductionMode)
	assert.Len(t, engineCfg.Token.Secret, 64)
}
