package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 5*time.Minute, cfg.AccommodationCacheTTL)
	require.Equal(t, 4.0, cfg.AccommodationMaxMultiplier)
	require.Equal(t, 15*time.Second, cfg.SweepInterval)
	require.Equal(t, 100, cfg.SweepBatchSize)
	require.Equal(t, 120, cfg.AutosavePerMinute)
	require.Equal(t, time.Second, cfg.RealtimeTick)
	require.False(t, cfg.SeedEnabled)
	require.Equal(t, 20, cfg.DatabaseMaxOpenConns)
	require.Equal(t, 30*time.Minute, cfg.DatabaseConnMaxLifetime)
	require.Equal(t, "*", cfg.CORSAllowOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_SWEEP_INTERVAL", "5s")
	t.Setenv("GEMA_ACCOMMODATION_MAX_MULTIPLIER", "2.5")
	t.Setenv("GEMA_SEED_ENABLED", "true")
	t.Setenv("GEMA_SEED_TOKEN", "demo")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.SweepInterval)
	require.Equal(t, 2.5, cfg.AccommodationMaxMultiplier)
	require.True(t, cfg.SeedEnabled)
	require.Equal(t, "demo", cfg.SeedToken)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_SWEEP_INTERVAL", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "sweep.interval")
}
