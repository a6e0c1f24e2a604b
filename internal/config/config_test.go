package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneroute/internal/opt"
	"zoneroute/internal/planner"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.Development())

	pc, err := cfg.PlannerConfig()
	require.NoError(t, err)
	assert.Equal(t, planner.DefaultConfig(), pc)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte("PORT=9090\nSTRATEGY=tsp\nDELIVERY_DAY=Fri\n"), 0o644))
	t.Setenv("STRATEGY", "nearest2opt")
	t.Setenv("CLUSTER_ZONES", "ZMRC, VER")
	t.Setenv("CACHE_TTL", "2m")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)

	pc, err := cfg.PlannerConfig()
	require.NoError(t, err)
	assert.Equal(t, opt.StrategyNearest2Opt, pc.Strategy)
	assert.Equal(t, []string{"ZMRC", "VER"}, pc.Cluster.Zones)
	assert.Equal(t, time.Friday, pc.Context.Day)
}

func TestLoadRejectsUnknownSettings(t *testing.T) {
	t.Setenv("STRATEGY", "genetic")
	_, err := Load(t.TempDir())
	assert.Error(t, err)

	t.Setenv("STRATEGY", "tsp")
	t.Setenv("DELIVERY_HOUR", "25")
	_, err = Load(t.TempDir())
	assert.Error(t, err)
}
