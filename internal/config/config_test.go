package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "sitescope.db", cfg.Store.DSN)
	assert.Equal(t, "https://clinicaltrials.gov/api/v2", cfg.Registry.BaseURL)
	assert.Equal(t, 100, cfg.Registry.PageSize)
	assert.Equal(t, 3, cfg.Registry.MaxRetries)
	assert.Equal(t, 85, cfg.Fuzzy.Threshold)
	assert.InDelta(t, 0.4, cfg.Match.Weights.Therapeutic, 0.001)
	assert.InDelta(t, 0.2, cfg.Match.Weights.Phase, 0.001)
	assert.InDelta(t, 0.2, cfg.Match.Weights.Intervention, 0.001)
	assert.InDelta(t, 0.2, cfg.Match.Weights.Region, 0.001)
	assert.InDelta(t, 0.3, cfg.Match.RegionPartial, 0.001)
	assert.False(t, cfg.Match.PerformanceBonus)
	assert.Equal(t, 12, cfg.Quality.RecencyMonths)
	assert.Equal(t, 5, cfg.Cluster.Count)
	assert.Equal(t, 100, cfg.Cluster.MaxIters)
	assert.Equal(t, int64(42), cfg.Cluster.Seed)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: postgres
  dsn: postgres://localhost/sitescope
fuzzy:
  threshold: 90
cluster:
  count: 3
log:
  level: debug
  format: console
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/sitescope", cfg.Store.DSN)
	assert.Equal(t, 90, cfg.Fuzzy.Threshold)
	assert.Equal(t, 3, cfg.Cluster.Count)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 100, cfg.Registry.PageSize)
	assert.InDelta(t, 0.4, cfg.Match.Weights.Therapeutic, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SITESCOPE_STORE_DRIVER", "postgres")
	t.Setenv("SITESCOPE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("SITESCOPE_SERVER_PORT", "3000")
	t.Setenv("SITESCOPE_FUZZY_THRESHOLD", "80")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 80, cfg.Fuzzy.Threshold)
}

func validConfig(t *testing.T) *Config {
	chtemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidateWeightsMustSumToOne(t *testing.T) {
	cfg := validConfig(t)
	cfg.Match.Weights.Therapeutic = 0.5

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "match.weights must sum to 1.0")
}

func TestValidateThresholdBounds(t *testing.T) {
	cfg := validConfig(t)

	cfg.Fuzzy.Threshold = -1
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy.threshold")

	cfg.Fuzzy.Threshold = 101
	assert.Error(t, cfg.Validate())

	cfg.Fuzzy.Threshold = 100
	assert.NoError(t, cfg.Validate())
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validConfig(t)
	cfg.Store.Driver = "mysql"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidateClusterBounds(t *testing.T) {
	cfg := validConfig(t)

	cfg.Cluster.Count = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cluster.count must be >= 1")

	cfg.Cluster.Count = 5
	cfg.Cluster.MaxIters = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := validConfig(t)
	cfg.Fuzzy.Threshold = 200
	cfg.Quality.RecencyMonths = 0
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy.threshold")
	assert.Contains(t, err.Error(), "quality.recency_months")
	assert.Contains(t, err.Error(), "server.port")
}

func TestMetricsConfigMapping(t *testing.T) {
	cfg := validConfig(t)
	cfg.Quality.RecencyMonths = 18

	mc := cfg.MetricsConfig()
	assert.InDelta(t, 0.4, mc.Weights.Therapeutic, 0.001)
	assert.InDelta(t, 0.3, mc.RegionPartial, 0.001)
	assert.Equal(t, 18, mc.RecencyMonths)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
