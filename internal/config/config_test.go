package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "worklog.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 30, cfg.Extraction.TimeoutSecs)
	assert.Equal(t, 3, cfg.Extraction.MaxAttempts)
	assert.InDelta(t, 0.3, cfg.Extraction.FallbackMaxConfidence, 0.001)
	assert.Equal(t, 5, cfg.Reasoning.HistoryLimit)
	assert.Equal(t, 300, cfg.RefData.CacheTTLSecs)
	assert.InDelta(t, 0.8, cfg.Matcher.High, 0.001)
	assert.InDelta(t, 0.6, cfg.Matcher.Medium, 0.001)
	assert.InDelta(t, 0.4, cfg.Matcher.Low, 0.001)
	assert.InDelta(t, 0.1, cfg.Matcher.AmbiguityMargin, 0.001)
	assert.Equal(t, 3, cfg.Matcher.MaxCandidates)
	assert.InDelta(t, 0.20, cfg.Scorer.FieldWeight, 0.001)
	assert.InDelta(t, 0.05, cfg.Scorer.SpecificityWeight, 0.001)
	assert.InDelta(t, 0.8, cfg.Strategy.AutoMinConfidence, 0.001)
	assert.InDelta(t, 0.4, cfg.Strategy.ContextualMinConfidence, 0.001)
	assert.Equal(t, 1, cfg.Strategy.AutoMaxMissing)
	assert.Equal(t, 2, cfg.Strategy.ContextualMaxMissing)
	assert.InDelta(t, 0.8, cfg.Validator.ResolveThreshold, 0.001)
	assert.True(t, cfg.Validator.AllowCropMaterial)
	assert.False(t, cfg.Validator.RequireField)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/worklog
log:
  level: debug
  format: console
matcher:
  ambiguity_margin: 0.05
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/worklog", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.05, cfg.Matcher.AmbiguityMargin, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.4, cfg.Matcher.Low, 0.001)
	assert.Equal(t, 300, cfg.RefData.CacheTTLSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("WORKLOG_STORE_DRIVER", "postgres")
	t.Setenv("WORKLOG_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("WORKLOG_SERVER_PORT", "3000")
	t.Setenv("WORKLOG_ANTHROPIC_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
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

// validDefaults returns a Config with the pipeline defaults populated.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "worklog.db"
	cfg.Matcher = MatcherConfig{High: 0.8, Medium: 0.6, Low: 0.4, AmbiguityMargin: 0.1}
	cfg.Strategy = StrategyConfig{AutoMinConfidence: 0.8, ContextualMinConfidence: 0.4}
	cfg.Validator.ResolveThreshold = 0.8
	cfg.Extraction.FallbackMaxConfidence = 0.3
	cfg.Server.Port = 8080
	return cfg
}

func TestValidatePipeline_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("pipeline"))
}

func TestValidateStore_MissingURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateStore_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidatePipeline_BandsOutOfOrder(t *testing.T) {
	cfg := validDefaults()
	cfg.Matcher.Low = 0.7

	err := cfg.Validate("pipeline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matcher bands")
}

func TestValidatePipeline_StrategyOverlap(t *testing.T) {
	cfg := validDefaults()
	cfg.Strategy.ContextualMinConfidence = 0.9

	err := cfg.Validate("pipeline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contextual_min_confidence")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}
