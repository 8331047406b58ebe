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
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentSessions)
	assert.Equal(t, 20, cfg.Batch.ErrorTallyLimit)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.3, cfg.Retrieval.MinSimilarity, 0.001)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Stage1Model)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Stage2Model)
	assert.InDelta(t, 0.0, cfg.Anthropic.Temperature, 0.001)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.InDelta(t, 0.02, cfg.Pricing.Embedding.PerMTok, 0.0001)
	assert.InDelta(t, 3.0, cfg.Pricing.Anthropic["claude-sonnet-4-5-20250929"].Input, 0.001)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.10, cfg.Monitoring.FailureRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: catalysts.db
corpus:
  database_url: postgres://localhost/corpus
log:
  level: debug
  format: console
batch:
  max_concurrent_sessions: 8
pricing:
  anthropic:
    claude-sonnet-4-5-20250929:
      input: 2.5
      output: 12
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "catalysts.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "postgres://localhost/corpus", cfg.CorpusURL())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrentSessions)
	assert.InDelta(t, 2.5, cfg.Pricing.Anthropic["claude-sonnet-4-5-20250929"].Input, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.InDelta(t, 1.0, cfg.Pricing.Anthropic["claude-haiku-4-5-20251001"].Input, 0.001)
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

	t.Setenv("CATALYST_STORE_DRIVER", "postgres")
	t.Setenv("CATALYST_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CATALYST_SERVER_PORT", "3000")
	t.Setenv("CATALYST_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("CATALYST_RETRIEVAL_MIN_SIMILARITY", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.InDelta(t, 0.5, cfg.Retrieval.MinSimilarity, 0.001)
}

func TestCorpusURLFallsBackToStore(t *testing.T) {
	cfg := &Config{Store: StoreConfig{DatabaseURL: "postgres://localhost/main"}}
	assert.Equal(t, "postgres://localhost/main", cfg.CorpusURL())
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Batch.MaxConcurrentSessions = 4
	cfg.Retrieval.TopK = 3
	cfg.Retrieval.MinSimilarity = 0.3
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateDetect_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Embedding.Key = "sk-embed-key"

	assert.NoError(t, cfg.Validate(ModeDetect))
}

func TestValidateDetect_MissingFields(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate(ModeDetect)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "embedding.key is required")
}

func TestValidateDetect_SQLiteNeedsCorpus(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "catalysts.db"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Embedding.Key = "sk-embed-key"

	err := cfg.Validate(ModeDetect)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corpus.database_url")

	cfg.Corpus.DatabaseURL = "postgres://localhost/corpus"
	assert.NoError(t, cfg.Validate(ModeDetect))
}

func TestValidateRead(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate(ModeRead)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.NotContains(t, err.Error(), "anthropic.key")

	cfg.Store.DatabaseURL = "postgres://localhost/test"
	assert.NoError(t, cfg.Validate(ModeRead))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"

	cfg.Batch.MaxConcurrentSessions = 0
	err := cfg.Validate(ModeRead)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_sessions must be between 1 and 50")

	cfg.Batch.MaxConcurrentSessions = 50
	cfg.Retrieval.MinSimilarity = 1.5
	err = cfg.Validate(ModeRead)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "min_similarity")

	cfg.Retrieval.MinSimilarity = 0.3
	cfg.Store.Driver = "mysql"
	err = cfg.Validate(ModeRead)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")

	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate(ModeRead))

	cfg.Retrieval.MinSimilarity = 0
	assert.NoError(t, cfg.Validate(ModeRead), "0 disables the similarity floor")

	cfg.Monitoring.FailureRateThreshold = 2
	err = cfg.Validate(ModeRead)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.failure_rate_threshold")
}
