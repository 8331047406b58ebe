package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/catalyst-cli/internal/cost"
)

// Validation modes.
const (
	// ModeDetect is any command that calls the generator or the embedder.
	ModeDetect = "detect"
	// ModeRead is any command that only reads the registry.
	ModeRead = "read"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Corpus     CorpusConfig     `yaml:"corpus" mapstructure:"corpus"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" mapstructure:"retrieval"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Pricing    cost.Rates       `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the registry backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CorpusConfig points at the read-only evidence corpus.
type CorpusConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds generator settings for both stages.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Stage1Model string  `yaml:"stage1_model" mapstructure:"stage1_model"`
	Stage2Model string  `yaml:"stage2_model" mapstructure:"stage2_model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// EmbeddingConfig holds the OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
}

// RetrievalConfig scopes similarity search.
type RetrievalConfig struct {
	TopK          int     `yaml:"top_k" mapstructure:"top_k"`
	MinSimilarity float64 `yaml:"min_similarity" mapstructure:"min_similarity"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions" mapstructure:"max_concurrent_sessions"`
	ErrorTallyLimit       int `yaml:"error_tally_limit" mapstructure:"error_tally_limit"`
}

// RateLimitConfig caps request rates per service. Zero disables a limiter.
type RateLimitConfig struct {
	LLMRPS     float64 `yaml:"llm_rps" mapstructure:"llm_rps"`
	LLMBurst   int     `yaml:"llm_burst" mapstructure:"llm_burst"`
	EmbedRPS   float64 `yaml:"embed_rps" mapstructure:"embed_rps"`
	EmbedBurst int     `yaml:"embed_burst" mapstructure:"embed_burst"`
}

// RetryConfig configures backoff for external calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the per-service circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures run-health alerting. An empty WebhookURL
// disables the background checker.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CorpusURL returns the corpus database URL, falling back to the store's.
func (c *Config) CorpusURL() string {
	if c.Corpus.DatabaseURL != "" {
		return c.Corpus.DatabaseURL
	}
	return c.Store.DatabaseURL
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATALYST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("corpus.database_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.stage1_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.stage2_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.0)
	v.SetDefault("embedding.key", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.min_similarity", 0.3)
	v.SetDefault("batch.max_concurrent_sessions", 4)
	v.SetDefault("batch.error_tally_limit", 20)
	v.SetDefault("ratelimit.llm_rps", 5.0)
	v.SetDefault("ratelimit.llm_burst", 5)
	v.SetDefault("ratelimit.embed_rps", 20.0)
	v.SetDefault("ratelimit.embed_burst", 10)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("pricing.embedding.per_mtok", 0.02)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.cost_threshold_usd", 0.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Pricing = cost.Merge(cost.DefaultRates(), cfg.Pricing)

	return &cfg, nil
}

// Validate checks that the keys mode needs are present and that tunables are
// in range. All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case ModeRead:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case ModeDetect:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
		if c.Store.Driver == "sqlite" && c.Corpus.DatabaseURL == "" {
			errs = append(errs, "corpus.database_url is required with the sqlite store")
		}
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Embedding.Key == "" {
			errs = append(errs, "embedding.key is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}
	if c.Batch.MaxConcurrentSessions < 1 || c.Batch.MaxConcurrentSessions > 50 {
		errs = append(errs, "batch.max_concurrent_sessions must be between 1 and 50")
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, "retrieval.top_k must be > 0")
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		errs = append(errs, "retrieval.min_similarity must be between 0 and 1")
	}
	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
