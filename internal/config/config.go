package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Reasoning  ReasoningConfig  `yaml:"reasoning" mapstructure:"reasoning"`
	RefData    RefDataConfig    `yaml:"refdata" mapstructure:"refdata"`
	Matcher    MatcherConfig    `yaml:"matcher" mapstructure:"matcher"`
	Scorer     ScorerConfig     `yaml:"scorer" mapstructure:"scorer"`
	Strategy   StrategyConfig   `yaml:"strategy" mapstructure:"strategy"`
	Validator  ValidatorConfig  `yaml:"validator" mapstructure:"validator"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Model             string  `yaml:"model" mapstructure:"model"`
	ReasoningModel    string  `yaml:"reasoning_model" mapstructure:"reasoning_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// ExtractionConfig configures the extraction call and its fallback.
type ExtractionConfig struct {
	TimeoutSecs             int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts             int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs        int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs            int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Jitter                  float64 `yaml:"jitter" mapstructure:"jitter"`
	FallbackMaxConfidence   float64 `yaml:"fallback_max_confidence" mapstructure:"fallback_max_confidence"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// ReasoningConfig configures the context-reasoning call.
type ReasoningConfig struct {
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
	HistoryLimit     int     `yaml:"history_limit" mapstructure:"history_limit"`
}

// RefDataConfig configures the reference data cache.
type RefDataConfig struct {
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// MatcherConfig configures entity matching bands.
type MatcherConfig struct {
	High            float64 `yaml:"high" mapstructure:"high"`
	Medium          float64 `yaml:"medium" mapstructure:"medium"`
	Low             float64 `yaml:"low" mapstructure:"low"`
	AmbiguityMargin float64 `yaml:"ambiguity_margin" mapstructure:"ambiguity_margin"`
	PartialCap      float64 `yaml:"partial_cap" mapstructure:"partial_cap"`
	MaxCandidates   int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// ScorerConfig holds the confidence scorer weights.
type ScorerConfig struct {
	DateWeight        float64 `yaml:"date_weight" mapstructure:"date_weight"`
	FieldWeight       float64 `yaml:"field_weight" mapstructure:"field_weight"`
	CropWeight        float64 `yaml:"crop_weight" mapstructure:"crop_weight"`
	CategoryWeight    float64 `yaml:"category_weight" mapstructure:"category_weight"`
	MaterialsWeight   float64 `yaml:"materials_weight" mapstructure:"materials_weight"`
	QuantityWeight    float64 `yaml:"quantity_weight" mapstructure:"quantity_weight"`
	SpecificityWeight float64 `yaml:"specificity_weight" mapstructure:"specificity_weight"`
}

// StrategyConfig configures strategy routing thresholds.
type StrategyConfig struct {
	AutoMinConfidence       float64 `yaml:"auto_min_confidence" mapstructure:"auto_min_confidence"`
	ContextualMinConfidence float64 `yaml:"contextual_min_confidence" mapstructure:"contextual_min_confidence"`
	AutoMaxMissing          int     `yaml:"auto_max_missing" mapstructure:"auto_max_missing"`
	ContextualMaxMissing    int     `yaml:"contextual_max_missing" mapstructure:"contextual_max_missing"`
}

// ValidatorConfig configures the minimum-entity policy.
type ValidatorConfig struct {
	ResolveThreshold  float64 `yaml:"resolve_threshold" mapstructure:"resolve_threshold"`
	RequireField      bool    `yaml:"require_field" mapstructure:"require_field"`
	AllowCropMaterial bool    `yaml:"allow_crop_material" mapstructure:"allow_crop_material"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeout int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WORKLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "worklog.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 90)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.reasoning_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.requests_per_second", 2.0)
	v.SetDefault("anthropic.burst", 4)
	v.SetDefault("extraction.timeout_secs", 30)
	v.SetDefault("extraction.max_attempts", 3)
	v.SetDefault("extraction.initial_backoff_ms", 500)
	v.SetDefault("extraction.max_backoff_ms", 5000)
	v.SetDefault("extraction.jitter", 0.25)
	v.SetDefault("extraction.fallback_max_confidence", 0.3)
	v.SetDefault("extraction.circuit_failure_threshold", 5)
	v.SetDefault("extraction.circuit_reset_secs", 30)
	v.SetDefault("reasoning.timeout_secs", 20)
	v.SetDefault("reasoning.max_attempts", 2)
	v.SetDefault("reasoning.initial_backoff_ms", 500)
	v.SetDefault("reasoning.jitter", 0.25)
	v.SetDefault("reasoning.history_limit", 5)
	v.SetDefault("refdata.cache_ttl_secs", 300)
	v.SetDefault("matcher.high", 0.8)
	v.SetDefault("matcher.medium", 0.6)
	v.SetDefault("matcher.low", 0.4)
	v.SetDefault("matcher.ambiguity_margin", 0.1)
	v.SetDefault("matcher.partial_cap", 0.8)
	v.SetDefault("matcher.max_candidates", 3)
	v.SetDefault("scorer.date_weight", 0.15)
	v.SetDefault("scorer.field_weight", 0.20)
	v.SetDefault("scorer.crop_weight", 0.15)
	v.SetDefault("scorer.category_weight", 0.15)
	v.SetDefault("scorer.materials_weight", 0.20)
	v.SetDefault("scorer.quantity_weight", 0.10)
	v.SetDefault("scorer.specificity_weight", 0.05)
	v.SetDefault("strategy.auto_min_confidence", 0.8)
	v.SetDefault("strategy.contextual_min_confidence", 0.4)
	v.SetDefault("strategy.auto_max_missing", 1)
	v.SetDefault("strategy.contextual_max_missing", 2)
	v.SetDefault("validator.resolve_threshold", 0.8)
	v.SetDefault("validator.require_field", false)
	v.SetDefault("validator.allow_crop_material", true)

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

	return &cfg, nil
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

// Validate checks the settings a command mode needs. Known modes are
// "store", "pipeline" and "serve"; each includes the checks of the previous.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if mode == "pipeline" || mode == "serve" {
		m := c.Matcher
		if !(m.Low > 0 && m.Low <= m.Medium && m.Medium <= m.High && m.High <= 1) {
			errs = append(errs, "matcher bands must satisfy 0 < low <= medium <= high <= 1")
		}
		s := c.Strategy
		if s.ContextualMinConfidence >= s.AutoMinConfidence {
			errs = append(errs, "strategy.contextual_min_confidence must be below auto_min_confidence")
		}
		if c.Validator.ResolveThreshold <= 0 || c.Validator.ResolveThreshold > 1 {
			errs = append(errs, "validator.resolve_threshold must be in (0, 1]")
		}
		if c.Extraction.FallbackMaxConfidence < 0 || c.Extraction.FallbackMaxConfidence > 1 {
			errs = append(errs, "extraction.fallback_max_confidence must be in [0, 1]")
		}
	}

	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}
