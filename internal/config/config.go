package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/embedding"
	"github.com/Veraticus/the-price-must-flow/internal/matching"
	"github.com/Veraticus/the-price-must-flow/internal/pipeline"
	"github.com/Veraticus/the-price-must-flow/internal/pricing"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the full pricer configuration.
type Config struct {
	Database  DatabaseConfig          `mapstructure:"database"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	Matching  matching.Config         `mapstructure:"matching"`
	Validator pricing.ValidatorConfig `mapstructure:"validator"`
	Updater   pricing.UpdaterConfig   `mapstructure:"updater"`
	Pipeline  pipeline.Config         `mapstructure:"pipeline"`
	Embedding embedding.Config        `mapstructure:"embedding"`
	Alerts    AlertsConfig            `mapstructure:"alerts"`
	Cache     CacheConfig             `mapstructure:"cache"`
	Review    ReviewConfig            `mapstructure:"review"`
	Bulk      BulkConfig              `mapstructure:"bulk"`
	Vendors   VendorsConfig           `mapstructure:"vendors"`
	Metrics   MetricsConfig           `mapstructure:"metrics"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// KafkaConfig enables publishing alerts to a topic.
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// AlertsConfig selects alert sinks.
type AlertsConfig struct {
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Log     bool          `mapstructure:"log"`
	Store   bool          `mapstructure:"store"`
	Buffer  int           `mapstructure:"buffer"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig addresses a Redis server.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig selects the catalog snapshot cache.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Redis   RedisConfig   `mapstructure:"redis"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ReviewConfig tunes the review queue.
type ReviewConfig struct {
	MaxSuggestions int `mapstructure:"max_suggestions"`
}

// BulkConfig holds the default mode for operator backfills.
type BulkConfig struct {
	Mode string `mapstructure:"mode"`
}

// VendorsConfig points at an optional vendor brand dictionary.
type VendorsConfig struct {
	RulesPath string `mapstructure:"rules_path"`
}

// MetricsConfig exposes Prometheus metrics over HTTP when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers a default for every tunable on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(DefaultDir(), "pricer.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")

	m := matching.DefaultConfig()
	v.SetDefault("matching.routing.auto_approve", m.Routing.AutoApprove)
	v.SetDefault("matching.routing.review_priority_2", m.Routing.ReviewPriority2)
	v.SetDefault("matching.routing.review_priority_1", m.Routing.ReviewPriority1)
	v.SetDefault("matching.learned_min", m.LearnedMin)
	v.SetDefault("matching.structured_min", m.StructuredMin)
	v.SetDefault("matching.normalized_min", m.NormalizedMin)
	v.SetDefault("matching.normalized_ceiling", m.NormalizedCeiling)
	v.SetDefault("matching.semantic_floor", m.SemanticFloor)
	v.SetDefault("matching.semantic_min", m.SemanticMin)
	v.SetDefault("matching.fuzzy_min", m.FuzzyMin)
	v.SetDefault("matching.suggestion_min", m.SuggestionMin)
	v.SetDefault("matching.size_tolerance", m.SizeTolerance)
	v.SetDefault("matching.max_alternatives", m.MaxAlternatives)
	v.SetDefault("matching.max_suggestions", m.MaxSuggestions)

	val := pricing.DefaultValidatorConfig()
	bounds := make(map[string]any, len(val.CurrencyBounds))
	for currency, b := range val.CurrencyBounds {
		bounds[strings.ToLower(currency)] = map[string]any{"min": b.Min, "max": b.Max}
	}
	v.SetDefault("validator.currency_bounds", bounds)
	v.SetDefault("validator.default_bounds.min", val.DefaultBounds.Min)
	v.SetDefault("validator.default_bounds.max", val.DefaultBounds.Max)
	v.SetDefault("validator.max_increase_pct", val.MaxIncreasePct)
	v.SetDefault("validator.max_decrease_pct", val.MaxDecreasePct)
	v.SetDefault("validator.rapid_change_window", val.RapidChangeWindow)
	v.SetDefault("validator.rapid_change_threshold", val.RapidChangeThreshold)
	v.SetDefault("validator.anomaly_min_change_pct", val.AnomalyMinChangePct)
	v.SetDefault("validator.anomaly_min_points", val.AnomalyMinPoints)
	v.SetDefault("validator.anomaly_window", val.AnomalyWindow)
	v.SetDefault("validator.anomaly_sigma", val.AnomalySigma)

	u := pricing.DefaultUpdaterConfig()
	v.SetDefault("updater.default_currency", u.DefaultCurrency)
	v.SetDefault("updater.alert_threshold_pct", u.AlertThresholdPct)
	v.SetDefault("updater.history_days", u.HistoryDays)

	p := pipeline.DefaultConfig()
	v.SetDefault("pipeline.concurrency", p.Concurrency)
	v.SetDefault("pipeline.item_timeout", p.ItemTimeout)
	v.SetDefault("pipeline.promote_auto_matches", p.PromoteAutoMatches)
	v.SetDefault("pipeline.promotion_confidence", p.PromotionConfidence)

	v.SetDefault("embedding.provider", embedding.ProviderLocal)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.server_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.cache_ttl", time.Hour)
	v.SetDefault("embedding.max_retries", 3)

	v.SetDefault("alerts.log", true)
	v.SetDefault("alerts.store", true)
	v.SetDefault("alerts.buffer", 256)
	v.SetDefault("alerts.timeout", 5*time.Second)
	v.SetDefault("alerts.kafka.brokers", "")
	v.SetDefault("alerts.kafka.topic", "pricer.alerts")

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "pricer:")

	v.SetDefault("review.max_suggestions", 5)
	v.SetDefault("bulk.mode", string(pricing.ModeStrict))
	v.SetDefault("vendors.rules_path", "")
	v.SetDefault("metrics.addr", "")
}

// Load registers defaults on v and decodes the result. Currency keys are
// upper-cased since viper lower-cases map keys.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.Validator.CurrencyBounds) > 0 {
		upper := make(map[string]pricing.Bounds, len(cfg.Validator.CurrencyBounds))
		for currency, b := range cfg.Validator.CurrencyBounds {
			upper[strings.ToUpper(currency)] = b
		}
		cfg.Validator.CurrencyBounds = upper
	}
	cfg.Updater.DefaultCurrency = strings.ToUpper(cfg.Updater.DefaultCurrency)
	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Logging.File = ExpandPath(cfg.Logging.File)
	cfg.Vendors.RulesPath = ExpandPath(cfg.Vendors.RulesPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Matching.Validate(); err != nil {
		return err
	}
	if err := c.Validator.Validate(); err != nil {
		return err
	}
	if _, err := pricing.ParseMode(c.Bulk.Mode); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case "", CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("%w: unknown cache backend %q", common.ErrInvalidConfig, c.Cache.Backend)
	}
	return nil
}
