package config

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trialscope/sitescope/internal/cluster"
	"github.com/trialscope/sitescope/internal/metrics"
	"github.com/trialscope/sitescope/internal/recommend"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Fuzzy     FuzzyConfig     `yaml:"fuzzy" mapstructure:"fuzzy"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Quality   QualityConfig   `yaml:"quality" mapstructure:"quality"`
	Cluster   ClusterConfig   `yaml:"cluster" mapstructure:"cluster"`
	Narrative NarrativeConfig `yaml:"narrative" mapstructure:"narrative"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// RegistryConfig holds ClinicalTrials.gov API settings.
type RegistryConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	PageSize       int     `yaml:"page_size" mapstructure:"page_size"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelaySecs int     `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// FuzzyConfig configures site-name matching.
type FuzzyConfig struct {
	Threshold int `yaml:"threshold" mapstructure:"threshold"`
}

// MatchConfig configures query-to-site scoring.
type MatchConfig struct {
	Weights          WeightsConfig `yaml:"weights" mapstructure:"weights"`
	RegionPartial    float64       `yaml:"region_partial" mapstructure:"region_partial"`
	PerformanceBonus bool          `yaml:"performance_bonus" mapstructure:"performance_bonus"`
}

// WeightsConfig holds the match-score component weights. They must sum
// to 1.0.
type WeightsConfig struct {
	Therapeutic  float64 `yaml:"therapeutic" mapstructure:"therapeutic"`
	Phase        float64 `yaml:"phase" mapstructure:"phase"`
	Intervention float64 `yaml:"intervention" mapstructure:"intervention"`
	Region       float64 `yaml:"region" mapstructure:"region"`
}

// QualityConfig configures the data-quality score.
type QualityConfig struct {
	RecencyMonths int `yaml:"recency_months" mapstructure:"recency_months"`
}

// ClusterConfig configures the cluster assigner.
type ClusterConfig struct {
	Count    int   `yaml:"count" mapstructure:"count"`
	MaxIters int   `yaml:"max_iters" mapstructure:"max_iters"`
	Seed     int64 `yaml:"seed" mapstructure:"seed"`
}

// NarrativeConfig configures narrative generation.
type NarrativeConfig struct {
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("SITESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "sitescope.db")
	v.SetDefault("registry.base_url", "https://clinicaltrials.gov/api/v2")
	v.SetDefault("registry.page_size", 100)
	v.SetDefault("registry.max_retries", 3)
	v.SetDefault("registry.retry_delay_secs", 2)
	v.SetDefault("registry.rate_per_sec", 5)
	v.SetDefault("fuzzy.threshold", 85)
	v.SetDefault("match.weights.therapeutic", 0.4)
	v.SetDefault("match.weights.phase", 0.2)
	v.SetDefault("match.weights.intervention", 0.2)
	v.SetDefault("match.weights.region", 0.2)
	v.SetDefault("match.region_partial", 0.3)
	v.SetDefault("match.performance_bonus", false)
	v.SetDefault("quality.recency_months", 12)
	v.SetDefault("cluster.count", 5)
	v.SetDefault("cluster.max_iters", 100)
	v.SetDefault("cluster.seed", 42)
	v.SetDefault("server.port", 8080)
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

	return &cfg, nil
}

// Validate checks the configuration before any pipeline stage runs.
// All problems are reported at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Fuzzy.Threshold < 0 || c.Fuzzy.Threshold > 100 {
		problems = append(problems, "fuzzy.threshold must be between 0 and 100")
	}
	w := c.Match.Weights
	sum := w.Therapeutic + w.Phase + w.Intervention + w.Region
	if math.Abs(sum-1.0) > 1e-9 {
		problems = append(problems, "match.weights must sum to 1.0")
	}
	if w.Therapeutic < 0 || w.Phase < 0 || w.Intervention < 0 || w.Region < 0 {
		problems = append(problems, "match.weights values must be >= 0")
	}
	if c.Match.RegionPartial < 0 || c.Match.RegionPartial > 1 {
		problems = append(problems, "match.region_partial must be between 0 and 1")
	}
	if c.Quality.RecencyMonths <= 0 {
		problems = append(problems, "quality.recency_months must be > 0")
	}
	if c.Cluster.Count < 1 {
		problems = append(problems, "cluster.count must be >= 1")
	}
	if c.Cluster.MaxIters < 1 {
		problems = append(problems, "cluster.max_iters must be >= 1")
	}
	if c.Registry.PageSize < 1 || c.Registry.PageSize > 1000 {
		problems = append(problems, "registry.page_size must be between 1 and 1000")
	}
	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// MetricsConfig maps the match and quality sections onto the metrics
// engine configuration.
func (c *Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		Weights: metrics.Weights{
			Therapeutic:  c.Match.Weights.Therapeutic,
			Phase:        c.Match.Weights.Phase,
			Intervention: c.Match.Weights.Intervention,
			Region:       c.Match.Weights.Region,
		},
		RegionPartial: c.Match.RegionPartial,
		RecencyMonths: c.Quality.RecencyMonths,
	}
}

// ClustererConfig maps the cluster section onto the assigner
// configuration.
func (c *Config) ClustererConfig() cluster.Config {
	return cluster.Config{
		Count:    c.Cluster.Count,
		MaxIters: c.Cluster.MaxIters,
		Seed:     c.Cluster.Seed,
	}
}

// RecommenderConfig maps the match section onto the recommender
// configuration. Limit and country come from the caller.
func (c *Config) RecommenderConfig(country string, limit int) recommend.Config {
	return recommend.Config{
		Limit:            limit,
		Country:          country,
		PerformanceBonus: c.Match.PerformanceBonus,
	}
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
