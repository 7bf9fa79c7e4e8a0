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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Oracle   OracleConfig   `yaml:"oracle" mapstructure:"oracle"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Mail     MailConfig     `yaml:"mail" mapstructure:"mail"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// OracleConfig configures the scoring and generation backend.
type OracleConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"`
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ClassifyConfig holds the score band thresholds.
type ClassifyConfig struct {
	HotThreshold  float64 `yaml:"hot_threshold" mapstructure:"hot_threshold"`
	ColdThreshold float64 `yaml:"cold_threshold" mapstructure:"cold_threshold"`
}

// MailConfig configures SMTP delivery of follow-up emails.
type MailConfig struct {
	Host          string  `yaml:"host" mapstructure:"host"`
	Port          int     `yaml:"port" mapstructure:"port"`
	Username      string  `yaml:"username" mapstructure:"username"`
	Password      string  `yaml:"password" mapstructure:"password"`
	From          string  `yaml:"from" mapstructure:"from"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// PipelineConfig configures background submission processing.
type PipelineConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the intake API server.
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
	v.SetEnvPrefix("LEADFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.path", "leadflow.db")
	v.SetDefault("oracle.backend", "anthropic")
	v.SetDefault("oracle.model", "claude-haiku-4-5-20251001")
	v.SetDefault("oracle.max_tokens", 1024)
	v.SetDefault("oracle.max_attempts", 3)
	v.SetDefault("classify.hot_threshold", 0.7)
	v.SetDefault("classify.cold_threshold", 0.3)
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.rate_per_second", 1.0)
	v.SetDefault("mail.rate_burst", 5)
	v.SetDefault("pipeline.max_concurrent", 8)
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

// Validate checks the configuration for a given run mode and reports
// every problem at once.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "serve", "process":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var problems []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	if c.Oracle.Backend == "anthropic" && c.Oracle.Key == "" {
		problems = append(problems, "oracle.key is required for the anthropic backend")
	}
	if c.Classify.HotThreshold < 0 || c.Classify.HotThreshold > 1 {
		problems = append(problems, "classify.hot_threshold must be between 0 and 1")
	}
	if c.Classify.ColdThreshold < 0 || c.Classify.ColdThreshold > 1 {
		problems = append(problems, "classify.cold_threshold must be between 0 and 1")
	}
	if c.Classify.ColdThreshold > c.Classify.HotThreshold {
		problems = append(problems, "classify.cold_threshold must not exceed classify.hot_threshold")
	}
	if c.Pipeline.MaxConcurrent < 1 || c.Pipeline.MaxConcurrent > 64 {
		problems = append(problems, "pipeline.max_concurrent must be between 1 and 64")
	}
	if c.Mail.RatePerSecond < 0 {
		problems = append(problems, "mail.rate_per_second must be >= 0")
	}

	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
