// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Dest    DestConfig    `yaml:"dest" mapstructure:"dest"`
	ETL     ETLConfig     `yaml:"etl" mapstructure:"etl"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Query   QueryConfig   `yaml:"query" mapstructure:"query"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SourceConfig points at the operational database holding the source table.
type SourceConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DestConfig points at the analytics database the pipeline writes to.
type DestConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ETLConfig tunes the extraction run.
type ETLConfig struct {
	PageSize          int     `yaml:"page_size" mapstructure:"page_size"`
	AuditDir          string  `yaml:"audit_dir" mapstructure:"audit_dir"`
	MaxConcurrentRuns int64   `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
	SourceRatePerSec  float64 `yaml:"source_rate_per_sec" mapstructure:"source_rate_per_sec"`
	StatusDB          string  `yaml:"status_db" mapstructure:"status_db"`
}

// ScoringConfig configures the downstream scoring notification.
type ScoringConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// QueryConfig configures the read API.
type QueryConfig struct {
	SQLDir string `yaml:"sql_dir" mapstructure:"sql_dir"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml and LME_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("etl.page_size", 10)
	v.SetDefault("etl.audit_dir", ".")
	v.SetDefault("etl.max_concurrent_runs", 4)
	v.SetDefault("etl.source_rate_per_sec", 10.0)
	v.SetDefault("scoring.timeout_secs", 30)
	v.SetDefault("scoring.max_attempts", 3)
	v.SetDefault("query.sql_dir", "./sql")

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
