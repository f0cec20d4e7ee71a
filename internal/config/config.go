// Package config loads sheetmap configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultZoom is used when no zoom is configured or the configured
	// value falls outside the valid range.
	DefaultZoom = 10

	minZoom = 0
	maxZoom = 22
)

// Config holds the full application configuration.
type Config struct {
	Sheet   SheetConfig   `yaml:"sheet" mapstructure:"sheet"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Embed   EmbedConfig   `yaml:"embed" mapstructure:"embed"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SheetConfig identifies the published spreadsheet to read.
type SheetConfig struct {
	ID  string `yaml:"id" mapstructure:"id"`
	GID string `yaml:"gid" mapstructure:"gid"`
}

// GeocodeConfig holds the geocoding API credential and rate limit.
type GeocodeConfig struct {
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// EmbedConfig controls the emitted map document.
type EmbedConfig struct {
	ContainerID string `yaml:"container_id" mapstructure:"container_id"`
	Zoom        int    `yaml:"zoom" mapstructure:"zoom"`
	MapID       string `yaml:"map_id" mapstructure:"map_id"`
}

// CacheConfig configures the geocode cache backend.
type CacheConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// ServerConfig configures the embed server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. A zoom level outside
// 0-22 silently falls back to DefaultZoom; missing required fields are only
// reported by Validate so that commands not needing them (cache status) can
// still run.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SHEETMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only feeds Unmarshal for keys viper already knows about,
	// so keys without a default must be bound explicitly or env-only
	// configuration would silently drop them.
	for _, key := range []string{
		"sheet.id",
		"geocode.api_key",
		"embed.container_id",
		"embed.map_id",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("sheet.gid", "0")
	v.SetDefault("geocode.requests_per_sec", 10)
	v.SetDefault("embed.zoom", DefaultZoom)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.dsn", "sheetmap.db")
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

	if cfg.Embed.Zoom < minZoom || cfg.Embed.Zoom > maxZoom {
		zap.L().Warn("config: zoom out of range, using default",
			zap.Int("zoom", cfg.Embed.Zoom),
			zap.Int("default", DefaultZoom),
		)
		cfg.Embed.Zoom = DefaultZoom
	}

	return &cfg, nil
}

// Validate checks the fields every pipeline run requires.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Sheet.ID) == "" {
		return eris.New("config: sheet.id is required")
	}
	if strings.TrimSpace(c.Geocode.APIKey) == "" {
		return eris.New("config: geocode.api_key is required")
	}
	if strings.TrimSpace(c.Embed.ContainerID) == "" {
		return eris.New("config: embed.container_id is required")
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
