package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Definitions DefinitionsConfig `mapstructure:"definitions"`
	Limits      LimitsConfig      `mapstructure:"limits"`
	Indexers    []IndexerConfig   `mapstructure:"indexers"`
}

// IndexerConfig declares one configured indexer instance.
type IndexerConfig struct {
	Name       string            `mapstructure:"name"`       // overrides the definition's name
	Type       string            `mapstructure:"type"`       // "definition" (default) or "torznab"
	Definition string            `mapstructure:"definition"` // YAML file under the definitions dir
	URL        string            `mapstructure:"url"`        // torznab base URL
	APIKey     string            `mapstructure:"api_key"`    // torznab API key
	Settings   map[string]string `mapstructure:"settings"`   // credentials for login placeholders
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"` // log directory; empty disables file output
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DefinitionsConfig points at the YAML tracker definition files.
type DefinitionsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LimitsConfig holds the default per-indexer request pacing. Individual
// definitions may tighten these through their requestDelay setting.
type LimitsConfig struct {
	RequestIntervalSeconds int `mapstructure:"request_interval_seconds"`
	QueriesPerHour         int `mapstructure:"queries_per_hour"`
	GrabsPerHour           int `mapstructure:"grabs_per_hour"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 9117,
		},
		Database: DatabaseConfig{
			Path: "./data/trawler.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Definitions: DefinitionsConfig{
			Dir: "./definitions",
		},
		Limits: LimitsConfig{
			RequestIntervalSeconds: 2,
			QueriesPerHour:         100,
			GrabsPerHour:           25,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.trawler")
	}

	v.SetEnvPrefix("TRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9117)

	v.SetDefault("database.path", "./data/trawler.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("definitions.dir", "./definitions")

	v.SetDefault("limits.request_interval_seconds", 2)
	v.SetDefault("limits.queries_per_hour", 100)
	v.SetDefault("limits.grabs_per_hour", 25)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
