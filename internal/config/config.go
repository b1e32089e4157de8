package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/weft-db/weft/internal/include"
	"github.com/weft-db/weft/internal/stitch"
)

// Config represents the Weft configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// EngineConfig controls include compilation and resolution
type EngineConfig struct {
	SchemaFile      string `mapstructure:"schema_file"`
	MaxIncludeDepth int    `mapstructure:"max_include_depth"`
	StrictIncludes  bool   `mapstructure:"strict_includes"`
	Debug           bool   `mapstructure:"debug"`
	Fanout          int    `mapstructure:"fanout"`
}

// Load loads the configuration from weft.yml or weft.yaml
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", time.Minute)
	v.SetDefault("engine.schema_file", "schema.yml")
	v.SetDefault("engine.max_include_depth", include.DefaultMaxDepth)
	v.SetDefault("engine.strict_includes", false)
	v.SetDefault("engine.debug", false)
	v.SetDefault("engine.fanout", stitch.DefaultFanout)

	// Set config name and paths
	v.SetConfigName("weft")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Enable environment variable support
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	// First check environment variable
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	cfg, err := Load()
	if err != nil {
		return ""
	}

	return cfg.Database.URL
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", cfg.Server.Port)
	}
	if cfg.Engine.MaxIncludeDepth <= 0 {
		return fmt.Errorf("engine.max_include_depth must be positive, got: %d", cfg.Engine.MaxIncludeDepth)
	}
	if cfg.Engine.Fanout <= 0 {
		return fmt.Errorf("engine.fanout must be positive, got: %d", cfg.Engine.Fanout)
	}
	return nil
}
