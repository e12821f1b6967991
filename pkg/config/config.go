// Package config provides configuration management for the solver service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Search   SearchConfig   `mapstructure:"search"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

// SearchConfig holds branch-and-bound tuning parameters and the working
// directory the solver uses for archived instances and results.
type SearchConfig struct {
	DataDir        string `mapstructure:"data_dir"`
	PollInterval   int64  `mapstructure:"poll_interval"`
	HeuristicMoves int    `mapstructure:"heuristic_moves"`
	MaxRelocation  int    `mapstructure:"max_relocation"`
	TimeLimitSec   int    `mapstructure:"time_limit_sec"`
}

// DatabaseConfig holds database connection configuration for the run-history
// repository.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // postgres, mysql or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration for archiving problem
// instances and solutions.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path.
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
		v.AddConfigPath("/etc/cpmp")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("search.data_dir", "./data")
	v.SetDefault("search.poll_interval", 200000)
	v.SetDefault("search.heuristic_moves", 200)
	v.SetDefault("search.max_relocation", 200)
	v.SetDefault("search.time_limit_sec", 0)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres", "mysql":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	case "sqlite":
		// sqlite needs no host; Database names the database file path.
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.Search.PollInterval <= 0 {
		return fmt.Errorf("search poll interval must be positive")
	}
	if c.Search.MaxRelocation < 1 {
		return fmt.Errorf("search max relocation must be at least 1")
	}

	return nil
}

// EnsureDataDir creates the solver's working directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if c.Search.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Search.DataDir, 0755)
}

// GetRunDir returns the directory a single solve run archives its instance
// and result files under.
func (c *Config) GetRunDir(runID string) string {
	return filepath.Join(c.Search.DataDir, runID)
}
