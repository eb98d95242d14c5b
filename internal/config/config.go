// Package config provides configuration management for transcoded using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort       = 8080
	defaultServerTimeout    = 30 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultMaxChunkBytes    = 32 * 1024 * 1024 // 32MB per upload chunk
	defaultWorkerPoolSize   = 5
	defaultProbeTimeout     = 30 * time.Second
	defaultMaxOpenConns     = 25
	defaultMaxIdleConns     = 10
	defaultConnMaxIdleTime  = 30 * time.Minute
	defaultSessionTTL       = 24 * time.Hour
	defaultHistoryRetention = 30 * 24 * time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Database  DatabaseConfig  `mapstructure:"database"`
	History   HistoryConfig   `mapstructure:"history"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxChunkBytes   int64         `mapstructure:"max_chunk_bytes"`
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	StagingDir string `mapstructure:"staging_dir"`
	OutputDir  string `mapstructure:"output_dir"`
}

// TranscodeConfig holds job scheduling and encoder configuration.
type TranscodeConfig struct {
	WorkerPoolSize int           `mapstructure:"worker_pool_size"`
	DefaultFormats []string      `mapstructure:"default_formats"`
	FFmpegPath     string        `mapstructure:"ffmpeg_path"`
	FFprobePath    string        `mapstructure:"ffprobe_path"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
}

// DatabaseConfig holds database connection configuration for the job history archive.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// HistoryConfig holds job history archive configuration.
type HistoryConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Retention time.Duration `mapstructure:"retention"`
	PurgeCron string        `mapstructure:"purge_cron"` // 6-field cron expression
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with TRANSCODED_ and use underscores
// for nesting. Example: TRANSCODED_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/transcoded")
		v.AddConfigPath("$HOME/.transcoded")
	}

	v.SetEnvPrefix("TRANSCODED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file so defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.max_chunk_bytes", defaultMaxChunkBytes)

	// Storage defaults
	v.SetDefault("storage.staging_dir", "./data/staging")
	v.SetDefault("storage.output_dir", "./data/output")

	// Transcode defaults
	v.SetDefault("transcode.worker_pool_size", defaultWorkerPoolSize)
	v.SetDefault("transcode.default_formats", []string{"1080p", "720p", "480p", "360p"})
	v.SetDefault("transcode.ffmpeg_path", "ffmpeg")
	v.SetDefault("transcode.ffprobe_path", "ffprobe")
	v.SetDefault("transcode.probe_timeout", defaultProbeTimeout)
	v.SetDefault("transcode.session_ttl", defaultSessionTTL)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "transcoded.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// History defaults
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.retention", defaultHistoryRetention)
	v.SetDefault("history.purge_cron", "0 0 3 * * *") // Daily at 3 AM (6-field cron)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if c.Server.MaxChunkBytes < 1 {
		return fmt.Errorf("server.max_chunk_bytes must be positive")
	}

	if c.Storage.StagingDir == "" {
		return fmt.Errorf("storage.staging_dir is required")
	}
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir is required")
	}

	if c.Transcode.WorkerPoolSize < 1 {
		return fmt.Errorf("transcode.worker_pool_size must be at least 1")
	}
	if c.Transcode.FFmpegPath == "" {
		return fmt.Errorf("transcode.ffmpeg_path is required")
	}
	if c.Transcode.FFprobePath == "" {
		return fmt.Errorf("transcode.ffprobe_path is required")
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.History.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when history is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
