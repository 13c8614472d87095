// Package config provides configuration management for the BleepStore
// server.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Metadata      MetadataConfig      `mapstructure:"metadata"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Cluster       ClusterConfig       `mapstructure:"cluster"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Region          string `mapstructure:"region"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	MaxObjectSize   int64  `mapstructure:"max_object_size"`
}

// AuthConfig holds the bootstrap credential. The pair is seeded into the
// credential store on every startup.
type AuthConfig struct {
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	AllowAnonymous bool   `mapstructure:"allow_anonymous"`
}

// MetadataConfig selects and configures the metadata store.
type MetadataConfig struct {
	Backend string           `mapstructure:"backend"`
	SQLite  SQLiteFileConfig `mapstructure:"sqlite"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend string           `mapstructure:"backend"`
	Local   LocalStoreConfig `mapstructure:"local"`
	SQLite  SQLiteFileConfig `mapstructure:"sqlite"`
}

// LocalStoreConfig holds local-filesystem backend settings.
type LocalStoreConfig struct {
	Root string `mapstructure:"root"`
}

// SQLiteFileConfig points at an embedded database file.
type SQLiteFileConfig struct {
	Path string `mapstructure:"path"`
}

// ClusterConfig is parsed for forward compatibility; enabling it is a
// startup error.
type ClusterConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	NodeID  string   `mapstructure:"node_id"`
	Peers   []string `mapstructure:"peers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig toggles the health and metrics endpoints.
type ObservabilityConfig struct {
	Metrics     bool `mapstructure:"metrics"`
	HealthCheck bool `mapstructure:"health_check"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9000,
			Region:          "us-east-1",
			ShutdownTimeout: 30,
			MaxObjectSize:   5 << 30,
		},
		Auth: AuthConfig{
			AccessKey: "bleepadmin",
			SecretKey: "bleepadmin",
		},
		Metadata: MetadataConfig{
			Backend: "sqlite",
			SQLite:  SQLiteFileConfig{Path: "./data/metadata.db"},
		},
		Storage: StorageConfig{
			Backend: "local",
			Local:   LocalStoreConfig{Root: "./data/blobs"},
			SQLite:  SQLiteFileConfig{Path: "./data/blobs.db"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			HealthCheck: true,
		},
	}
}

// setDefaults registers every default so env-only settings resolve.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.region", cfg.Server.Region)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.max_object_size", cfg.Server.MaxObjectSize)
	v.SetDefault("auth.access_key", cfg.Auth.AccessKey)
	v.SetDefault("auth.secret_key", cfg.Auth.SecretKey)
	v.SetDefault("auth.allow_anonymous", cfg.Auth.AllowAnonymous)
	v.SetDefault("metadata.backend", cfg.Metadata.Backend)
	v.SetDefault("metadata.sqlite.path", cfg.Metadata.SQLite.Path)
	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.local.root", cfg.Storage.Local.Root)
	v.SetDefault("storage.sqlite.path", cfg.Storage.SQLite.Path)
	v.SetDefault("cluster.enabled", cfg.Cluster.Enabled)
	v.SetDefault("cluster.node_id", cfg.Cluster.NodeID)
	v.SetDefault("cluster.peers", cfg.Cluster.Peers)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("observability.metrics", cfg.Observability.Metrics)
	v.SetDefault("observability.health_check", cfg.Observability.HealthCheck)
}

// Load reads configuration from environment variables and config file.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	v.SetEnvPrefix("BLEEPSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/bleepstore")
	v.AddConfigPath("$HOME/.bleepstore")

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	v.SetEnvPrefix("BLEEPSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
