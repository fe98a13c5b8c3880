// Package config loads the service configuration record: a YAML file in
// the base directory, overridable by MEMGRAPH_-prefixed environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Default network settings. The actual port is negotiated at startup when
// the preferred one is taken.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 6789
)

// Config is the loaded configuration record.
type Config struct {
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	BaseDir          string `mapstructure:"-"`
	DatabasePath     string `mapstructure:"database_path"`
	BackupDir        string `mapstructure:"backup_dir"`
	BackupOnStart    bool   `mapstructure:"backup_on_start"`
	BackupInterval   string `mapstructure:"backup_interval"`
	MinBackups       int    `mapstructure:"min_backups"`
	MinBackupAgeDays int    `mapstructure:"min_backup_age_days"`

	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Vector     VectorConfig     `mapstructure:"vector"`

	// Auto-detected; when true the host is forced to all interfaces and
	// paths resolve inside the container mount.
	InDocker      bool   `mapstructure:"-"`
	ContainerName string `mapstructure:"-"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	Provider     string `mapstructure:"provider"`
	Model        string `mapstructure:"model"`
	APIKey       string `mapstructure:"api_key"`
	BatchSize    int    `mapstructure:"batch_size"`
	AutoGenerate bool   `mapstructure:"auto_generate"`
}

// VectorConfig holds the search defaults.
type VectorConfig struct {
	DefaultK            int     `mapstructure:"default_k"`
	DefaultThreshold    float64 `mapstructure:"default_threshold"`
	DefaultHybridWeight float64 `mapstructure:"default_hybrid_weight"`
}

// DefaultBaseDir returns the per-user base directory.
func DefaultBaseDir() string {
	if dir := os.Getenv("MEMGRAPH_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memgraph"
	}
	return filepath.Join(home, ".memgraph")
}

// Load reads config.yaml under baseDir (missing file is fine — defaults
// apply), layers MEMGRAPH_ environment variables on top, and resolves
// derived paths.
func Load(baseDir string) (*Config, error) {
	if baseDir == "" {
		baseDir = DefaultBaseDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(baseDir)
	v.SetEnvPrefix("MEMGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("name", "memgraph")
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("log_level", "info")
	v.SetDefault("backup_on_start", true)
	v.SetDefault("backup_interval", "6h")
	v.SetDefault("min_backups", 5)
	v.SetDefault("min_backup_age_days", 1)
	v.SetDefault("embeddings.provider", "local")
	v.SetDefault("embeddings.batch_size", 32)
	v.SetDefault("vector.default_k", 10)
	v.SetDefault("vector.default_threshold", 0.0)
	v.SetDefault("vector.default_hybrid_weight", 0.7)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.BaseDir = baseDir

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(baseDir, "data", "knowledge_graph.db")
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(baseDir, "backup")
	}

	cfg.InDocker, cfg.ContainerName = detectDocker()
	if cfg.InDocker {
		cfg.Host = "0.0.0.0"
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return cfg, nil
}

// detectDocker checks MEMGRAPH_IN_DOCKER, the container marker file, and
// the cgroup hierarchy. The container name comes from the hostname, which
// container runtimes set to the container id by default.
func detectDocker() (bool, string) {
	inDocker := os.Getenv("MEMGRAPH_IN_DOCKER") == "true"
	if !inDocker {
		if _, err := os.Stat("/.dockerenv"); err == nil {
			inDocker = true
		} else if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
			s := string(data)
			inDocker = strings.Contains(s, "docker") || strings.Contains(s, "containerd")
		}
	}
	if !inDocker {
		return false, ""
	}
	name, _ := os.Hostname()
	return true, name
}
