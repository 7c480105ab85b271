// Package config loads the demo runner's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/snapper/storage/postgres"
	redisstore "github.com/vietddude/snapper/storage/redis"
)

// StorageConfig selects and configures the snapshot storage backend.
type StorageConfig struct {
	// Backend is one of "file", "memory", "postgres" or "redis".
	Backend  string            `yaml:"backend"`
	Path     string            `yaml:"path"`
	Postgres postgres.Config   `yaml:"postgres"`
	Redis    redisstore.Config `yaml:"redis"`
}

// Duration parses YAML scalars like "5s" or "2m" via time.ParseDuration,
// which yaml.v2 does not do for time.Duration itself.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// BatchConfig configures the batching thresholds.
type BatchConfig struct {
	Size    int      `yaml:"size"`
	MaxWait Duration `yaml:"max_wait"`
}

// PolicyConfig configures the per-item failure policy.
type PolicyConfig struct {
	SkipErrors             bool `yaml:"skip_errors"`
	MaxConsecutiveFailures int  `yaml:"max_consecutive_failures"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Storage StorageConfig `yaml:"storage"`
	Batch   BatchConfig   `yaml:"batch"`
	Policy  PolicyConfig  `yaml:"policy"`
	Logging LoggingConfig `yaml:"logging"`
}

// Load reads configuration from a YAML file. Environment variables in the
// file content are expanded before parsing.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "snapper_checkpoint.jsonl"
	}
	if cfg.Batch.Size == 0 {
		cfg.Batch.Size = 1
	}

	return &cfg, nil
}
