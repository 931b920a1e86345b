// Package config loads the daemon's YAML configuration file, in the
// same gopkg.in/yaml.v3 idiom the teacher's apply command parses
// resource manifests with.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snapvault/vaultkeeper/internal/domain"
)

// Config is the daemon's top-level configuration.
type Config struct {
	DataDir          string        `yaml:"dataDir"`
	ValidDirectories []string      `yaml:"validDirectories"`
	Logging          Logging       `yaml:"logging"`
	Reclaim          Reclaim       `yaml:"reclaim"`
	Roots            []RootConfig  `yaml:"roots"`
}

// Logging controls the zerolog sink.
type Logging struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"jsonOutput"`
}

// Reclaim controls the reclamation engine's collect loop.
type Reclaim struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

// reclaimYAML mirrors Reclaim with Interval as a string, so interval
// accepts a Go duration literal like "5m" rather than a raw nanosecond
// count.
type reclaimYAML struct {
	Interval    string `yaml:"interval"`
	Concurrency int    `yaml:"concurrency"`
}

func (r *Reclaim) UnmarshalYAML(value *yaml.Node) error {
	var raw reclaimYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	r.Concurrency = raw.Concurrency
	if raw.Interval == "" {
		return nil
	}
	d, err := time.ParseDuration(raw.Interval)
	if err != nil {
		return fmt.Errorf("reclaim.interval: %w", err)
	}
	r.Interval = d
	return nil
}

// RootConfig fixes a root's hash-type policy ahead of its first use.
type RootConfig struct {
	ID       string          `yaml:"id"`
	HashType domain.HashType `yaml:"hashType"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		DataDir:          "/var/lib/vaultkeeperd",
		ValidDirectories: nil,
		Logging:          Logging{Level: "info", JSONOutput: true},
		Reclaim:          Reclaim{Interval: 5 * time.Minute, Concurrency: 4},
	}
}

// Load reads and parses a YAML configuration file, filling unset
// fields from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Reclaim.Concurrency <= 0 {
		cfg.Reclaim.Concurrency = 1
	}
	if cfg.Reclaim.Interval <= 0 {
		cfg.Reclaim.Interval = 5 * time.Minute
	}
	return cfg, nil
}
