// Package config provides configuration loading for stagecraft.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (STAGECRAFT_ORCHESTRATOR_MAX_PARALLEL_FLAVORS, ...)
//  2. YAML config file (~/.config/stagecraft/config.yaml by default)
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/stagecraft/internal/logging"
)

// envPrefix namespaces stagecraft environment variables.
const envPrefix = "STAGECRAFT_"

// OrchestratorConfig holds engine settings.
type OrchestratorConfig struct {
	// MaxParallelFlavors is the largest selection that still runs in
	// parallel.
	MaxParallelFlavors int `koanf:"max_parallel_flavors"`
}

// RegistryConfig holds the file paths backing the registries.
type RegistryConfig struct {
	FlavorsPath   string `koanf:"flavors_path"`
	RulesPath     string `koanf:"rules_path"`
	DecisionsPath string `koanf:"decisions_path"`
}

// Config is the root stagecraft configuration.
type Config struct {
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Registries   RegistryConfig     `koanf:"registries"`
	Logging      logging.Config     `koanf:"logging"`
}

// Load reads configuration from the YAML file at configPath (the
// default path when empty), then overrides with environment variables.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "stagecraft", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// STAGECRAFT_ORCHESTRATOR_MAX_PARALLEL_FLAVORS -> orchestrator.max_parallel_flavors
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		trimmed := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(trimmed, "_", 2)
		if len(parts) == 1 {
			return trimmed
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Orchestrator.MaxParallelFlavors == 0 {
		cfg.Orchestrator.MaxParallelFlavors = 3
	}

	dataDir := defaultDataDir()
	if cfg.Registries.FlavorsPath == "" {
		cfg.Registries.FlavorsPath = filepath.Join(dataDir, "flavors.json")
	}
	if cfg.Registries.RulesPath == "" {
		cfg.Registries.RulesPath = filepath.Join(dataDir, "rules.json")
	}
	if cfg.Registries.DecisionsPath == "" {
		cfg.Registries.DecisionsPath = filepath.Join(dataDir, "decisions.json")
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxParallelFlavors < 1 {
		return fmt.Errorf("orchestrator.max_parallel_flavors must be >= 1, got %d", c.Orchestrator.MaxParallelFlavors)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// defaultDataDir returns the default registry directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "stagecraft")
}
