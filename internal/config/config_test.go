package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Orchestrator.MaxParallelFlavors)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Contains(t, cfg.Registries.FlavorsPath, "flavors.json")
	assert.Contains(t, cfg.Registries.RulesPath, "rules.json")
	assert.Contains(t, cfg.Registries.DecisionsPath, "decisions.json")
}

func TestLoad_ReadsYAMLFile(t *testing.T) {
	path := writeConfig(t, `
orchestrator:
  max_parallel_flavors: 5
registries:
  flavors_path: /tmp/f.json
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Orchestrator.MaxParallelFlavors)
	assert.Equal(t, "/tmp/f.json", cfg.Registries.FlavorsPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)
	t.Setenv("STAGECRAFT_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, "orchestrator:\n  max_parallel_flavors: -1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_parallel_flavors")

	_, err = Load(writeConfig(t, "logging:\n  format: xml\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging")
}
