package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	assert.Equal(t, "default", cfg.Investigation.Preset)
	assert.Equal(t, 3, cfg.Investigation.MaxToolRounds)
	assert.Equal(t, 5, cfg.Investigation.MaxToolsPerRound)
	assert.Equal(t, 10, cfg.Investigation.MaxTotalTools)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeConfig(t, `
anthropic:
  model: claude-test
investigation:
  preset: production
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "claude-test", cfg.Anthropic.Model)
	assert.Equal(t, "https://api.anthropic.com", cfg.Anthropic.BaseURL)
	assert.Equal(t, "production", cfg.Investigation.Preset)
	assert.Equal(t, "30s", cfg.Investigation.ToolTimeout)
	assert.Equal(t, 2224, cfg.Observability.Metrics.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadRejectsUnknownPreset(t *testing.T) {
	path := writeConfig(t, `
investigation:
  preset: aggressive
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown investigation preset")
}

func TestLoadRejectsQueryLimitInversion(t *testing.T) {
	path := writeConfig(t, `
investigation:
  default_query_limit: 200
  max_query_limit: 100
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_query_limit")
}

func TestLoadRejectsTimeoutInversion(t *testing.T) {
	path := writeConfig(t, `
investigation:
  tool_timeout: 5m
  investigation_timeout: 30s
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "investigation_timeout must exceed tool_timeout")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
investigation:
  tool_timeout: soon
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tool timeout")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-123")
	t.Setenv("DATABASE_DSN", "postgres://test:5432/testdb")
	t.Setenv("METRICS_PORT", "9999")

	path := writeConfig(t, `
anthropic:
  model: claude-test
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.Anthropic.APIKey)
	assert.Equal(t, "postgres://test:5432/testdb", cfg.Database.DSN)
	assert.Equal(t, 9999, cfg.Observability.Metrics.Port)
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	cfg := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NotNil(t, cfg)
	assert.Equal(t, "default", cfg.Investigation.Preset)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Anthropic.Model = "claude-roundtrip"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-roundtrip", loaded.Anthropic.Model)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
