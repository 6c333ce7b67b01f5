package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	v := viper.New()
	ApplyDefaults(v)

	assert.Equal(t, "table", v.GetString("defaults.output-format"))
	assert.Equal(t, 5, v.GetInt("reports.top-cities"))
	assert.Contains(t, v.GetString("database.url"), "localhost:5432")
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  url: postgres://file@db/agency
redis:
  addr: redis:6379
defaults:
  output-format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "postgres://file@db/agency", cfg.DatabaseURL)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "json", cfg.OutputFormat)

	t.Setenv("AGENCY_CLI_DATABASE_URL", "postgres://env@db/agency")
	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env@db/agency", cfg.DatabaseURL)
}

func TestLoadFileRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unterminated"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileHonoursExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staging.yml")
	require.NoError(t, os.WriteFile(path, []byte("reports:\n  top-cities: 9\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, 9, cfg.ReportTopCities)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadSearchesWorkingDirectory(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("defaults:\n  output-format: json\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.NotEmpty(t, cfg.ConfigFile)
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://a", OutputFormat: "table"}
	cfg.Apply(map[string]any{
		"database-url": "",
		"redis-addr":   "localhost:6379",
		"format":       "json",
		"quiet":        true,
	})

	assert.Equal(t, "postgres://a", cfg.DatabaseURL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.True(t, cfg.Quiet)
}
