package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points XDG dirs at a temp dir and clears STM_* overrides
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, k := range []string{EnvDBDriver, EnvDBPath, EnvBusyTimeout, EnvLogLevel, EnvLogFormat} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultDriver, cfg.Database.Driver)
	assert.Equal(t, filepath.Join(dir, "data", "stm", "stm.db"), cfg.Database.Path)
	assert.Equal(t, DefaultBusyTimeoutMS, cfg.Database.BusyTimeoutMS)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadFile_ReadsYAML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  path: /var/lib/stm/tags.db
log:
  level: debug
  format: json
`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/var/lib/stm/tags.db", cfg.Database.Path)
	assert.Equal(t, DefaultBusyTimeoutMS, cfg.Database.BusyTimeoutMS)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: sqlite\n"), 0644))

	t.Setenv(EnvDBDriver, "sqlite3")
	t.Setenv(EnvDBPath, "/tmp/override.db")
	t.Setenv(EnvBusyTimeout, "250")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, 250, cfg.Database.BusyTimeoutMS)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFile_Malformed(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unclosed"), 0644))

	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "malformed config file")
}

func TestLoadFile_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"driver":  "database:\n  driver: postgres\n",
		"timeout": "database:\n  busy_timeout_ms: -1\n",
		"level":   "log:\n  level: verbose\n",
		"format":  "log:\n  format: xml\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))

			_, err := LoadFile(path)
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}
}

func TestLoadFile_BadTimeoutEnv(t *testing.T) {
	isolate(t)
	t.Setenv(EnvBusyTimeout, "soon")

	_, err := LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestSave_WritesLoadablePath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Database.Driver = "sqlite"
	cfg.Log.Format = "json"
	require.NoError(t, cfg.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", loaded.Database.Driver)
	assert.Equal(t, "json", loaded.Log.Format)

	loaded.Log.Level = "error"
	require.NoError(t, loaded.Save())
	again, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "error", again.Log.Level)
}

func TestLoadEnv(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("STM_TEST_ONLY_VAR=from-file\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("STM_TEST_ONLY_VAR") })

	require.NoError(t, LoadEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("STM_TEST_ONLY_VAR"))
}
