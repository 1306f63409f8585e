package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 2*time.Hour, cfg.SessionTimeout.Std())
	require.Equal(t, 30*time.Minute, cfg.SweepInterval.Std())
	require.Equal(t, 90*time.Second, cfg.TurnTimeout.Std())
	require.Equal(t, 30*time.Second, cfg.LoadTimeout.Std())
	require.Equal(t, 50, cfg.MaxHistory)
	require.Equal(t, "Initiative", cfg.KeyField)
	require.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"model": "gpt-4",
		"store": {"driver": "csv", "path": "./data"},
		"turn_timeout": "45s",
		"max_history": 20
	}`), 0o644))
	t.Setenv("SURVEY_SESSION_TIMEOUT", "15m")
	t.Setenv("SURVEY_LOG_LATENCY", "off")
	t.Setenv("SURVEY_MAX_HISTORY", "30")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "gpt-4", cfg.Model)
	require.Equal(t, "csv", cfg.Store.Driver)
	require.Equal(t, 45*time.Second, cfg.TurnTimeout.Std())
	require.Equal(t, 15*time.Minute, cfg.SessionTimeout.Std())
	require.Equal(t, 30, cfg.MaxHistory)
	require.False(t, cfg.LogLatency)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SURVEY_TEST_DOTENV_MODEL=from-dotenv\n"), 0o644))
	_, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", os.Getenv("SURVEY_TEST_DOTENV_MODEL"))
	require.NoError(t, os.Unsetenv("SURVEY_TEST_DOTENV_MODEL"))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Store.Driver = "sqlite"
	cfg.TurnTimeout = 0
	cfg.MaxHistory = 3
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "store.path")
	require.Contains(t, err.Error(), "turn_timeout")
	require.Contains(t, err.Error(), "max_history")

	cfg = Default()
	cfg.Store.Driver = "mongo"
	require.Error(t, cfg.Validate())
}

func TestLoad_BadDurationEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SURVEY_TURN_TIMEOUT", "soon")
	_, err := Load("")
	require.Error(t, err)
}
