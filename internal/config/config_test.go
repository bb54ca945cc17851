package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "CHAT_BACKEND_URL", "CHAT_BACKEND_TIMEOUT", "CHAT_BACKEND_MAX_ATTEMPTS",
		"CHAT_BACKEND_BACKOFF_MS", "EOM_DEFAULT_PAUSE_MS", "EOM_MAX_PAUSE_MS",
		"EOM_INTER_PART_PAUSE_MS", "EOM_DEFAULT_INTENSITY", "PACING_TABLE_PATH",
		"LOG_FILE", "LOG_LEVEL", "ARK_API_KEY", "Model",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Backend.Enabled())
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 3, cfg.Backend.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Backend.InitialBackoff)
	assert.Equal(t, PacingConfig{DefaultPauseMs: 2000, MaxPauseMs: 10000, InterPartPauseMs: 300, DefaultIntensity: 2}, cfg.Pacing)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.False(t, cfg.AI.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CHAT_BACKEND_URL", "http://localhost:5000/chat")
	t.Setenv("CHAT_BACKEND_TIMEOUT", "1500ms")
	t.Setenv("CHAT_BACKEND_MAX_ATTEMPTS", "5")
	t.Setenv("EOM_MAX_PAUSE_MS", "8000")
	t.Setenv("EOM_DEFAULT_INTENSITY", "3")
	t.Setenv("PACING_TABLE_PATH", "/etc/pacing.yaml")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.True(t, cfg.Backend.Enabled())
	assert.Equal(t, 1500*time.Millisecond, cfg.Backend.Timeout)
	assert.Equal(t, 5, cfg.Backend.MaxAttempts)
	assert.Equal(t, 8000, cfg.Pacing.MaxPauseMs)
	assert.Equal(t, 3, cfg.Pacing.DefaultIntensity)
	assert.Equal(t, "/etc/pacing.yaml", cfg.Pacing.TablePath)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
}

func TestLoadTimeoutSeconds(t *testing.T) {
	t.Setenv("CHAT_BACKEND_TIMEOUT", "12")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.Backend.Timeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                      "80 80",
		"CHAT_BACKEND_TIMEOUT":      "soon",
		"CHAT_BACKEND_MAX_ATTEMPTS": "0",
		"EOM_DEFAULT_PAUSE_MS":      "abc",
		"EOM_MAX_PAUSE_MS":          "100",
		"EOM_INTER_PART_PAUSE_MS":   "-1",
		"EOM_DEFAULT_INTENSITY":     "9",
		"ARK_TEMPERATURE":           "warm",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("turn played", "session_id", "s1")

	assert.Contains(t, stderr.String(), "turn played")
	assert.NotContains(t, stderr.String(), "hidden")

	var record map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &record))
	assert.Equal(t, "turn played", record["msg"])
	assert.Equal(t, "s1", record["session_id"])
}

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger, cleanup := SetupLogger(LogConfig{File: path, Level: slog.LevelInfo})
	logger.Info("hello")
	require.NoError(t, cleanup())

	_, cleanup = SetupLogger(LogConfig{})
	require.NoError(t, cleanup())
}
