package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setHome points the home directory at a scratch dir so tests never
// read a developer's real ~/.rtx.yml.
func setHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	clearEnv()
	return home
}

func clearEnv() {
	os.Unsetenv("RTX_STORE")
	os.Unsetenv("RTX_INDEX")
	os.Unsetenv("RTX_LOG_LEVEL")
	os.Unsetenv("RTX_LOG_FORMAT")
	os.Unsetenv("RTX_WEB_ADDR")
	os.Unsetenv("RTX_INDEX_WORKERS")
	os.Unsetenv("RTX_TRANSCRIPTION_ENABLED")
	os.Unsetenv("RTX_TRANSCRIPTION_MODEL")
	os.Unsetenv("RTX_TRANSCRIPTION_LANGUAGE")
	os.Unsetenv("OPENAI_API_KEY")
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rtx.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	home := setHome(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "rtx.sqlite"), cfg.StorePath)
	assert.Equal(t, filepath.Join(home, "rtx-index.sqlite"), cfg.IndexPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "localhost:8080", cfg.WebAddr)
	assert.Equal(t, 32, cfg.IndexWorkers)
	assert.False(t, cfg.Transcription.Enabled)
	assert.Equal(t, "whisper-1", cfg.Transcription.Model)
	assert.Empty(t, cfg.Events)
}

func TestLoad_FromFile(t *testing.T) {
	home := setHome(t)
	path := writeConfigFile(t, `
store: ~/custom.sqlite
log_level: debug
web_addr: 127.0.0.1:9090
index_workers: 8
transcription:
  enabled: true
  api_key: sk-test
  language: en
events:
  - id: "2023"
    name: Burning Man 2023
    source_dir: ~/audio/2023
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "custom.sqlite"), cfg.StorePath)
	assert.Equal(t, filepath.Join(home, "rtx-index.sqlite"), cfg.IndexPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9090", cfg.WebAddr)
	assert.Equal(t, 8, cfg.IndexWorkers)
	assert.True(t, cfg.Transcription.Enabled)
	assert.Equal(t, "sk-test", cfg.Transcription.APIKey)
	assert.Equal(t, "whisper-1", cfg.Transcription.Model)
	assert.Equal(t, "en", cfg.Transcription.Language)

	require.Len(t, cfg.Events, 1)
	assert.Equal(t, "2023", cfg.Events[0].ID)
	assert.Equal(t, "Burning Man 2023", cfg.Events[0].Name)
	assert.Equal(t, filepath.Join(home, "audio", "2023"), cfg.Events[0].SourceDir)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	setHome(t)
	path := writeConfigFile(t, "log_level: debug\n")

	t.Setenv("RTX_LOG_LEVEL", "error")
	t.Setenv("RTX_STORE", "/elsewhere/rtx.sqlite")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "/elsewhere/rtx.sqlite", cfg.StorePath)
}

func TestLoad_MissingFiles(t *testing.T) {
	setHome(t)

	t.Run("missing default file is fine", func(t *testing.T) {
		_, err := Load("")
		require.NoError(t, err)
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		require.Error(t, err)
	})
}

func TestLoad_MalformedYAML(t *testing.T) {
	setHome(t)
	path := writeConfigFile(t, "store: [unclosed\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	setHome(t)

	t.Run("bad log level", func(t *testing.T) {
		_, err := Load(writeConfigFile(t, "log_level: sideways\n"))
		require.Error(t, err)
	})

	t.Run("bad web address", func(t *testing.T) {
		_, err := Load(writeConfigFile(t, "web_addr: not an address\n"))
		require.Error(t, err)
	})

	t.Run("zero workers", func(t *testing.T) {
		_, err := Load(writeConfigFile(t, "index_workers: 0\n"))
		require.Error(t, err)
	})

	t.Run("transcription enabled without key", func(t *testing.T) {
		_, err := Load(writeConfigFile(t, "transcription:\n  enabled: true\n"))
		require.Error(t, err)
	})

	t.Run("transcription enabled via environment without key", func(t *testing.T) {
		t.Setenv("RTX_TRANSCRIPTION_ENABLED", "true")
		_, err := Load("")
		require.Error(t, err)
	})

	t.Run("event without name", func(t *testing.T) {
		_, err := Load(writeConfigFile(t, "events:\n  - id: \"2023\"\n"))
		require.Error(t, err)
	})

	t.Run("duplicate event IDs", func(t *testing.T) {
		_, err := Load(writeConfigFile(t, `
events:
  - id: "2023"
    name: First
  - id: "2023"
    name: Second
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate event")
	})
}

func TestConfig_Event(t *testing.T) {
	cfg := &Config{Events: []Event{
		{ID: "2023", Name: "Burning Man 2023"},
		{ID: "2024", Name: "Burning Man 2024"},
	}}

	e, ok := cfg.Event("2024")
	assert.True(t, ok)
	assert.Equal(t, "Burning Man 2024", e.Name)

	_, ok = cfg.Event("1999")
	assert.False(t, ok)
}

func TestConfig_String(t *testing.T) {
	cfg := Default()
	cfg.Transcription.APIKey = "sk-secret"

	str := cfg.String()

	assert.Contains(t, str, "whisper-1")
	assert.Contains(t, str, "(set)")
	assert.NotContains(t, str, "sk-secret")
}

func TestExpandTilde(t *testing.T) {
	home := setHome(t)

	tests := []struct {
		input string
		want  string
	}{
		{"~", home},
		{"~/audio", filepath.Join(home, "audio")},
		{"/var/lib/rtx.sqlite", "/var/lib/rtx.sqlite"},
		{"relative/path", "relative/path"},
		{"~other/audio", "~other/audio"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, expandTilde(tt.input), "input %q", tt.input)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseLogLevel(tt.input), "input %q", tt.input)
	}
}
