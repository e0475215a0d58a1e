package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Processing.MaxAttempts)
	assert.Equal(t, time.Duration(0), cfg.Processing.RetryDelay)
	assert.Equal(t, 20*time.Second, cfg.Processing.TranslateTimeout)
	assert.Equal(t, 120*time.Second, cfg.Processing.ChatTimeout)
	assert.Equal(t, 3, cfg.Processing.RequestRetries)
	assert.Equal(t, "costs", cfg.Cost.Dir)
	assert.True(t, cfg.Cost.SaveModelCost)
	assert.Equal(t, 5*time.Second, cfg.SurrealDB.ConnectTimeout)
	assert.Equal(t, 10, cfg.SurrealDB.MaxReconnects)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("URDUFACT_LLM_PROVIDER", "OpenAI")
	t.Setenv("URDUFACT_LLM_MODEL", "gpt-4o")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("URDUFACT_PROCESSING_CHAT_TIMEOUT", "30s")
	t.Setenv("URDUFACT_COST_SAVE_SEARCH_COST", "false")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.OpenAIAPIKey)
	assert.Equal(t, 30*time.Second, cfg.Processing.ChatTimeout)
	assert.False(t, cfg.Cost.SaveSearchCost)
	assert.NoError(t, cfg.ValidateLLM())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `
llm:
  provider: anthropic
  model: claude-3-5-sonnet-latest
processing:
  max_attempts: 2
cost:
  dir: /tmp/ledger
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, 2, cfg.Processing.MaxAttempts)
	assert.Equal(t, "/tmp/ledger", cfg.Cost.Dir)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("URDUFACT_PROCESSING_MAX_ATTEMPTS", "0")

	_, err := Load(NewViper(), "")
	require.Error(t, err)

	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Field, "MaxAttempts")
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestValidateLLMRequiresModel(t *testing.T) {
	cfg := Config{LLM: LLMConfig{Provider: ProviderOpenAI, TopP: 1}}
	err := cfg.ValidateLLM()
	require.Error(t, err)

	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "LLMConfig.Model", cerr.Field)
	assert.Equal(t, "is required", cerr.Reason)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Warn("retrying", "id", "7", "attempt", 2)

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "retrying")
	assert.Contains(t, stderr.String(), "id=7")

	var entry map[string]any
	line := strings.TrimSpace(file.String())
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "retrying", entry["msg"])
	assert.Equal(t, float64(2), entry["attempt"])
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo, true)
	logger.Info("hello")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
