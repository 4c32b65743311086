package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("ANALYST_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Model)
	assert.Equal(t, 64000, cfg.MaxTokens)
	assert.Equal(t, 3, cfg.MaxTurns)
	assert.Equal(t, 30, cfg.HistoryDays)
	assert.Equal(t, 5.0, cfg.MarketDataRPS)
	assert.Equal(t, 10, cfg.DailyAnalysisLimit)
	assert.Equal(t, "https://financialmodelingprep.com/stable", cfg.FMPBaseURL)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("ANALYST_PROVIDER", "lorem")
	t.Setenv("ANALYST_MODEL", "lorem-fast")
	t.Setenv("ANALYST_MAX_TURNS", "5")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "lorem", cfg.Provider)
	assert.Equal(t, "lorem-fast", cfg.Model)
	assert.Equal(t, 5, cfg.MaxTurns)
	assert.True(t, cfg.LogPretty)
}

func TestLoadFromEnv_NoCredentialsRequired(t *testing.T) {
	t.Setenv("ANALYST_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("FMP_API_KEY", "")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Empty(t, cfg.AnthropicAPIKey)
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown provider", map[string]string{"ANALYST_PROVIDER": "openai"}},
		{"zero turns", map[string]string{"ANALYST_PROVIDER": "lorem", "ANALYST_MAX_TURNS": "0"}},
		{"not a number", map[string]string{"ANALYST_PROVIDER": "lorem", "ANALYST_MAX_TOKENS": "lots"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnv_WalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("ANALYST_TEST_MARKER=found\n"), 0o600))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)
	t.Setenv("ANALYST_TEST_MARKER", "")
	require.NoError(t, os.Unsetenv("ANALYST_TEST_MARKER"))

	LoadEnv()
	assert.Equal(t, "found", os.Getenv("ANALYST_TEST_MARKER"))
}
