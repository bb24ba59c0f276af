package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/SqlAssist/internal/executor"
)

func load(t *testing.T, overrides map[string]any) (Config, error) {
	t.Helper()
	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(defaults, "."), nil))
	require.NoError(t, k.Load(confmap.Provider(overrides, "."), nil))
	return fromKoanf(k)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t, nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, executor.Permissive, cfg.Execution.Policy)
	assert.True(t, cfg.Execution.ResetAfterExecute)
	assert.True(t, cfg.Prompt.IncludeTuning)
	assert.True(t, cfg.Prompt.IncludeExplanationRequest)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.False(t, cfg.Log.JSON)
	assert.Equal(t, "placements", cfg.Database.Name)
}

func TestGoogleAPIKeyFallback(t *testing.T) {
	cfg, err := load(t, map[string]any{"google_api_key": "g-key"})
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)

	cfg, err = load(t, map[string]any{"google_api_key": "g-key", "llm_api_key": "explicit"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.LLM.APIKey)
}

func TestOverrides(t *testing.T) {
	cfg, err := load(t, map[string]any{
		"execution_policy":    "Restrictive",
		"reset_after_execute": "false",
		"prompt_tuning":       "0",
		"llm_timeout":         "5s",
		"log_level":           "debug",
		"db_driver":           "sqlite",
		"db_name":             ":memory:",
	})
	require.NoError(t, err)

	assert.Equal(t, executor.Restrictive, cfg.Execution.Policy)
	assert.False(t, cfg.Execution.ResetAfterExecute)
	assert.False(t, cfg.Prompt.IncludeTuning)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestInvalidValuesNameTheKey(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"execution_policy", "yolo", "EXECUTION_POLICY"},
		{"prompt_tuning", "maybe", "PROMPT_TUNING"},
		{"llm_timeout", "soon", "LLM_TIMEOUT"},
		{"llm_temperature", "3", "LLM_TEMPERATURE"},
		{"log_level", "loud", "LOG_LEVEL"},
		{"db_driver", "oracle", "DB_DRIVER"},
		{"addr", " ", "ADDR"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, err := load(t, map[string]any{tt.key: tt.value})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("EXECUTION_POLICY", "restrictive")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, executor.Restrictive, cfg.Execution.Policy)
}
