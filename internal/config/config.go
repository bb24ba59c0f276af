// Package config loads runtime settings from the environment. Defaults are
// layered under environment variables with koanf; callers load .env first.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/JonMunkholm/SqlAssist/internal/database"
	"github.com/JonMunkholm/SqlAssist/internal/executor"
	"github.com/JonMunkholm/SqlAssist/internal/llm"
	"github.com/JonMunkholm/SqlAssist/internal/prompt"
)

const ServiceName = "sqlassist"

type Config struct {
	Service   ServiceConfig
	HTTP      HTTPConfig
	LLM       llm.Config
	Database  database.Config
	Execution ExecutionConfig
	Prompt    prompt.Config
	Session   SessionConfig
	Log       LogConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Addr string
}

type ExecutionConfig struct {
	Policy executor.Policy
	// ResetAfterExecute returns the sample and accuracy selectors to their
	// defaults after every completed execution.
	ResetAfterExecute bool
}

type SessionConfig struct {
	// Secret signs the session cookie. Empty means a random key per process.
	Secret string
}

type LogConfig struct {
	Level slog.Level
	JSON  bool
}

// defaults are keyed the way the env provider lower-cases variable names.
var defaults = map[string]any{
	"addr":                ":8080",
	"llm_provider":        "gemini",
	"llm_timeout":         "60s",
	"llm_temperature":     "0",
	"db_driver":           database.DriverPostgres,
	"db_name":             "placements",
	"execution_policy":    string(executor.Permissive),
	"prompt_tuning":       "true",
	"prompt_explanation":  "true",
	"reset_after_execute": "true",
	"log_level":           "info",
	"log_json":            "false",
}

// Load reads the process environment over the defaults.
func Load() (Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load env vars: %w", err)
	}
	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (Config, error) {
	cfg := Config{
		Service: ServiceConfig{Name: ServiceName},
		HTTP:    HTTPConfig{Addr: k.String("addr")},
		LLM: llm.Config{
			Provider: k.String("llm_provider"),
			APIKey:   k.String("llm_api_key"),
			Model:    k.String("llm_model"),
			BaseURL:  k.String("llm_base_url"),
		},
		Database: database.Config{
			Driver:   k.String("db_driver"),
			Name:     k.String("db_name"),
			User:     k.String("db_user"),
			Password: k.String("db_password"),
			Host:     k.String("db_host"),
			Port:     k.String("db_port"),
			SSLMode:  k.String("db_sslmode"),
		},
		Session: SessionConfig{Secret: k.String("session_secret")},
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = k.String("google_api_key")
	}

	var err error
	if cfg.LLM.Timeout, err = parseDuration(k, "llm_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.LLM.Temperature, err = parseFloat(k, "llm_temperature"); err != nil {
		return Config{}, err
	}
	if cfg.Execution.Policy, err = executor.ParsePolicy(k.String("execution_policy")); err != nil {
		return Config{}, fmt.Errorf("invalid EXECUTION_POLICY: %w", err)
	}
	if cfg.Execution.ResetAfterExecute, err = parseBool(k, "reset_after_execute"); err != nil {
		return Config{}, err
	}
	if cfg.Prompt.IncludeTuning, err = parseBool(k, "prompt_tuning"); err != nil {
		return Config{}, err
	}
	if cfg.Prompt.IncludeExplanationRequest, err = parseBool(k, "prompt_explanation"); err != nil {
		return Config{}, err
	}
	if cfg.Log.JSON, err = parseBool(k, "log_json"); err != nil {
		return Config{}, err
	}
	if err := cfg.Log.Level.UnmarshalText([]byte(k.String("log_level"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("ADDR is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("invalid LLM_TEMPERATURE: %v is outside [0, 2]", c.LLM.Temperature)
	}
	if _, err := c.Database.DSN(); err != nil {
		return fmt.Errorf("invalid DB_DRIVER/DB_NAME: %w", err)
	}
	return nil
}

func envName(key string) string { return strings.ToUpper(key) }

func parseBool(k *koanf.Koanf, key string) (bool, error) {
	v, err := strconv.ParseBool(strings.TrimSpace(k.String(key)))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", envName(key), err)
	}
	return v, nil
}

func parseDuration(k *koanf.Koanf, key string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(k.String(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", envName(key), err)
	}
	return v, nil
}

func parseFloat(k *koanf.Koanf, key string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(k.String(key)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", envName(key), err)
	}
	return v, nil
}
