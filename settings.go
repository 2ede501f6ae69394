package marvin

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Settings holds runtime configuration resolved from defaults, an optional
// YAML file, and MARVIN_* environment variables, in that precedence order.
type Settings struct {
	Provider ProviderSettings `koanf:"provider"`
	Executor ExecutorSettings `koanf:"executor"`
	Log      LogSettings      `koanf:"log"`
}

// ProviderSettings configures the model backend.
type ProviderSettings struct {
	Name        string        `koanf:"name"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	Temperature float32       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
}

// ExecutorSettings bounds the tool-dispatch loop.
type ExecutorSettings struct {
	MaxIterations int `koanf:"max_iterations"`
}

// LogSettings configures the slog bridge.
type LogSettings struct {
	Level string `koanf:"level"`
}

// Default settings values.
const (
	DefaultProviderName  = "openai"
	DefaultModel         = "gpt-4o-mini"
	DefaultMaxTokens     = 2048
	DefaultCallTimeout   = 60 * time.Second
	DefaultLogLevel      = "info"
	SettingsEnvPrefix    = "MARVIN_"
)

// LoadSettings resolves configuration. A non-empty path names a YAML file
// that must exist; with an empty path only defaults and the environment are
// consulted. A .env file in the working directory is loaded first so local
// development can keep MARVIN_PROVIDER__API_KEY out of the shell profile.
//
// Environment keys use a double underscore between path segments so single
// underscores survive inside segment names: MARVIN_PROVIDER__MAX_TOKENS maps
// to provider.max_tokens.
func LoadSettings(path string) (*Settings, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	defaults := map[string]interface{}{
		"provider.name":           DefaultProviderName,
		"provider.model":          DefaultModel,
		"provider.temperature":    DefaultTemperatureDeterministic,
		"provider.max_tokens":     DefaultMaxTokens,
		"provider.timeout":        DefaultCallTimeout,
		"executor.max_iterations": DefaultMaxIterations,
		"log.level":               DefaultLogLevel,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load settings %s: %w", path, err)
		}
	}

	k.Load(env.Provider(SettingsEnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, SettingsEnvPrefix)), "__", ".", -1)
	}), nil)

	var settings Settings
	if err := k.Unmarshal("", &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	if settings.Executor.MaxIterations <= 0 {
		settings.Executor.MaxIterations = DefaultMaxIterations
	}

	return &settings, nil
}

// FrozenRequest converts provider settings into the frozen request merged
// into every call.
func (s *Settings) FrozenRequest() ChatRequest {
	return ChatRequest{
		Model:       s.Provider.Model,
		Temperature: s.Provider.Temperature,
		MaxTokens:   s.Provider.MaxTokens,
	}
}
