package marvin

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		settings, err := LoadSettings("")
		if err != nil {
			t.Fatalf("LoadSettings failed: %v", err)
		}

		if settings.Provider.Name != DefaultProviderName {
			t.Errorf("Expected provider %s, got %s", DefaultProviderName, settings.Provider.Name)
		}
		if settings.Provider.Model != DefaultModel {
			t.Errorf("Expected model %s, got %s", DefaultModel, settings.Provider.Model)
		}
		if settings.Provider.MaxTokens != DefaultMaxTokens {
			t.Errorf("Expected max tokens %d, got %d", DefaultMaxTokens, settings.Provider.MaxTokens)
		}
		if settings.Executor.MaxIterations != DefaultMaxIterations {
			t.Errorf("Expected max iterations %d, got %d", DefaultMaxIterations, settings.Executor.MaxIterations)
		}
		if settings.Log.Level != DefaultLogLevel {
			t.Errorf("Expected log level %s, got %s", DefaultLogLevel, settings.Log.Level)
		}
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "marvin.yaml")
		content := []byte("provider:\n  model: gpt-4o\n  max_tokens: 512\nexecutor:\n  max_iterations: 3\n")
		if err := os.WriteFile(path, content, 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}

		settings, err := LoadSettings(path)
		if err != nil {
			t.Fatalf("LoadSettings failed: %v", err)
		}

		if settings.Provider.Model != "gpt-4o" {
			t.Errorf("File model not applied: %s", settings.Provider.Model)
		}
		if settings.Provider.MaxTokens != 512 {
			t.Errorf("File max tokens not applied: %d", settings.Provider.MaxTokens)
		}
		if settings.Executor.MaxIterations != 3 {
			t.Errorf("File max iterations not applied: %d", settings.Executor.MaxIterations)
		}
		// Untouched keys keep defaults.
		if settings.Provider.Name != DefaultProviderName {
			t.Errorf("Default provider lost: %s", settings.Provider.Name)
		}
	})

	t.Run("missing file is an error", func(t *testing.T) {
		if _, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("Expected error for missing settings file")
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "marvin.yaml")
		if err := os.WriteFile(path, []byte("provider:\n  model: from-file\n"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}

		t.Setenv("MARVIN_PROVIDER__MODEL", "from-env")
		t.Setenv("MARVIN_PROVIDER__API_KEY", "secret")

		settings, err := LoadSettings(path)
		if err != nil {
			t.Fatalf("LoadSettings failed: %v", err)
		}

		if settings.Provider.Model != "from-env" {
			t.Errorf("Environment model not applied: %s", settings.Provider.Model)
		}
		if settings.Provider.APIKey != "secret" {
			t.Errorf("Environment API key not applied: %s", settings.Provider.APIKey)
		}
	})

	t.Run("non-positive iterations corrected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "marvin.yaml")
		if err := os.WriteFile(path, []byte("executor:\n  max_iterations: -1\n"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}

		settings, err := LoadSettings(path)
		if err != nil {
			t.Fatalf("LoadSettings failed: %v", err)
		}
		if settings.Executor.MaxIterations != DefaultMaxIterations {
			t.Errorf("Expected corrected budget, got %d", settings.Executor.MaxIterations)
		}
	})
}

func TestSettingsFrozenRequest(t *testing.T) {
	settings := &Settings{
		Provider: ProviderSettings{
			Model:       "gpt-4o",
			Temperature: 0.4,
			MaxTokens:   1024,
			Timeout:     10 * time.Second,
		},
	}

	frozen := settings.FrozenRequest()
	if frozen.Model != "gpt-4o" || frozen.Temperature != 0.4 || frozen.MaxTokens != 1024 {
		t.Errorf("Unexpected frozen request: %+v", frozen)
	}
}
