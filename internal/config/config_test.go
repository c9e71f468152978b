package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v, missing file should fall back to defaults", err)
	}
	if cfg.User.Name != "User" {
		t.Fatalf("User.Name = %q, want default", cfg.User.Name)
	}
	if len(cfg.Providers) == 0 {
		t.Fatal("defaults carry no providers")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COMPASS_USER_NAME", "Dana")
	t.Setenv("COMPASS_DB", "/tmp/other.db")
	t.Setenv("GEMINI_API_KEY", "gkey")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.User.Name != "Dana" {
		t.Fatalf("User.Name = %q, want env override", cfg.User.Name)
	}
	if cfg.DatabasePath != "/tmp/other.db" {
		t.Fatalf("DatabasePath = %q, want env override", cfg.DatabasePath)
	}
	if cfg.Embedding.GenAIAPIKey != "gkey" {
		t.Fatal("GEMINI_API_KEY did not seed the embedding backend key")
	}
}

func TestLoad_EnvFillsProviderKeyOnlyWhenEmpty(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `providers:
  - id: openai
    kind: openai
    endpoint: https://api.openai.com
    api_key: explicit
  - id: openai-second
    kind: openai
    endpoint: https://proxy.local
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Providers[0].APIKey != "explicit" {
		t.Fatalf("APIKey = %q, explicit config must win over env", cfg.Providers[0].APIKey)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.User.Name = "Robin"
	cfg.DefaultModel = "ollama/llama3"
	cfg.Stream.UpdateDelay = "250ms"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.User.Name != "Robin" || got.DefaultModel != "ollama/llama3" {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if got.UpdateDelay() != 250*time.Millisecond {
		t.Fatalf("UpdateDelay() = %v, want 250ms", got.UpdateDelay())
	}
}

func TestUpdateDelay_ZeroDisablesPacing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stream.UpdateDelay = "0s"
	if got := cfg.UpdateDelay(); got >= 0 {
		t.Fatalf("UpdateDelay() = %v, want a negative sentinel for an explicit 0s", got)
	}
}

func TestUpdateDelay_InvalidFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stream.UpdateDelay = "not a duration"
	if got := cfg.UpdateDelay(); got != 100*time.Millisecond {
		t.Fatalf("UpdateDelay() = %v, want 100ms fallback", got)
	}
}

func TestWatch_DeliversReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	stop, err := Watch(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer stop()

	next := DefaultConfig()
	next.User.Name = "Changed"
	if err := next.Save(path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.User.Name != "Changed" {
			t.Fatalf("reloaded User.Name = %q, want Changed", cfg.User.Name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload delivered within timeout")
	}
}
