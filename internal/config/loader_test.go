package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/crystaldolphin/chatrelay/internal/config/storage"
)

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Provider.Model != def.Provider.Model {
		t.Errorf("expected default model %q, got %q", def.Provider.Model, cfg.Provider.Model)
	}
	if cfg.Conversation.MaxContextTokens != 120000 || cfg.Conversation.MessageLimit != 2000 {
		t.Errorf("unexpected conversation defaults: %+v", cfg.Conversation)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"provider": map[string]any{
			"model":     "openai/gpt-4o",
			"maxTokens": 2048,
		},
		"conversation": map[string]any{"maxContextTokens": 8000},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.Model != "openai/gpt-4o" {
		t.Errorf("expected model %q, got %q", "openai/gpt-4o", cfg.Provider.Model)
	}
	if cfg.Provider.MaxTokens != 2048 {
		t.Errorf("expected maxTokens 2048, got %d", cfg.Provider.MaxTokens)
	}
	if cfg.Conversation.MaxContextTokens != 8000 {
		t.Errorf("expected maxContextTokens 8000, got %d", cfg.Conversation.MaxContextTokens)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "provider:\n  model: anthropic/claude-3-haiku\nstorage:\n  backend: sqlite\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.Model != "anthropic/claude-3-haiku" || cfg.Storage.Backend != storage.BackendSQLite {
		t.Errorf("yaml not applied: model=%q backend=%q", cfg.Provider.Model, cfg.Storage.Backend)
	}
	if cfg.Provider.Retry.MaxAttempts != 3 {
		t.Errorf("unset yaml fields must keep defaults, got retry %+v", cfg.Provider.Retry)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid JSON (falls back to default), got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Provider.Model != def.Provider.Model {
		t.Errorf("expected default model %q, got %q", def.Provider.Model, cfg.Provider.Model)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-env")
	t.Setenv(EnvDiscordToken, "discord-env")

	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"provider": map[string]any{"apiKey": "sk-file"},
	})
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Errorf("env must win over file, got %q", cfg.Provider.APIKey)
	}
	if cfg.Channels.Discord.Token != "discord-env" {
		t.Errorf("expected discord token from env, got %q", cfg.Channels.Discord.Token)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"config.json", "config.yml"} {
		path := filepath.Join(dir, name)

		original := DefaultConfig()
		original.Provider.Model = "anthropic/claude-3-5-sonnet"
		original.Conversation.MessageLimit = 1234

		if err := Save(&original, path); err != nil {
			t.Fatalf("%s: Save failed: %v", name, err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("%s: Load failed: %v", name, err)
		}
		if loaded.Provider.Model != original.Provider.Model {
			t.Errorf("%s: model mismatch: got %q, want %q", name, loaded.Provider.Model, original.Provider.Model)
		}
		if loaded.Conversation.MessageLimit != 1234 {
			t.Errorf("%s: messageLimit mismatch: got %d", name, loaded.Conversation.MessageLimit)
		}
	}
}

func TestSave_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected permissions 0600, got %04o", perm)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dir", "config.json")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

// ─── Validate ─────────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	def := DefaultConfig()
	if err := def.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	cases := map[string]func(c *Config){
		"context below minimum": func(c *Config) { c.Conversation.MaxContextTokens = 999 },
		"limit below minimum":   func(c *Config) { c.Conversation.MessageLimit = 99 },
		"limit above maximum":   func(c *Config) { c.Conversation.MessageLimit = 2001 },
		"no attempts":           func(c *Config) { c.Provider.Retry.MaxAttempts = 0 },
		"unknown backend":       func(c *Config) { c.Storage.Backend = "mongo" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestValidate_MessageLimitBounds(t *testing.T) {
	for _, n := range []int{100, 2000} {
		c := DefaultConfig()
		c.Conversation.MessageLimit = n
		if err := c.Validate(); err != nil {
			t.Errorf("messageLimit %d rejected: %v", n, err)
		}
	}
	c := DefaultConfig()
	c.Conversation.MessageLimit = 5000
	if err := c.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("messageLimit 5000: expected ErrInvalid, got %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Errorf("ExpandPath = %q", got)
	}
	if got := ExpandPath("/abs"); got != "/abs" {
		t.Errorf("absolute paths must be unchanged, got %q", got)
	}
}
