package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Provider != "anthropic" || cfg.Agent.MaxIterations != 10 {
		t.Errorf("defaults not applied: %+v", cfg.Agent)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level default = %q", cfg.Logging.Level)
	}
}

func TestLoadParsesFileAndExpandsEnv(t *testing.T) {
	t.Setenv("TEST_POCKETD_KEY", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
workspace: /tmp/ws
agent:
  provider: openai
  model: gpt-4o-mini
  max_iterations: 5
providers:
  openai:
    api_key: ${TEST_POCKETD_KEY}
channels:
  telegram:
    enabled: true
    bot_token: tok123
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace != "/tmp/ws" {
		t.Errorf("workspace = %q", cfg.Workspace)
	}
	if cfg.StateDir != "/tmp/ws/.pocketd" {
		t.Errorf("state dir = %q", cfg.StateDir)
	}
	if cfg.Agent.Provider != "openai" || cfg.Agent.Model != "gpt-4o-mini" || cfg.Agent.MaxIterations != 5 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Providers.OpenAI.APIKey != "from-env" {
		t.Errorf("env expansion failed: %q", cfg.Providers.OpenAI.APIKey)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.BotToken != "tok123" {
		t.Errorf("telegram = %+v", cfg.Channels.Telegram)
	}
}

func TestEnvOverridesFillEmptySecrets(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "anth-key")
	t.Setenv("BRAVE_API_KEY", "brave-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Anthropic.APIKey != "anth-key" {
		t.Errorf("anthropic key = %q", cfg.Providers.Anthropic.APIKey)
	}
	if cfg.Tools.BraveAPIKey != "brave-key" {
		t.Errorf("brave key = %q", cfg.Tools.BraveAPIKey)
	}
}

func TestFileWinsOverEnvForSecrets(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "providers:\n  anthropic:\n    api_key: file-key\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Anthropic.APIKey != "file-key" {
		t.Errorf("file value overridden: %q", cfg.Providers.Anthropic.APIKey)
	}
}

func TestStatePaths(t *testing.T) {
	cfg := Default()
	cfg.StateDir = "/var/lib/pocketd"
	if cfg.SessionsDir() != "/var/lib/pocketd/sessions" {
		t.Errorf("SessionsDir = %q", cfg.SessionsDir())
	}
	if cfg.MemoryPath() != "/var/lib/pocketd/memory.jsonl" {
		t.Errorf("MemoryPath = %q", cfg.MemoryPath())
	}
	if cfg.JobsPath() != "/var/lib/pocketd/cron.json" {
		t.Errorf("JobsPath = %q", cfg.JobsPath())
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("workspace: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("bad yaml should fail")
	}
}
