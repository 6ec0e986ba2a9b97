package gateway

import (
	"sort"
	"strings"
	"testing"

	"github.com/haasonsaas/pocketd/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	cfg.Workspace = workspace
	cfg.StateDir = workspace + "/.pocketd"
	cfg.Providers.Anthropic.APIKey = "test-key"
	cfg.Channels.CLI.Enabled = true
	return cfg
}

func TestNewWiresDefaultTools(t *testing.T) {
	gw, err := New(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []string{
		"cron", "edit_file", "exec", "jobs", "list_dir",
		"memory", "message", "read_file", "send_file",
		"think", "web_fetch", "web_search", "write_file",
	}
	got := gw.registry.Names()
	sort.Strings(got)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("tool names = %v, want %v", got, want)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.Provider = "bedrock"
	if _, err := New(cfg, Options{}); err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("err = %v", err)
	}
}

func TestNewRequiresProviderKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers.Anthropic.APIKey = ""
	if _, err := New(cfg, Options{}); err == nil {
		t.Error("missing API key should fail")
	}
}

func TestNewRequiresAChannel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Channels.CLI.Enabled = false
	if _, err := New(cfg, Options{}); err == nil || !strings.Contains(err.Error(), "no channels") {
		t.Errorf("err = %v", err)
	}
}

func TestCLIOnlySkipsTelegram(t *testing.T) {
	cfg := testConfig(t)
	cfg.Channels.CLI.Enabled = false
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.BotToken = "123:abc"

	gw, err := New(cfg, Options{CLIOnly: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	names := gw.channels.Names()
	if len(names) != 1 || string(names[0]) != "cli" {
		t.Errorf("channels = %v, want only cli", names)
	}
}
