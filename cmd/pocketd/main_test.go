package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("workspace: %s\nstate_dir: %s\n", dir, filepath.Join(dir, ".pocketd"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCronCommandLifecycle(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCommand(t, "cron", "add", "--config", configPath,
		"--name", "standup", "--every", "120", "--message", "post the standup summary")
	if err != nil {
		t.Fatalf("cron add: %v", err)
	}
	if !strings.Contains(out, "Job added:") || !strings.Contains(out, "standup") {
		t.Fatalf("add output = %q", out)
	}
	fields := strings.Fields(out)
	id := fields[2]
	if id == "" || id == "(standup)" {
		t.Fatalf("no job id in output %q", out)
	}

	out, err = runCommand(t, "cron", "list", "--config", configPath)
	if err != nil {
		t.Fatalf("cron list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "standup") {
		t.Errorf("list output = %q", out)
	}

	if _, err := runCommand(t, "cron", "disable", "--config", configPath, id); err != nil {
		t.Fatalf("cron disable: %v", err)
	}
	out, err = runCommand(t, "cron", "list", "--config", configPath)
	if err != nil {
		t.Fatalf("cron list: %v", err)
	}
	if strings.Contains(out, id) {
		t.Errorf("disabled job still listed: %q", out)
	}

	if _, err := runCommand(t, "cron", "enable", "--config", configPath, id); err != nil {
		t.Fatalf("cron enable: %v", err)
	}
	if _, err := runCommand(t, "cron", "remove", "--config", configPath, id); err != nil {
		t.Fatalf("cron remove: %v", err)
	}
	if _, err := runCommand(t, "cron", "remove", "--config", configPath, id); err == nil {
		t.Error("removing a removed job should fail")
	}
}

func TestCronAddRejectsSubMinimumInterval(t *testing.T) {
	configPath := writeTestConfig(t)
	_, err := runCommand(t, "cron", "add", "--config", configPath,
		"--name", "fast", "--every", "5", "--message", "too often")
	if err == nil || !strings.Contains(err.Error(), "minimum") {
		t.Errorf("err = %v", err)
	}
}

func TestCronAddRequiresOneSchedule(t *testing.T) {
	configPath := writeTestConfig(t)
	_, err := runCommand(t, "cron", "add", "--config", configPath,
		"--name", "never", "--message", "no schedule")
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Errorf("err = %v", err)
	}
}
