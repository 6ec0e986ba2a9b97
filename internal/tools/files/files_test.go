package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/pocketd/internal/agent"
)

func run(t *testing.T, tool agent.Tool, args map[string]any) *agent.ToolResult {
	t.Helper()
	params, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return result
}

func seedFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return path
}

func TestResolverBlocksEscape(t *testing.T) {
	resolver := Resolver{Root: t.TempDir()}
	tests := []string{
		"../outside.txt",
		"../../etc/passwd",
		"/etc/passwd",
		"a/../../escape",
	}
	for _, path := range tests {
		if _, err := resolver.Resolve(path); err == nil {
			t.Errorf("Resolve(%q) should fail", path)
		}
	}
	if _, err := resolver.Resolve("sub/inside.txt"); err != nil {
		t.Errorf("relative path inside workspace rejected: %v", err)
	}
}

func TestResolverUnrestrictedWithoutWorkspace(t *testing.T) {
	resolver := Resolver{}
	if _, err := resolver.Resolve("/etc/hosts"); err != nil {
		t.Errorf("no workspace should mean unrestricted: %v", err)
	}
}

func TestReadFileLineNumbers(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "notes.txt", "alpha\nbeta\ngamma\n")
	tool := NewReadTool(Config{Workspace: dir})

	result := run(t, tool, map[string]any{"path": "notes.txt"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "1\talpha") || !strings.Contains(result.Content, "3\tgamma") {
		t.Errorf("line numbering wrong:\n%s", result.Content)
	}
}

func TestReadFileOffsetLimit(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "notes.txt", "one\ntwo\nthree\nfour\nfive\n")
	tool := NewReadTool(Config{Workspace: dir})

	result := run(t, tool, map[string]any{"path": "notes.txt", "offset": 2, "limit": 2})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "2\ttwo") || !strings.Contains(result.Content, "3\tthree") {
		t.Errorf("offset window wrong:\n%s", result.Content)
	}
	if strings.Contains(result.Content, "\tone") || strings.Contains(result.Content, "\tfour") {
		t.Errorf("lines outside window leaked:\n%s", result.Content)
	}
	if !strings.Contains(result.Content, "2 more lines") {
		t.Errorf("remaining-lines marker missing:\n%s", result.Content)
	}
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()
	tool := NewReadTool(Config{Workspace: dir})

	result := run(t, tool, map[string]any{"path": "missing.txt"})
	if !result.IsError || !strings.HasPrefix(result.Content, "Error:") {
		t.Errorf("missing file should be an Error: result: %q", result.Content)
	}

	result = run(t, tool, map[string]any{"path": "/etc/passwd"})
	if !result.IsError || !strings.Contains(result.Content, "outside workspace") {
		t.Errorf("escape should mention outside workspace: %q", result.Content)
	}

	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	result = run(t, tool, map[string]any{"path": "subdir"})
	if !result.IsError || !strings.Contains(result.Content, "not a file") {
		t.Errorf("directory read should fail: %q", result.Content)
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	tool := NewWriteTool(Config{Workspace: dir})

	result := run(t, tool, map[string]any{"path": "a/b/c.txt", "content": "hello"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "c.txt"))
	if err != nil || string(data) != "hello" {
		t.Errorf("file not written: %v %q", err, data)
	}
}

func TestWriteFileSizeCap(t *testing.T) {
	tool := NewWriteTool(Config{Workspace: t.TempDir()})
	result := run(t, tool, map[string]any{"path": "big.bin", "content": strings.Repeat("x", MaxWriteSize+1)})
	if !result.IsError || !strings.Contains(result.Content, "exceeds") {
		t.Errorf("oversize write should fail: %q", result.Content)
	}
}

func TestEditFileUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "code.go", "func a() {}\nfunc b() {}\n")
	tool := NewEditTool(Config{Workspace: dir})

	result := run(t, tool, map[string]any{
		"path": "code.go", "old_string": "func a() {}", "new_string": "func a() { return }",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "code.go"))
	if !strings.Contains(string(data), "func a() { return }") {
		t.Errorf("edit not applied: %q", data)
	}
}

func TestEditFileNonUniqueRequiresReplaceAll(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "dup.txt", "same\nsame\nother\n")
	tool := NewEditTool(Config{Workspace: dir})

	result := run(t, tool, map[string]any{"path": "dup.txt", "old_string": "same", "new_string": "diff"})
	if !result.IsError || !strings.Contains(result.Content, "replace_all") {
		t.Errorf("non-unique match should fail without replace_all: %q", result.Content)
	}

	result = run(t, tool, map[string]any{
		"path": "dup.txt", "old_string": "same", "new_string": "diff", "replace_all": true,
	})
	if result.IsError {
		t.Fatalf("replace_all failed: %s", result.Content)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "dup.txt"))
	if strings.Contains(string(data), "same") || strings.Count(string(data), "diff") != 2 {
		t.Errorf("replace_all wrong: %q", data)
	}
}

func TestEditFileNearMissHint(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "config.yml", "timeout: 30\nretries: 3\n")
	tool := NewEditTool(Config{Workspace: dir})

	result := run(t, tool, map[string]any{
		"path": "config.yml", "old_string": "  timeout: 30", "new_string": "  timeout: 60",
	})
	if !result.IsError {
		t.Fatal("whitespace mismatch should fail")
	}
	if !strings.Contains(result.Content, "Similar lines") || !strings.Contains(result.Content, "timeout: 30") {
		t.Errorf("near-miss hint missing: %q", result.Content)
	}
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "b.go", "package b")
	seedFile(t, dir, "a.go", "package a")
	seedFile(t, dir, "readme.md", "# hi")
	seedFile(t, dir, ".hidden", "secret")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	tool := NewListTool(Config{Workspace: dir})

	result := run(t, tool, map[string]any{})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if strings.Contains(result.Content, ".hidden") {
		t.Error("hidden file listed without include_hidden")
	}
	if !strings.Contains(result.Content, "sub/") {
		t.Error("directory missing trailing slash")
	}
	if strings.Index(result.Content, "a.go") > strings.Index(result.Content, "b.go") {
		t.Error("entries not sorted")
	}

	result = run(t, tool, map[string]any{"pattern": "*.go"})
	if strings.Contains(result.Content, "readme.md") {
		t.Errorf("glob did not filter: %s", result.Content)
	}

	result = run(t, tool, map[string]any{"include_hidden": true})
	if !strings.Contains(result.Content, ".hidden") {
		t.Error("include_hidden did not surface dotfile")
	}
}

func TestListDirOnFile(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "plain.txt", "x")
	tool := NewListTool(Config{Workspace: dir})

	result := run(t, tool, map[string]any{"path": "plain.txt"})
	if !result.IsError || !strings.Contains(result.Content, "not a directory") {
		t.Errorf("listing a file should fail: %q", result.Content)
	}
}
