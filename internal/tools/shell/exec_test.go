package shell

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/pocketd/internal/agent"
)

func runExec(t *testing.T, tool agent.Tool, args map[string]any) *agent.ToolResult {
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

func decodeExec(t *testing.T, result *agent.ToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatalf("decode result %q: %v", result.Content, err)
	}
	return payload
}

func TestExecCapturesOutputAndExitCode(t *testing.T) {
	tool := NewExecTool(t.TempDir(), nil, nil)

	result := runExec(t, tool, map[string]any{"command": "echo hello; echo oops >&2"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	payload := decodeExec(t, result)
	if payload["exit_code"].(float64) != 0 {
		t.Errorf("exit_code = %v", payload["exit_code"])
	}
	if !strings.Contains(payload["stdout"].(string), "hello") {
		t.Errorf("stdout = %q", payload["stdout"])
	}
	if !strings.Contains(payload["stderr"].(string), "oops") {
		t.Errorf("stderr = %q", payload["stderr"])
	}

	result = runExec(t, tool, map[string]any{"command": "exit 3"})
	payload = decodeExec(t, result)
	if payload["exit_code"].(float64) != 3 {
		t.Errorf("nonzero exit_code = %v", payload["exit_code"])
	}
}

func TestExecRunsInWorkspace(t *testing.T) {
	dir := t.TempDir()
	tool := NewExecTool(dir, nil, nil)

	result := runExec(t, tool, map[string]any{"command": "touch created.txt"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if _, err := os.Stat(filepath.Join(dir, "created.txt")); err != nil {
		t.Errorf("command did not run in workspace: %v", err)
	}
}

func TestExecTimeout(t *testing.T) {
	tool := NewExecTool(t.TempDir(), nil, nil)

	start := time.Now()
	result := runExec(t, tool, map[string]any{"command": "sleep 10", "timeout": 1})
	elapsed := time.Since(start)

	if !result.IsError || !strings.Contains(result.Content, "timed out") {
		t.Errorf("expected timeout error, got %q", result.Content)
	}
	if elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}

func TestExecRefusesDangerousCommands(t *testing.T) {
	tool := NewExecTool(t.TempDir(), nil, nil)

	result := runExec(t, tool, map[string]any{"command": "rm -rf /"})
	if !result.IsError {
		t.Fatal("dangerous command not refused")
	}
	if !strings.HasPrefix(result.Content, "Error:") || !strings.Contains(result.Content, "forbidden") {
		t.Errorf("refusal message wrong: %q", result.Content)
	}
}

func TestExecWorkingDirOutsideWorkspace(t *testing.T) {
	tool := NewExecTool(t.TempDir(), nil, nil)

	result := runExec(t, tool, map[string]any{"command": "ls", "working_dir": "../.."})
	if !result.IsError || !strings.Contains(result.Content, "outside workspace") {
		t.Errorf("escape should be refused: %q", result.Content)
	}
}

func TestExecBackgroundDetaches(t *testing.T) {
	dir := t.TempDir()
	jobs := NewJobStore(dir, nil)
	defer jobs.Close()
	tool := NewExecTool(dir, jobs, nil)

	result := runExec(t, tool, map[string]any{"command": "sleep 2", "background": true})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	payload := decodeExec(t, result)
	jobID, _ := payload["job_id"].(string)
	if jobID == "" {
		t.Fatalf("no job_id in %q", result.Content)
	}
	if payload["status"] != "running" {
		t.Errorf("status = %v", payload["status"])
	}

	job, err := jobs.Get(jobID)
	if err != nil {
		t.Fatalf("Get(%s): %v", jobID, err)
	}
	if job.Status != "running" {
		t.Errorf("job status = %s", job.Status)
	}
	if err := jobs.Kill(jobID); err != nil {
		t.Errorf("Kill: %v", err)
	}
}

func TestExecLongRunningAutoBackgrounds(t *testing.T) {
	dir := t.TempDir()
	jobs := NewJobStore(dir, nil)
	defer jobs.Close()
	tool := NewExecTool(dir, jobs, nil)

	result := runExec(t, tool, map[string]any{"command": "sleep 2 &"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	payload := decodeExec(t, result)
	if payload["job_id"] == nil {
		t.Errorf("long-running command should detach: %q", result.Content)
	}
	if id, ok := payload["job_id"].(string); ok {
		_ = jobs.Kill(id)
	}
}

func TestJobStoreLifecycle(t *testing.T) {
	store := NewJobStore(t.TempDir(), nil)

	job, err := store.Start("echo line1; echo line2", "demo", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.ID == "" || job.PID <= 0 {
		t.Fatalf("bad job record: %+v", job)
	}

	// Wait for the waiter goroutine to record the exit.
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := store.Get(job.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status == "exited:0" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, status %s", got.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	output, err := store.Output(job.ID, 0)
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if !strings.Contains(output, "line1") || !strings.Contains(output, "line2") {
		t.Errorf("output = %q", output)
	}

	output, err = store.Output(job.ID, 1)
	if err != nil {
		t.Fatalf("Output(1): %v", err)
	}
	if strings.Contains(output, "line1") || !strings.Contains(output, "line2") {
		t.Errorf("tail window wrong: %q", output)
	}

	jobs, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Errorf("List = %+v", jobs)
	}
}

func TestJobStoreKill(t *testing.T) {
	store := NewJobStore(t.TempDir(), nil)
	defer store.Close()

	job, err := store.Start("sleep 30", "", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.Kill(job.ID); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	got, err := store.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "killed" {
		t.Errorf("status = %s, want killed", got.Status)
	}
	if err := store.Kill(job.ID); err == nil {
		t.Error("killing a dead job should fail")
	}
}

func TestJobStoreClose(t *testing.T) {
	store := NewJobStore(t.TempDir(), nil)

	job, err := store.Start("sleep 0.2", "", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	store.Close()

	// The process exits after Close; its waiter must not touch the
	// workspace, so the recorded status stays as started.
	time.Sleep(600 * time.Millisecond)
	got, err := store.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "running" {
		t.Errorf("status rewritten after close: %q", got.Status)
	}

	if _, err := store.Start("echo late", "", ""); err == nil {
		t.Error("Start after Close should fail")
	}
}

func TestJobStoreUnknownJob(t *testing.T) {
	store := NewJobStore(t.TempDir(), nil)
	if _, err := store.Get("nope"); err == nil {
		t.Error("Get on unknown job should fail")
	}
	if _, err := store.Output("nope", 0); err == nil {
		t.Error("Output on unknown job should fail")
	}
}

func TestJobsTool(t *testing.T) {
	store := NewJobStore(t.TempDir(), nil)
	tool := NewJobsTool(store)

	job, err := store.Start("echo done", "", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	result := runExec(t, tool, map[string]any{"action": "list"})
	if result.IsError || !strings.Contains(result.Content, job.ID) {
		t.Errorf("list missing job: %q", result.Content)
	}

	result = runExec(t, tool, map[string]any{"action": "output", "job_id": job.ID})
	if result.IsError || !strings.Contains(result.Content, "done") {
		t.Errorf("output = %q", result.Content)
	}

	result = runExec(t, tool, map[string]any{"action": "status"})
	if !result.IsError || !strings.Contains(result.Content, "job_id is required") {
		t.Errorf("missing job_id not caught: %q", result.Content)
	}

	result = runExec(t, tool, map[string]any{"action": "purge"})
	if !result.IsError || !strings.Contains(result.Content, "unsupported action") {
		t.Errorf("unknown action not caught: %q", result.Content)
	}
}
