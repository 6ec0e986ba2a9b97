package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/haasonsaas/pocketd/internal/agent"
	"github.com/haasonsaas/pocketd/internal/tools/files"
)

// ExecTool runs shell commands with per-class timeouts. Long-running
// commands detach to background jobs automatically.
type ExecTool struct {
	resolver files.Resolver
	jobs     *JobStore
	logger   *slog.Logger
}

// NewExecTool creates an exec tool scoped to the workspace.
func NewExecTool(workspace string, jobs *JobStore, logger *slog.Logger) *ExecTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecTool{
		resolver: files.Resolver{Root: workspace},
		jobs:     jobs,
		logger:   logger.With("component", "exec"),
	}
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Run a shell command in the workspace. Long-running commands (installs, builds, clones) detach to a background job; check them with the jobs tool."
}

func (t *ExecTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to run.",
			},
			"timeout": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (max 600).",
			},
			"working_dir": map[string]interface{}{
				"type":        "string",
				"description": "Working directory (relative to workspace).",
			},
			"background": map[string]interface{}{
				"type":        "boolean",
				"description": "Force background execution.",
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ExecTool) Available() bool { return true }

func (t *ExecTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Command    string `json:"command"`
		Timeout    int    `json:"timeout"`
		WorkingDir string `json:"working_dir"`
		Background bool   `json:"background"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return execError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Command == "" {
		return execError("command is required"), nil
	}

	if reason, dangerous := CheckDangerous(input.Command); dangerous {
		return execError("command refused (forbidden): " + reason), nil
	}

	dir := ""
	if input.WorkingDir != "" {
		resolved, err := t.resolver.Resolve(input.WorkingDir)
		if err != nil {
			return execError(err.Error()), nil
		}
		dir = resolved
	} else if resolved, err := t.resolver.Resolve("."); err == nil {
		dir = resolved
	}

	class := Classify(input.Command)
	if input.Background || class == ClassBackground {
		if t.jobs == nil {
			return execError("background execution is not configured"), nil
		}
		job, err := t.jobs.Start(input.Command, "", dir)
		if err != nil {
			return execError(fmt.Sprintf("start background job: %v", err)), nil
		}
		t.logger.Info("command detached to background", "job", job.ID, "command", input.Command)
		return jsonExecResult(map[string]interface{}{
			"job_id": job.ID,
			"status": "running",
			"note":   "command detached to a background job; use the jobs tool to check on it",
		}), nil
	}

	timeout := EffectiveTimeout(class, time.Duration(input.Timeout)*time.Second)
	return t.runSync(ctx, input.Command, dir, timeout)
}

func (t *ExecTool) runSync(ctx context.Context, command, dir string, timeout time.Duration) (*agent.ToolResult, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Separate drains so a full stderr pipe can never deadlock stdout.
	stdout := newCappedBuffer(4 << 20)
	stderr := newCappedBuffer(4 << 20)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return execError(fmt.Sprintf("start command: %v", err)), nil
	}
	pgid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
		go func() {
			select {
			case <-done:
			case <-time.After(killGrace):
				_ = syscall.Kill(-pgid, syscall.SIGKILL)
				<-done
			}
		}()
		return execError(fmt.Sprintf("command canceled: %v", ctx.Err())), nil
	case <-timer.C:
		timedOut = true
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
		select {
		case waitErr = <-done:
		case <-time.After(killGrace):
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
			waitErr = <-done
		}
	}

	elapsed := time.Since(start)
	if timedOut {
		return execError(fmt.Sprintf("command timed out after %s", timeout)), nil
	}

	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			return execError(fmt.Sprintf("run command: %v", waitErr)), nil
		}
	}

	return jsonExecResult(map[string]interface{}{
		"exit_code":   code,
		"duration_ms": elapsed.Milliseconds(),
		"stdout":      TruncateOutput(stdout.String(), MaxOutputBytes),
		"stderr":      TruncateOutput(stderr.String(), MaxOutputBytes),
	}), nil
}

func execError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: "Error: " + message, IsError: true}
}

func jsonExecResult(payload map[string]interface{}) *agent.ToolResult {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return execError(fmt.Sprintf("encode result: %v", err))
	}
	return &agent.ToolResult{Content: string(encoded)}
}

// cappedBuffer drops writes beyond its cap instead of growing without
// bound; truncation to the reported limit happens at formatting time.
type cappedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) >= b.max {
		return len(p), nil
	}
	remaining := b.max - len(b.buf)
	if len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
