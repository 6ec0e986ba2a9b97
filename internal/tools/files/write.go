package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/pocketd/internal/agent"
)

// MaxWriteSize bounds write_file content (10 MiB).
const MaxWriteSize = 10 << 20

// WriteTool writes files inside the workspace, creating parent
// directories as needed.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write_file tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *WriteTool) Name() string { return "write_file" }

func (t *WriteTool) Description() string {
	return "Write content to a file in the workspace, creating parent directories. Overwrites existing files."
}

func (t *WriteTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to write (relative to workspace).",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Full file content.",
			},
		},
		"required": []string{"path", "content"},
	})
}

func (t *WriteTool) Available() bool { return true }

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if len(input.Content) > MaxWriteSize {
		return toolError(fmt.Sprintf("content exceeds %d bytes", MaxWriteSize)), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create parent dirs: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(input.Content), 0o644); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"path":  input.Path,
		"bytes": len(input.Content),
	}), nil
}
