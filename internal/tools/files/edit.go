package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/pocketd/internal/agent"
)

// EditTool applies exact-match textual substitutions to a file.
type EditTool struct {
	resolver Resolver
}

// NewEditTool creates an edit_file tool scoped to the workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *EditTool) Name() string { return "edit_file" }

func (t *EditTool) Description() string {
	return "Replace an exact text match in a file. old_string must match exactly once unless replace_all is set."
}

func (t *EditTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to edit (relative to workspace).",
			},
			"old_string": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to replace.",
			},
			"new_string": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text.",
			},
			"replace_all": map[string]interface{}{
				"type":        "boolean",
				"description": "Replace every occurrence (default: false).",
			},
		},
		"required": []string{"path", "old_string", "new_string"},
	})
}

func (t *EditTool) Available() bool { return true }

func (t *EditTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Path       string `json:"path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.OldString == "" {
		return toolError("old_string is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}
	content := string(data)

	count := strings.Count(content, input.OldString)
	switch {
	case count == 0:
		hint := nearMissHint(content, input.OldString)
		if hint != "" {
			return toolError("old_string not found. Similar lines:\n" + hint), nil
		}
		return toolError("old_string not found"), nil
	case count > 1 && !input.ReplaceAll:
		return toolError(fmt.Sprintf("old_string matches %d times; pass replace_all or make it unique", count)), nil
	}

	replaced := count
	if input.ReplaceAll {
		content = strings.ReplaceAll(content, input.OldString, input.NewString)
	} else {
		content = strings.Replace(content, input.OldString, input.NewString, 1)
		replaced = 1
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"path":         input.Path,
		"replacements": replaced,
	}), nil
}

// nearMissHint looks for lines resembling the first line of the failed
// match, up to 3, so the model can correct whitespace or typo drift.
func nearMissHint(content, oldString string) string {
	needle := strings.TrimSpace(strings.SplitN(oldString, "\n", 2)[0])
	if len(needle) < 4 {
		return ""
	}
	lowNeedle := strings.ToLower(needle)

	var hits []string
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lowLine := strings.ToLower(trimmed)
		if strings.Contains(lowLine, lowNeedle) || strings.Contains(lowNeedle, lowLine) {
			hits = append(hits, fmt.Sprintf("  %d: %s", i+1, trimmed))
			if len(hits) == 3 {
				break
			}
		}
	}
	return strings.Join(hits, "\n")
}
