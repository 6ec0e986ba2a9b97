package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/pocketd/internal/agent"
)

// JobsTool exposes list/status/output/kill over background jobs.
type JobsTool struct {
	store *JobStore
}

// NewJobsTool creates a jobs tool over the given store.
func NewJobsTool(store *JobStore) *JobsTool {
	return &JobsTool{store: store}
}

func (t *JobsTool) Name() string { return "jobs" }

func (t *JobsTool) Description() string {
	return "Manage background jobs started by exec: list, status, output, kill."
}

func (t *JobsTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"list", "status", "output", "kill"},
				"description": "What to do.",
			},
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job id (required for status, output, kill).",
			},
			"lines": map[string]interface{}{
				"type":        "integer",
				"description": "Lines of output to return (default 50).",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *JobsTool) Available() bool { return t.store != nil }

func (t *JobsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Action string `json:"action"`
		JobID  string `json:"job_id"`
		Lines  int    `json:"lines"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return execError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	action := strings.ToLower(strings.TrimSpace(input.Action))
	needsID := action == "status" || action == "output" || action == "kill"
	if needsID && strings.TrimSpace(input.JobID) == "" {
		return execError("job_id is required for " + action), nil
	}

	switch action {
	case "list":
		jobs, err := t.store.List()
		if err != nil {
			return execError(err.Error()), nil
		}
		return jsonExecResult(map[string]interface{}{"jobs": jobs}), nil
	case "status":
		job, err := t.store.Get(input.JobID)
		if err != nil {
			return execError(err.Error()), nil
		}
		return jsonExecResult(map[string]interface{}{"job": job}), nil
	case "output":
		output, err := t.store.Output(input.JobID, input.Lines)
		if err != nil {
			return execError(err.Error()), nil
		}
		return &agent.ToolResult{Content: output}, nil
	case "kill":
		if err := t.store.Kill(input.JobID); err != nil {
			return execError(err.Error()), nil
		}
		return jsonExecResult(map[string]interface{}{"job_id": input.JobID, "status": "killed"}), nil
	default:
		return execError("unsupported action: " + input.Action), nil
	}
}
