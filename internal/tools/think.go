// Package tools holds the default tool set that is not big enough to
// warrant its own package: think, message, send_file, and the thin
// adapters that expose memory and the scheduler as tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/pocketd/internal/agent"
)

// ThinkTool gives the model a scratchpad. The thought is logged and
// acknowledged; it is never surfaced to the end user.
type ThinkTool struct {
	logger *slog.Logger
}

// NewThinkTool creates a think tool.
func NewThinkTool(logger *slog.Logger) *ThinkTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThinkTool{logger: logger.With("component", "think")}
}

func (t *ThinkTool) Name() string { return "think" }

func (t *ThinkTool) Description() string {
	return "Think through a problem step by step. The thought is recorded but not shown to the user."
}

func (t *ThinkTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"thought": map[string]interface{}{
				"type":        "string",
				"description": "The thought to record.",
			},
		},
		"required": []string{"thought"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ThinkTool) Available() bool { return true }

func (t *ThinkTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Thought string `json:"thought"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Thought == "" {
		return toolError("thought is required"), nil
	}
	t.logger.Debug("thought recorded", "thought", input.Thought)
	return &agent.ToolResult{Content: "Thought recorded."}, nil
}

func toolError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: "Error: " + message, IsError: true}
}

func jsonResult(payload map[string]interface{}) *agent.ToolResult {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err))
	}
	return &agent.ToolResult{Content: string(encoded)}
}
