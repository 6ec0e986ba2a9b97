package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/pocketd/internal/agent"
	"github.com/haasonsaas/pocketd/internal/memory"
)

// MemoryTool exposes the memory collaborator to the model.
type MemoryTool struct {
	mem memory.Collaborator
}

// NewMemoryTool creates a memory tool over the given collaborator.
func NewMemoryTool(mem memory.Collaborator) *MemoryTool {
	return &MemoryTool{mem: mem}
}

func (t *MemoryTool) Name() string { return "memory" }

func (t *MemoryTool) Description() string {
	return "Remember facts for later and search what has been remembered. Categories: learned, user, preference, context."
}

func (t *MemoryTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"remember", "search", "recent", "stats"},
				"description": "What to do.",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The fact to remember (for remember).",
			},
			"category": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"learned", "user", "preference", "context"},
				"description": "Fact category (default learned).",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query (for search).",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Max results (for search and recent).",
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

func (t *MemoryTool) Available() bool { return t.mem != nil }

func (t *MemoryTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Action   string `json:"action"`
		Content  string `json:"content"`
		Category string `json:"category"`
		Query    string `json:"query"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	switch strings.ToLower(input.Action) {
	case "remember":
		if strings.TrimSpace(input.Content) == "" {
			return toolError("content is required for remember"), nil
		}
		var err error
		category := memory.Category(input.Category)
		switch category {
		case memory.CategoryUser:
			err = t.mem.RememberUser(ctx, input.Content)
		case memory.CategoryPreference:
			err = t.mem.RememberPreference(ctx, input.Content)
		case memory.CategoryContext:
			err = t.mem.RememberContext(ctx, input.Content)
		case memory.CategoryLearned, "":
			category = memory.CategoryLearned
			err = t.mem.RememberLearned(ctx, input.Content)
		default:
			return toolError(fmt.Sprintf("unknown category: %s", input.Category)), nil
		}
		if err != nil {
			return toolError(fmt.Sprintf("remember: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"status": "remembered", "category": string(category)}), nil

	case "search":
		if strings.TrimSpace(input.Query) == "" {
			return toolError("query is required for search"), nil
		}
		facts, err := t.mem.Search(ctx, input.Query, input.Limit)
		if err != nil {
			return toolError(fmt.Sprintf("search: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"facts": facts, "count": len(facts)}), nil

	case "recent":
		facts, err := t.mem.RecentEvents(ctx, input.Limit)
		if err != nil {
			return toolError(fmt.Sprintf("recent: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"facts": facts, "count": len(facts)}), nil

	case "stats":
		stats, err := t.mem.Stats(ctx)
		if err != nil {
			return toolError(fmt.Sprintf("stats: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"stats": stats}), nil

	default:
		return toolError("unsupported action: " + input.Action), nil
	}
}
