package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/pocketd/internal/agent"
	"github.com/haasonsaas/pocketd/internal/cron"
)

// CronTool lets the model manage scheduled jobs.
type CronTool struct {
	store *cron.Store
}

// NewCronTool creates a cron tool over the scheduler's job store.
func NewCronTool(store *cron.Store) *CronTool {
	return &CronTool{store: store}
}

func (t *CronTool) Name() string { return "cron" }

func (t *CronTool) Description() string {
	return "Schedule future or recurring work: one-shot reminders (at), intervals (every), or cron expressions. Fired jobs arrive as new messages."
}

func (t *CronTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"list", "add", "remove", "enable", "disable"},
				"description": "What to do.",
			},
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job id (for remove, enable, disable).",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Human-readable job name (for add).",
			},
			"kind": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"at", "every", "cron"},
				"description": "Schedule kind (for add).",
			},
			"at": map[string]interface{}{
				"type":        "string",
				"description": "RFC 3339 timestamp for one-shot jobs.",
			},
			"every_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Interval in seconds for recurring jobs (minimum 60).",
			},
			"expr": map[string]interface{}{
				"type":        "string",
				"description": "Cron expression (5 fields).",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Payload delivered when the job fires.",
			},
			"include_disabled": map[string]interface{}{
				"type":        "boolean",
				"description": "Include disabled jobs when listing.",
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

func (t *CronTool) Available() bool { return t.store != nil }

func (t *CronTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Action          string `json:"action"`
		JobID           string `json:"job_id"`
		Name            string `json:"name"`
		Kind            string `json:"kind"`
		At              string `json:"at"`
		EverySeconds    int64  `json:"every_seconds"`
		Expr            string `json:"expr"`
		Message         string `json:"message"`
		IncludeDisabled bool   `json:"include_disabled"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	action := strings.ToLower(strings.TrimSpace(input.Action))
	needsID := action == "remove" || action == "enable" || action == "disable"
	if needsID && strings.TrimSpace(input.JobID) == "" {
		return toolError("job_id is required for " + action), nil
	}

	switch action {
	case "list":
		jobs := t.store.List(input.IncludeDisabled)
		return jsonResult(map[string]interface{}{"jobs": jobs, "count": len(jobs)}), nil

	case "add":
		if strings.TrimSpace(input.Message) == "" {
			return toolError("message is required for add"), nil
		}
		schedule := cron.Schedule{Kind: cron.ScheduleKind(input.Kind)}
		switch schedule.Kind {
		case cron.KindAt:
			if input.At == "" {
				return toolError("at timestamp is required for kind at"), nil
			}
			at, err := time.Parse(time.RFC3339, input.At)
			if err != nil {
				return toolError(fmt.Sprintf("invalid at timestamp: %v", err)), nil
			}
			schedule.At = &at
		case cron.KindEvery:
			schedule.EveryMS = input.EverySeconds * 1000
		case cron.KindCron:
			schedule.Expr = input.Expr
		default:
			return toolError(fmt.Sprintf("unknown schedule kind: %s", input.Kind)), nil
		}

		job, err := t.store.Add(&cron.Job{
			Name:     input.Name,
			Schedule: schedule,
			Message:  input.Message,
			Enabled:  true,
		})
		if err != nil {
			return toolError(fmt.Sprintf("add job: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"job": job}), nil

	case "remove":
		if err := t.store.Remove(input.JobID); err != nil {
			return toolError(err.Error()), nil
		}
		return jsonResult(map[string]interface{}{"job_id": input.JobID, "status": "removed"}), nil

	case "enable", "disable":
		job, err := t.store.SetEnabled(input.JobID, action == "enable")
		if err != nil {
			return toolError(err.Error()), nil
		}
		return jsonResult(map[string]interface{}{"job": job}), nil

	default:
		return toolError("unsupported action: " + input.Action), nil
	}
}
