// Package anthropic adapts the Anthropic Messages API to the agent
// Provider interface.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/pocketd/internal/agent"
	"github.com/haasonsaas/pocketd/pkg/models"
)

// DefaultModel is used when neither config nor request names one.
const DefaultModel = "claude-sonnet-4-20250514"

// Config holds provider settings. APIKey is required.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// Provider is the Anthropic chat backend.
type Provider struct {
	client       anthropic.Client
	defaultModel string
}

// New creates an Anthropic provider.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

// Chat runs one non-streaming completion.
func (p *Provider) Chat(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	return convertResponse(msg)
}

func convertMessages(history []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range history {
		switch msg.Role {
		case models.RoleSystem:
			// System text rides in params.System, never in the transcript.
			continue

		case models.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input := call.Arguments
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(content) == 0 {
				content = append(content, anthropic.NewTextBlock(""))
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		case models.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		default:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, media := range msg.Media {
				if block, ok := imageBlock(media); ok {
					content = append(content, block)
				}
			}
			if len(content) == 0 {
				continue
			}
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func imageBlock(media models.Media) (anthropic.ContentBlockParamUnion, bool) {
	if media.Type != models.MediaImage || len(media.Data) == 0 {
		return anthropic.ContentBlockParamUnion{}, false
	}
	mime := media.MimeType
	if mime == "" {
		mime = "image/png"
	}
	encoded := base64.StdEncoding.EncodeToString(media.Data)
	return anthropic.NewImageBlockBase64(mime, encoded), true
}

func convertTools(defs []agent.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, def := range defs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(def.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", def.Name, err)
		}
		tool := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if tool.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for %s", def.Name)
		}
		tool.OfTool.Description = anthropic.String(def.Description)
		result = append(result, tool)
	}
	return result, nil
}

func convertResponse(msg *anthropic.Message) (*agent.Response, error) {
	resp := &agent.Response{
		Model: string(msg.Model),
		Usage: models.NewUsage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)),
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			var args map[string]any
			if len(toolUse.Input) > 0 {
				if err := json.Unmarshal(toolUse.Input, &args); err != nil {
					return nil, fmt.Errorf("anthropic: tool input for %s: %w", toolUse.Name, err)
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: args,
			})
		}
	}
	resp.Content = text.String()

	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		resp.StopReason = models.StopToolUse
	case anthropic.StopReasonMaxTokens:
		resp.StopReason = models.StopMaxTokens
	case anthropic.StopReasonStopSequence:
		resp.StopReason = models.StopStopSequence
	default:
		resp.StopReason = models.StopEndTurn
	}
	return resp, nil
}
