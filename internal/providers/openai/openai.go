// Package openai adapts OpenAI-compatible chat completion APIs to the
// agent Provider interface. Any endpoint speaking the OpenAI wire format
// works through BaseURL.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/pocketd/internal/agent"
	"github.com/haasonsaas/pocketd/pkg/models"
)

// DefaultModel is used when neither config nor request names one.
const DefaultModel = "gpt-4o-mini"

// Config holds provider settings. APIKey is required.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// Provider is an OpenAI-compatible chat backend.
type Provider struct {
	client       *goopenai.Client
	defaultModel string
}

// New creates an OpenAI provider.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client:       goopenai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

// Chat runs one non-streaming completion.
func (p *Provider) Chat(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		converted, err := convertMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("openai: convert message: %w", err)
		}
		messages = append(messages, converted)
	}

	chatReq := goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	for _, def := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Schema,
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty choices in response")
	}
	return convertResponse(&resp)
}

func convertMessage(msg models.Message) (goopenai.ChatCompletionMessage, error) {
	out := goopenai.ChatCompletionMessage{Content: msg.Content}
	switch msg.Role {
	case models.RoleSystem:
		out.Role = goopenai.ChatMessageRoleSystem
	case models.RoleAssistant:
		out.Role = goopenai.ChatMessageRoleAssistant
		for _, call := range msg.ToolCalls {
			args, err := json.Marshal(call.Arguments)
			if err != nil {
				return out, fmt.Errorf("encode arguments for %s: %w", call.Name, err)
			}
			out.ToolCalls = append(out.ToolCalls, goopenai.ToolCall{
				ID:   call.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      call.Name,
					Arguments: string(args),
				},
			})
		}
	case models.RoleTool:
		out.Role = goopenai.ChatMessageRoleTool
		out.ToolCallID = msg.ToolCallID
		out.Name = msg.Name
	default:
		out.Role = goopenai.ChatMessageRoleUser
	}
	return out, nil
}

func convertResponse(resp *goopenai.ChatCompletionResponse) (*agent.Response, error) {
	choice := resp.Choices[0]
	out := &agent.Response{
		Content: choice.Message.Content,
		Model:   resp.Model,
		Usage:   models.NewUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}

	for _, call := range choice.Message.ToolCalls {
		var args map[string]any
		if strings.TrimSpace(call.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("openai: tool arguments for %s: %w", call.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}

	switch choice.FinishReason {
	case goopenai.FinishReasonToolCalls:
		out.StopReason = models.StopToolUse
	case goopenai.FinishReasonLength:
		out.StopReason = models.StopMaxTokens
	default:
		out.StopReason = models.StopEndTurn
	}
	return out, nil
}
