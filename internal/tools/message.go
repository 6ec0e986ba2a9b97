package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/pocketd/internal/agent"
	"github.com/haasonsaas/pocketd/pkg/models"
)

// Publisher is the outbound side of the message bus, as seen by tools.
type Publisher interface {
	PublishOutbound(ctx context.Context, msg models.OutboundMessage) error
}

// MessageTool publishes an outbound message. Channel and chat default
// to the conversation the tool call came from.
type MessageTool struct {
	publisher Publisher
}

// NewMessageTool creates a message tool over the given publisher.
func NewMessageTool(publisher Publisher) *MessageTool {
	return &MessageTool{publisher: publisher}
}

func (t *MessageTool) Name() string { return "message" }

func (t *MessageTool) Description() string {
	return "Send a message to a chat. Defaults to the current conversation; pass channel and chat_id to reach another one."
}

func (t *MessageTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Message text to send.",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Target channel (defaults to the current one).",
			},
			"chat_id": map[string]interface{}{
				"type":        "string",
				"description": "Target chat id (defaults to the current one).",
			},
		},
		"required": []string{"content"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *MessageTool) Available() bool { return t.publisher != nil }

func (t *MessageTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Content string `json:"content"`
		Channel string `json:"channel"`
		ChatID  string `json:"chat_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Content) == "" {
		return toolError("content is required"), nil
	}

	channel, chatID := resolveTarget(ctx, input.Channel, input.ChatID)
	if channel == "" || chatID == "" {
		return toolError("no target: channel and chat_id are required outside a conversation"), nil
	}

	msg := models.OutboundMessage{
		Channel: models.ChannelType(channel),
		ChatID:  chatID,
		Content: input.Content,
	}
	if err := t.publisher.PublishOutbound(ctx, msg); err != nil {
		return toolError(fmt.Sprintf("publish message: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"status":  "sent",
		"channel": channel,
		"chat_id": chatID,
	}), nil
}

// resolveTarget fills missing channel/chat from the ambient tool
// context.
func resolveTarget(ctx context.Context, channel, chatID string) (string, string) {
	toolCtx := agent.FromContext(ctx)
	if channel == "" {
		channel = string(toolCtx.Channel)
	}
	if chatID == "" {
		chatID = toolCtx.ChatID
	}
	return strings.TrimSpace(channel), strings.TrimSpace(chatID)
}
