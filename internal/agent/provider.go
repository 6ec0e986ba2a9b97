// Package agent implements the model-tool iteration loop: prompt
// assembly, provider calls, sequential tool dispatch, and the per-session
// state machine whose transitions are published on the bus.
package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/pocketd/pkg/models"
)

// ToolDefinition is the provider-facing description of one tool.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Request is one non-streaming chat completion request.
type Request struct {
	Model       string
	System      string
	Messages    []models.Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
}

// Response is the provider's reply. ToolCalls is non-empty iff the model
// stopped to use tools.
type Response struct {
	Content    string
	ToolCalls  []models.ToolCall
	Usage      models.Usage
	StopReason models.StopReason
	Model      string
}

// Provider is a chat completion backend.
type Provider interface {
	// Name identifies the provider for logs and config.
	Name() string

	// Chat runs one completion. Implementations translate Request to
	// their wire format and normalize the reply into Response.
	Chat(ctx context.Context, req *Request) (*Response, error)
}
