package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/pocketd/pkg/models"
)

// ToolResult is the outcome of one tool invocation. Content is what the
// model sees; IsError marks recoverable failures the model should react
// to rather than the turn aborting.
type ToolResult struct {
	Content string
	IsError bool
}

// Tool is a capability the model can invoke.
type Tool interface {
	// Name is the stable identifier the model calls the tool by.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema is the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	// Available reports whether the tool can run in this environment
	// (keys present, binaries installed). Unavailable tools are kept
	// registered but excluded from provider definitions.
	Available() bool

	// Execute runs the tool. Errors returned here are classified and
	// converted to error results; tools should prefer returning
	// IsError results for anything the model can recover from.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolContext is the ambient execution context tools read via FromContext:
// which conversation triggered the call and where the sandbox root is.
type ToolContext struct {
	Channel    models.ChannelType
	ChatID     string
	SessionKey string
	Workspace  string
}

type toolContextKey struct{}

// WithToolContext returns a context carrying tc.
func WithToolContext(ctx context.Context, tc ToolContext) context.Context {
	return context.WithValue(ctx, toolContextKey{}, tc)
}

// FromContext returns the ambient tool context, zero-valued when absent.
func FromContext(ctx context.Context) ToolContext {
	tc, _ := ctx.Value(toolContextKey{}).(ToolContext)
	return tc
}
