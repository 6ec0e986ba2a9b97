package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/pocketd/pkg/models"
)

// MaxToolParamsSize bounds tool argument JSON (10 MiB).
const MaxToolParamsSize = 10 << 20

// ToolEventPublisher receives one ToolExecution per tool invocation.
type ToolEventPublisher interface {
	PublishToolExecution(ctx context.Context, event models.ToolExecution) error
}

// Registry holds the tools exposed to the model. Registration compiles
// and caches each tool's parameter schema; Execute validates arguments
// against it before dispatch.
type Registry struct {
	logger *slog.Logger
	events ToolEventPublisher

	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema

	toolCtx atomic.Pointer[ToolContext]
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger.With("component", "tools")
		}
	}
}

// WithEventPublisher routes per-invocation ToolExecution events to the bus.
func WithEventPublisher(events ToolEventPublisher) RegistryOption {
	return func(r *Registry) {
		r.events = events
	}
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:  slog.Default().With("component", "tools"),
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.toolCtx.Store(&ToolContext{})
	return r
}

// Register adds a tool, replacing any tool with the same name. The
// tool's schema must compile as JSON Schema.
func (r *Registry) Register(tool Tool) error {
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return fmt.Errorf("register tool: name is required")
	}
	schema, err := compileSchema(name, tool.Schema())
	if err != nil {
		return fmt.Errorf("register tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		r.logger.Debug("replacing registered tool", "tool", name)
	}
	r.tools[name] = tool
	r.schemas[name] = schema
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	compiler := jsonschema.NewCompiler()
	url := "tool://" + name + "/schema.json"
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Exists reports whether a tool is registered.
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns provider-facing tool definitions sorted by name.
// With filterUnavailable set, tools reporting Available() == false are
// omitted so the model never sees tools it cannot call.
func (r *Registry) Definitions(filterUnavailable bool) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		if filterUnavailable && !tool.Available() {
			continue
		}
		defs = append(defs, ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// UpdateContext atomically replaces the ambient tool context. In-flight
// executions keep the context they started with.
func (r *Registry) UpdateContext(tc ToolContext) {
	copy := tc
	r.toolCtx.Store(&copy)
}

// Context returns the current ambient tool context.
func (r *Registry) Context() ToolContext {
	return *r.toolCtx.Load()
}

// Execute runs one model-requested tool call. Failures are returned as
// error results carrying the classification, never as hard errors, so
// the model can observe and recover. Every invocation emits exactly one
// ToolExecution event.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) *ToolResult {
	start := time.Now()
	result := r.execute(ctx, call)
	r.emit(ctx, call, result, time.Since(start))
	return result
}

func (r *Registry) execute(ctx context.Context, call models.ToolCall) *ToolResult {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	schema := r.schemas[call.Name]
	r.mu.RUnlock()

	if !ok {
		return errorResult(ToolErrorNotFound, "tool not found: "+call.Name)
	}
	if !tool.Available() {
		return errorResult(ToolErrorUnavailable, "tool unavailable: "+call.Name)
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	params, err := json.Marshal(args)
	if err != nil {
		return errorResult(ToolErrorInvalidInput, fmt.Sprintf("encode arguments: %v", err))
	}
	if len(params) > MaxToolParamsSize {
		return errorResult(ToolErrorInvalidInput, fmt.Sprintf("arguments exceed %d bytes", MaxToolParamsSize))
	}
	if schema != nil {
		var decoded any
		if err := json.Unmarshal(params, &decoded); err != nil {
			return errorResult(ToolErrorInvalidInput, fmt.Sprintf("decode arguments: %v", err))
		}
		if err := schema.Validate(decoded); err != nil {
			return errorResult(ToolErrorInvalidInput, fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	execCtx := WithToolContext(ctx, r.Context())

	result, err := func() (result *ToolResult, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("tool panicked", "tool", call.Name, "panic", rec)
				result = errorResult(ToolErrorExecution, fmt.Sprintf("tool panicked: %v", rec))
				err = nil
			}
		}()
		return tool.Execute(execCtx, params)
	}()
	if err != nil {
		kind := ToolErrorExecution
		if toolErr, ok := AsToolError(err); ok {
			kind = toolErr.Type
		} else if ctx.Err() != nil {
			kind = ToolErrorTimeout
		}
		return errorResult(kind, err.Error())
	}
	if result == nil {
		return errorResult(ToolErrorExecution, "tool returned no result")
	}
	return result
}

func (r *Registry) emit(ctx context.Context, call models.ToolCall, result *ToolResult, elapsed time.Duration) {
	if r.events == nil {
		return
	}
	event := models.ToolExecution{
		ToolCallID: call.ID,
		Name:       call.Name,
		Arguments:  call.Arguments,
		Duration:   elapsed,
	}
	if result.IsError {
		event.Error = result.Content
	} else {
		event.Result = result.Content
	}
	if err := r.events.PublishToolExecution(ctx, event); err != nil {
		r.logger.Warn("tool event publish failed", "tool", call.Name, "error", err)
	}
}

func errorResult(kind ToolErrorType, message string) *ToolResult {
	payload, err := json.Marshal(map[string]string{
		"error": message,
		"type":  string(kind),
	})
	if err != nil {
		return &ToolResult{Content: message, IsError: true}
	}
	return &ToolResult{Content: string(payload), IsError: true}
}
