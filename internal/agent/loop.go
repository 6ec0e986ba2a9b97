package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/pocketd/internal/bus"
	"github.com/haasonsaas/pocketd/internal/retry"
	"github.com/haasonsaas/pocketd/internal/sessions"
	"github.com/haasonsaas/pocketd/pkg/models"
)

// Loop defaults.
const (
	DefaultMaxIterations = 10
	DefaultHistoryWindow = 50
	DefaultMaxTokens     = 4096
)

// MemoryProvider supplies long-term context for the system prompt.
type MemoryProvider interface {
	RelevantContext(ctx context.Context, query string) (string, error)
}

// Loop consumes inbound messages and drives each through the state
// machine: build prompt, call the provider, execute requested tools,
// repeat until the model stops or the iteration cap fires, then publish
// exactly one outbound reply.
type Loop struct {
	logger   *slog.Logger
	bus      *bus.MessageBus
	store    sessions.Store
	registry *Registry
	provider Provider
	memory   MemoryProvider

	model         string
	systemPrompt  string
	workspace     string
	maxIterations int
	historyWindow int
	maxTokens     int
	temperature   float64
	retryCfg      retry.Config
	now           func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sessionLock
	wg      sync.WaitGroup
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the loop logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger.With("component", "agent")
		}
	}
}

// WithModel sets the provider model identifier.
func WithModel(model string) LoopOption {
	return func(l *Loop) { l.model = model }
}

// WithSystemPrompt sets the base persona text.
func WithSystemPrompt(prompt string) LoopOption {
	return func(l *Loop) { l.systemPrompt = prompt }
}

// WithWorkspace sets the sandbox root advertised in the system prompt
// and bound into the tool context.
func WithWorkspace(dir string) LoopOption {
	return func(l *Loop) { l.workspace = dir }
}

// WithMaxIterations overrides the model-tool iteration cap.
func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithHistoryWindow overrides how many history messages feed the prompt.
func WithHistoryWindow(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.historyWindow = n
		}
	}
}

// WithMaxTokens sets the completion token budget.
func WithMaxTokens(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) LoopOption {
	return func(l *Loop) { l.temperature = t }
}

// WithMemory attaches a long-term memory collaborator.
func WithMemory(memory MemoryProvider) LoopOption {
	return func(l *Loop) { l.memory = memory }
}

// WithRetryConfig overrides the provider retry policy.
func WithRetryConfig(cfg retry.Config) LoopOption {
	return func(l *Loop) { l.retryCfg = cfg }
}

// WithNow injects a clock for tests.
func WithNow(now func() time.Time) LoopOption {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLoop wires the agent loop. The provider is required.
func NewLoop(b *bus.MessageBus, store sessions.Store, registry *Registry, provider Provider, opts ...LoopOption) (*Loop, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	l := &Loop{
		logger:        slog.Default().With("component", "agent"),
		bus:           b,
		store:         store,
		registry:      registry,
		provider:      provider,
		maxIterations: DefaultMaxIterations,
		historyWindow: DefaultHistoryWindow,
		maxTokens:     DefaultMaxTokens,
		retryCfg:      retry.Exponential(3, 500*time.Millisecond, 8*time.Second),
		now:           time.Now,
		locks:         make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run consumes inbound messages until the bus shuts down or ctx ends.
// Messages for different sessions run concurrently; a per-session lock
// keeps turns within one conversation strictly ordered.
func (l *Loop) Run(ctx context.Context) error {
	defer l.wg.Wait()
	for {
		msg, err := l.bus.ConsumeInbound(ctx)
		if err != nil {
			if bus.IsShutdown(err) {
				return nil
			}
			return err
		}
		l.wg.Add(1)
		go func(msg models.InboundMessage) {
			defer l.wg.Done()
			l.Process(ctx, msg)
		}(msg)
	}
}

func (l *Loop) lockSession(key string) func() {
	l.locksMu.Lock()
	lock := l.locks[key]
	if lock == nil {
		lock = &sessionLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.locksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(l.locks, key)
		}
		l.locksMu.Unlock()
	}
}

// Process runs one full turn for an inbound message.
func (l *Loop) Process(ctx context.Context, msg models.InboundMessage) {
	key := msg.SessionKey()
	unlock := l.lockSession(key)
	defer unlock()

	l.registry.UpdateContext(ToolContext{
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		SessionKey: key,
		Workspace:  l.workspace,
	})

	l.transition(ctx, key, models.StateIdle, models.StateBuilding, "inbound message")

	session, err := l.store.GetOrCreate(ctx, key)
	if err != nil {
		l.fail(ctx, msg, key, models.StateBuilding, fmt.Sprintf("load session: %v", err))
		return
	}

	userMsg := models.Message{Role: models.RoleUser, Content: msg.Content, Media: msg.Media}
	if err := l.store.AppendMessage(ctx, key, stripInlineMedia(userMsg)); err != nil {
		l.fail(ctx, msg, key, models.StateBuilding, fmt.Sprintf("persist user message: %v", err))
		return
	}

	history := windowMessages(session.Messages, l.historyWindow-1)
	history = append(history, userMsg)

	system := l.buildSystemPrompt(ctx, msg)
	tools := l.registry.Definitions(true)

	var totalUsage models.Usage
	state := models.StateBuilding
	final := ""

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		l.transition(ctx, key, state, models.StateAwaitingModel, fmt.Sprintf("iteration %d", iteration))
		state = models.StateAwaitingModel

		req := &Request{
			Model:       l.model,
			System:      system,
			Messages:    history,
			Tools:       tools,
			MaxTokens:   l.maxTokens,
			Temperature: l.temperature,
		}
		resp, result := retry.DoValue(ctx, l.retryCfg, func() (*Response, error) {
			resp, err := l.provider.Chat(ctx, req)
			if err != nil && !classifyProviderError(err) {
				return nil, retry.Permanent(err)
			}
			return resp, err
		})
		if result.Err != nil {
			l.logger.Error("provider call failed", "session", key,
				"provider", l.provider.Name(), "attempts", result.Attempts, "error", result.Err)
			l.fail(ctx, msg, key, state, fmt.Sprintf("model call failed: %v", result.Err))
			return
		}
		totalUsage.Add(resp.Usage)

		assistant := models.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		if err := l.store.AppendMessage(ctx, key, assistant); err != nil {
			l.fail(ctx, msg, key, state, fmt.Sprintf("persist assistant message: %v", err))
			return
		}
		history = append(history, assistant)

		if len(resp.ToolCalls) == 0 {
			final = resp.Content
			break
		}

		l.transition(ctx, key, state, models.StateExecutingTools,
			fmt.Sprintf("%d tool calls", len(resp.ToolCalls)))
		state = models.StateExecutingTools

		for _, call := range resp.ToolCalls {
			toolResult := l.registry.Execute(ctx, call)
			toolMsg := models.Message{
				Role:       models.RoleTool,
				Content:    toolResult.Content,
				Name:       call.Name,
				ToolCallID: call.ID,
			}
			if err := l.store.AppendMessage(ctx, key, toolMsg); err != nil {
				l.fail(ctx, msg, key, state, fmt.Sprintf("persist tool result: %v", err))
				return
			}
			history = append(history, toolMsg)
		}

		if iteration == l.maxIterations {
			notice := fmt.Sprintf("Reached the tool iteration limit (%d); stopping here.", l.maxIterations)
			final = strings.TrimSpace(strings.TrimSpace(resp.Content) + "\n\n" + notice)
			l.logger.Warn("iteration cap reached", "session", key, "cap", l.maxIterations)
			break
		}

		l.transition(ctx, key, state, models.StateBuilding, "tool results ready")
		state = models.StateBuilding
	}

	l.transition(ctx, key, state, models.StatePublishing, "response ready")
	out := models.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: final,
	}
	if err := l.bus.PublishOutbound(ctx, out); err != nil {
		if !bus.IsShutdown(err) {
			l.logger.Error("publish outbound failed", "session", key, "error", err)
			l.transition(ctx, key, models.StatePublishing, models.StateFailed,
				fmt.Sprintf("publish outbound: %v", err))
			l.transition(ctx, key, models.StateFailed, models.StateIdle, "recovered")
		}
		return
	}
	l.transition(ctx, key, models.StatePublishing, models.StateIdle, "turn complete")

	l.logger.Info("turn complete", "session", key,
		"input_tokens", totalUsage.InputTokens, "output_tokens", totalUsage.OutputTokens)
}

// fail publishes the failure transition and a single apologetic outbound
// so the user is never left without a reply.
func (l *Loop) fail(ctx context.Context, msg models.InboundMessage, key string, from models.AgentState, reason string) {
	l.transition(ctx, key, from, models.StateFailed, reason)
	out := models.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: "Something went wrong handling that message: " + reason,
	}
	if err := l.bus.PublishOutbound(ctx, out); err != nil && !bus.IsShutdown(err) {
		l.logger.Error("publish failure notice failed", "session", key, "error", err)
	}
	l.transition(ctx, key, models.StateFailed, models.StateIdle, "recovered")
}

func (l *Loop) transition(ctx context.Context, key string, from, to models.AgentState, reason string) {
	event := models.StateChange{SessionKey: key, From: from, To: to, Reason: reason}
	if err := l.bus.PublishStateChange(ctx, event); err != nil && !bus.IsShutdown(err) {
		l.logger.Debug("state change publish failed", "session", key, "error", err)
	}
}

func (l *Loop) buildSystemPrompt(ctx context.Context, msg models.InboundMessage) string {
	var b strings.Builder
	if l.systemPrompt != "" {
		b.WriteString(l.systemPrompt)
	} else {
		b.WriteString("You are a helpful personal assistant. Use the available tools when they help; answer directly when they do not.")
	}
	b.WriteString("\n\nCurrent time: ")
	b.WriteString(l.now().Format(time.RFC1123))
	if l.workspace != "" {
		b.WriteString("\nWorkspace: ")
		b.WriteString(l.workspace)
	}
	if l.memory != nil {
		memCtx, err := l.memory.RelevantContext(ctx, msg.Content)
		if err != nil {
			l.logger.Warn("memory context lookup failed", "error", err)
		} else if memCtx != "" {
			b.WriteString("\n\nRelevant memory:\n")
			b.WriteString(memCtx)
		}
	}
	return b.String()
}

// stripInlineMedia drops raw attachment bytes before persistence; the
// on-disk history keeps paths and metadata only.
func stripInlineMedia(msg models.Message) models.Message {
	if len(msg.Media) == 0 {
		return msg
	}
	media := make([]models.Media, len(msg.Media))
	for i, m := range msg.Media {
		m.Data = nil
		media[i] = m
	}
	msg.Media = media
	return msg
}

func windowMessages(msgs []models.Message, limit int) []models.Message {
	if limit <= 0 {
		limit = 0
	}
	if len(msgs) <= limit {
		out := make([]models.Message, len(msgs))
		copy(out, msgs)
		return out
	}
	out := make([]models.Message, limit)
	copy(out, msgs[len(msgs)-limit:])
	return out
}

// Wait blocks until all in-flight turns finish. Used by shutdown after
// the bus is closed.
func (l *Loop) Wait() {
	l.wg.Wait()
}
