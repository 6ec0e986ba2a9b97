// Package gateway is the application root: it wires the bus, session
// store, memory, tool registry, provider, agent loop, scheduler, and
// channel adapters into one running process.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/pocketd/internal/agent"
	"github.com/haasonsaas/pocketd/internal/bus"
	"github.com/haasonsaas/pocketd/internal/channels"
	clichannel "github.com/haasonsaas/pocketd/internal/channels/cli"
	"github.com/haasonsaas/pocketd/internal/channels/telegram"
	"github.com/haasonsaas/pocketd/internal/config"
	"github.com/haasonsaas/pocketd/internal/cron"
	"github.com/haasonsaas/pocketd/internal/memory"
	anthropicprovider "github.com/haasonsaas/pocketd/internal/providers/anthropic"
	openaiprovider "github.com/haasonsaas/pocketd/internal/providers/openai"
	"github.com/haasonsaas/pocketd/internal/sessions"
	"github.com/haasonsaas/pocketd/internal/tools"
	"github.com/haasonsaas/pocketd/internal/tools/files"
	"github.com/haasonsaas/pocketd/internal/tools/shell"
	"github.com/haasonsaas/pocketd/internal/tools/web"
	"github.com/haasonsaas/pocketd/pkg/models"
)

// Options tune gateway construction beyond the config file.
type Options struct {
	// Logger is the process logger. Defaults to slog.Default().
	Logger *slog.Logger

	// Heartbeat, when positive, injects a synthetic inbound message on
	// this interval so the agent can act without being spoken to.
	Heartbeat time.Duration

	// CLIOnly restricts the channel set to the terminal regardless of
	// config, for the `run` command.
	CLIOnly bool
}

// Gateway owns the process-wide state and lifecycle.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger

	bus       *bus.MessageBus
	store     *sessions.FileStore
	memory    *memory.FileMemory
	registry  *agent.Registry
	loop      *agent.Loop
	scheduler *cron.Scheduler
	channels  *channels.Registry
	jobs      *shell.JobStore
	heartbeat time.Duration

	wg sync.WaitGroup
}

// New builds a fully wired gateway from config.
func New(cfg *config.Config, opts Options) (*Gateway, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := bus.New(bus.WithLogger(logger))

	store, err := sessions.NewFileStore(cfg.SessionsDir(), sessions.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	mem, err := memory.NewFileMemory(cfg.MemoryPath(), memory.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}

	jobStore, err := cron.NewStore(cfg.JobsPath(), nil)
	if err != nil {
		return nil, fmt.Errorf("job store: %w", err)
	}
	scheduler := cron.NewScheduler(jobStore, b, cron.WithLogger(logger))

	registry := agent.NewRegistry(
		agent.WithRegistryLogger(logger),
		agent.WithEventPublisher(b),
	)
	backgroundJobs := shell.NewJobStore(cfg.Workspace, logger)
	if err := registerDefaultTools(registry, cfg, b, mem, jobStore, backgroundJobs, logger); err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	loop, err := agent.NewLoop(b, store, registry, provider,
		agent.WithLoopLogger(logger),
		agent.WithModel(cfg.Agent.Model),
		agent.WithSystemPrompt(cfg.Agent.SystemPrompt),
		agent.WithWorkspace(cfg.Workspace),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithHistoryWindow(cfg.Agent.HistoryWindow),
		agent.WithMaxTokens(cfg.Agent.MaxTokens),
		agent.WithTemperature(cfg.Agent.Temperature),
		agent.WithMemory(mem),
	)
	if err != nil {
		return nil, fmt.Errorf("agent loop: %w", err)
	}

	channelRegistry := channels.NewRegistry()
	if cfg.Channels.CLI.Enabled || opts.CLIOnly {
		channelRegistry.Register(clichannel.New(b, clichannel.WithLogger(logger)))
	}
	if cfg.Channels.Telegram.Enabled && !opts.CLIOnly {
		adapter, err := telegram.New(telegram.Config{
			Token:     cfg.Channels.Telegram.BotToken,
			Workspace: cfg.Workspace,
			Logger:    logger,
		}, b)
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		channelRegistry.Register(adapter)
	}
	if len(channelRegistry.Names()) == 0 {
		return nil, fmt.Errorf("no channels enabled")
	}

	return &Gateway{
		cfg:       cfg,
		logger:    logger.With("component", "gateway"),
		bus:       b,
		store:     store,
		memory:    mem,
		registry:  registry,
		loop:      loop,
		scheduler: scheduler,
		channels:  channelRegistry,
		jobs:      backgroundJobs,
		heartbeat: opts.Heartbeat,
	}, nil
}

func buildProvider(cfg *config.Config) (agent.Provider, error) {
	switch cfg.Agent.Provider {
	case "anthropic":
		return anthropicprovider.New(anthropicprovider.Config{
			APIKey:       cfg.Providers.Anthropic.APIKey,
			BaseURL:      cfg.Providers.Anthropic.BaseURL,
			DefaultModel: cfg.Providers.Anthropic.DefaultModel,
		})
	case "openai":
		return openaiprovider.New(openaiprovider.Config{
			APIKey:       cfg.Providers.OpenAI.APIKey,
			BaseURL:      cfg.Providers.OpenAI.BaseURL,
			DefaultModel: cfg.Providers.OpenAI.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Agent.Provider)
	}
}

func registerDefaultTools(registry *agent.Registry, cfg *config.Config, b *bus.MessageBus, mem *memory.FileMemory, jobStore *cron.Store, backgroundJobs *shell.JobStore, logger *slog.Logger) error {
	fileCfg := files.Config{Workspace: cfg.Workspace}
	webCfg := web.Config{BraveAPIKey: cfg.Tools.BraveAPIKey}

	set := []agent.Tool{
		files.NewReadTool(fileCfg),
		files.NewWriteTool(fileCfg),
		files.NewEditTool(fileCfg),
		files.NewListTool(fileCfg),
		shell.NewExecTool(cfg.Workspace, backgroundJobs, logger),
		shell.NewJobsTool(backgroundJobs),
		web.NewSearchTool(webCfg),
		web.NewFetchTool(webCfg),
		tools.NewThinkTool(logger),
		tools.NewMessageTool(b),
		tools.NewSendFileTool(b, cfg.Workspace),
		tools.NewMemoryTool(mem),
		tools.NewCronTool(jobStore),
	}
	for _, tool := range set {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("register tool %s: %w", tool.Name(), err)
		}
	}
	return nil
}

// Run starts everything and blocks until ctx is canceled, then shuts
// down in order: scheduler and channels stop producing, the bus closes,
// and in-flight turns drain.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.channels.StartAll(ctx); err != nil {
		return err
	}
	g.scheduler.Start()

	g.wg.Add(1)
	go g.dispatchOutbound(ctx)
	g.wg.Add(1)
	go g.drainToolEvents(ctx)
	g.wg.Add(1)
	go g.drainStateEvents(ctx)
	if g.heartbeat > 0 {
		g.wg.Add(1)
		go g.runHeartbeat(ctx)
	}

	g.wg.Add(1)
	loopErr := make(chan error, 1)
	go func() {
		defer g.wg.Done()
		loopErr <- g.loop.Run(ctx)
	}()

	g.logger.Info("gateway running",
		"channels", g.channels.Names(),
		"workspace", g.cfg.Workspace)

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-loopErr:
	}

	g.shutdown()
	return err
}

func (g *Gateway) shutdown() {
	g.logger.Info("shutting down")
	g.scheduler.Stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.channels.StopAll(stopCtx); err != nil {
		g.logger.Warn("channel shutdown", "error", err)
	}

	g.bus.Close()
	g.loop.Wait()
	g.jobs.Close()
	g.wg.Wait()
	g.logger.Info("shutdown complete")
}

// dispatchOutbound routes outbound messages to their channel adapter.
func (g *Gateway) dispatchOutbound(ctx context.Context) {
	defer g.wg.Done()
	for {
		msg, err := g.bus.ConsumeOutbound(ctx)
		if err != nil {
			return
		}
		adapter, ok := g.channels.Get(msg.Channel)
		if !ok {
			// Cron-addressed replies have no adapter; log and move on.
			g.logger.Debug("outbound for unregistered channel",
				"channel", msg.Channel, "chat", msg.ChatID, "content", msg.Content)
			continue
		}
		if err := adapter.Send(ctx, msg); err != nil {
			g.logger.Error("outbound delivery failed",
				"channel", msg.Channel, "chat", msg.ChatID, "error", err)
		}
	}
}

func (g *Gateway) drainToolEvents(ctx context.Context) {
	defer g.wg.Done()
	for {
		event, err := g.bus.ConsumeToolExecution(ctx)
		if err != nil {
			return
		}
		if event.Error != "" {
			g.logger.Debug("tool failed", "tool", event.Name, "error", event.Error, "duration", event.Duration)
		} else {
			g.logger.Debug("tool executed", "tool", event.Name, "duration", event.Duration)
		}
	}
}

func (g *Gateway) drainStateEvents(ctx context.Context) {
	defer g.wg.Done()
	for {
		event, err := g.bus.ConsumeStateChange(ctx)
		if err != nil {
			return
		}
		g.logger.Debug("agent state", "session", event.SessionKey, "from", event.From, "to", event.To)
	}
}

// runHeartbeat periodically wakes the agent with a synthetic message so
// it can check on scheduled work, memory, and anything it left pending.
func (g *Gateway) runHeartbeat(ctx context.Context) {
	defer g.wg.Done()
	ticker := time.NewTicker(g.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := models.InboundMessage{
				Channel:  models.ChannelCron,
				SenderID: "heartbeat",
				ChatID:   "heartbeat",
				Content:  "Heartbeat: review pending work and act if anything needs attention. Reply briefly.",
			}
			if err := g.bus.PublishInbound(ctx, msg); err != nil {
				if bus.IsShutdown(err) {
					return
				}
				g.logger.Warn("heartbeat publish failed", "error", err)
			}
		}
	}
}
