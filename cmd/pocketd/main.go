// Package main is the pocketd CLI: a pocket-sized multi-channel AI
// assistant daemon.
//
// Start a terminal session:
//
//	pocketd run
//
// Start the full gateway with every configured channel and the
// scheduler:
//
//	pocketd gateway --config ~/.pocketd/config.yaml
//
// Manage scheduled jobs:
//
//	pocketd cron list
//	pocketd cron add --name standup --every 86400 --message "post the standup summary"
//
// Configuration can also be provided via environment variables:
//
//   - POCKETD_CONFIG: path to the configuration file
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - OPENAI_API_KEY: OpenAI API key
//   - TELEGRAM_BOT_TOKEN: Telegram bot token
//   - BRAVE_API_KEY: Brave search API key
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/pocketd/internal/config"
	"github.com/haasonsaas/pocketd/internal/cron"
	"github.com/haasonsaas/pocketd/internal/gateway"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootFlags are shared by the run and gateway commands.
type rootFlags struct {
	configPath    string
	workspace     string
	stateDir      string
	model         string
	provider      string
	maxIterations int
	heartbeat     time.Duration
	autonomous    bool
	logLevel      string
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			// Interrupted by signal; conventional exit code for SIGINT.
			os.Exit(130)
		}
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "pocketd",
		Short:        "pocketd - pocket-sized multi-channel AI assistant",
		Long:         "pocketd runs an AI agent over a message bus, reachable from the terminal and Telegram, with sandboxed file, shell, and web tools plus a cron scheduler.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildGatewayCmd(),
		buildCronCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pocketd %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func addRootFlags(cmd *cobra.Command, flags *rootFlags) {
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&flags.workspace, "workspace", "", "Agent workspace directory (overrides config)")
	cmd.Flags().StringVar(&flags.stateDir, "state-dir", "", "State directory (overrides config)")
	cmd.Flags().StringVar(&flags.model, "model", "", "Model name (overrides config)")
	cmd.Flags().StringVar(&flags.provider, "provider", "", "LLM provider: anthropic or openai (overrides config)")
	cmd.Flags().IntVar(&flags.maxIterations, "max-iterations", 0, "Tool iteration cap per turn (overrides config)")
	cmd.Flags().DurationVar(&flags.heartbeat, "heartbeat", 0, "Heartbeat interval for autonomous wake-ups (e.g. 30m)")
	cmd.Flags().BoolVar(&flags.autonomous, "autonomous", false, "Enable autonomous heartbeats (default interval 30m)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.workspace != "" {
		cfg.Workspace = flags.workspace
		if flags.stateDir == "" {
			cfg.StateDir = filepath.Join(flags.workspace, ".pocketd")
		}
	}
	if flags.stateDir != "" {
		cfg.StateDir = flags.stateDir
	}
	if flags.model != "" {
		cfg.Agent.Model = flags.model
	}
	if flags.provider != "" {
		cfg.Agent.Provider = flags.provider
	}
	if flags.maxIterations > 0 {
		cfg.Agent.MaxIterations = flags.maxIterations
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	return cfg, nil
}

func buildLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func heartbeatInterval(flags *rootFlags) time.Duration {
	if flags.heartbeat > 0 {
		return flags.heartbeat
	}
	if flags.autonomous {
		return 30 * time.Minute
	}
	return 0
}

// buildRunCmd creates the "run" command: a single-channel terminal
// session against the agent.
func buildRunCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive terminal session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := buildLogger(cfg.Logging.Level)

			gw, err := gateway.New(cfg, gateway.Options{
				Logger:    logger,
				Heartbeat: heartbeatInterval(flags),
				CLIOnly:   true,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return gw.Run(ctx)
		},
	}
	addRootFlags(cmd, flags)
	return cmd
}

// buildGatewayCmd creates the "gateway" command: every enabled channel
// plus the scheduler, for running as a daemon.
func buildGatewayCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Start the gateway with all enabled channels and the scheduler",
		Example: `  # Start with the default config
  pocketd gateway

  # Start with autonomous heartbeats every 15 minutes
  pocketd gateway --heartbeat 15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := buildLogger(cfg.Logging.Level)

			logger.Info("starting pocketd gateway",
				"version", version,
				"provider", cfg.Agent.Provider,
				"workspace", cfg.Workspace)

			gw, err := gateway.New(cfg, gateway.Options{
				Logger:    logger,
				Heartbeat: heartbeatInterval(flags),
			})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return gw.Run(ctx)
		},
	}
	addRootFlags(cmd, flags)
	return cmd
}

// buildCronCmd creates the "cron" command group for managing scheduled
// jobs without a running gateway.
func buildCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(
		buildCronListCmd(),
		buildCronAddCmd(),
		buildCronRemoveCmd(),
		buildCronEnableCmd(),
		buildCronDisableCmd(),
	)
	return cmd
}

func openJobStore(configPath string) (*cron.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cron.NewStore(cfg.JobsPath(), nil)
}

func buildCronListCmd() *cobra.Command {
	var configPath string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJobStore(configPath)
			if err != nil {
				return err
			}
			jobs := store.List(all)
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs.")
				return nil
			}
			for _, job := range jobs {
				state := "enabled"
				if !job.Enabled {
					state = "disabled"
				}
				next := "-"
				if job.NextRun != nil {
					next = job.NextRun.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%s  %-20s %-8s %-8s next=%s\n", job.ID, job.Name, job.Schedule.Kind, state, next)
				if job.LastError != "" {
					fmt.Fprintf(out, "  last error: %s\n", job.LastError)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include disabled jobs")
	return cmd
}

func buildCronAddCmd() *cobra.Command {
	var (
		configPath   string
		name         string
		message      string
		at           string
		everySeconds int64
		expr         string
		timezone     string
		channel      string
		to           string
		deliver      bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled job",
		Long: `Add a scheduled job. Exactly one of --at, --every, or --cron is required.

By default the job wakes the agent with the message as a prompt. With
--deliver the message is sent directly to --channel/--to without
involving the agent.`,
		Example: `  # One-shot reminder
  pocketd cron add --name reminder --at 2026-09-01T09:00:00Z --message "renew the domain"

  # Recurring agent prompt every hour
  pocketd cron add --name hourly --every 3600 --message "check the inbox"

  # Weekday morning direct message
  pocketd cron add --name goodmorning --cron "0 8 * * 1-5" --deliver --channel telegram --to 12345 --message "good morning"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJobStore(configPath)
			if err != nil {
				return err
			}

			schedule := cron.Schedule{Timezone: timezone}
			switch {
			case at != "":
				when, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at time: %w", err)
				}
				schedule.Kind = cron.KindAt
				schedule.At = &when
			case everySeconds > 0:
				schedule.Kind = cron.KindEvery
				schedule.EveryMS = everySeconds * 1000
			case expr != "":
				schedule.Kind = cron.KindCron
				schedule.Expr = expr
			default:
				return fmt.Errorf("one of --at, --every, or --cron is required")
			}

			job := &cron.Job{
				Name:     name,
				Schedule: schedule,
				Message:  message,
				Deliver:  deliver,
				Channel:  channel,
				To:       to,
				Enabled:  true,
			}
			added, err := store.Add(job)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job added: %s (%s)\n", added.ID, added.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&name, "name", "", "Job name")
	cmd.Flags().StringVar(&message, "message", "", "Message text (agent prompt, or direct content with --deliver)")
	cmd.Flags().StringVar(&at, "at", "", "One-shot time (RFC3339)")
	cmd.Flags().Int64Var(&everySeconds, "every", 0, "Recurring interval in seconds (minimum 60)")
	cmd.Flags().StringVar(&expr, "cron", "", "Cron expression (5 fields)")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for cron expressions")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "Deliver the message directly instead of waking the agent")
	cmd.Flags().StringVar(&channel, "channel", "", "Delivery channel (with --deliver)")
	cmd.Flags().StringVar(&to, "to", "", "Delivery chat id (with --deliver)")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func buildCronRemoveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "remove [job-id]",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJobStore(configPath)
			if err != nil {
				return err
			}
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job removed: %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildCronEnableCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "enable [job-id]",
		Short: "Enable a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJobStore(configPath)
			if err != nil {
				return err
			}
			if _, err := store.SetEnabled(args[0], true); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job enabled: %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildCronDisableCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "disable [job-id]",
		Short: "Disable a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJobStore(configPath)
			if err != nil {
				return err
			}
			if _, err := store.SetEnabled(args[0], false); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job disabled: %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
