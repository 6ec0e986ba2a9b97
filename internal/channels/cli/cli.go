// Package cli is the terminal channel: a line-oriented REPL on
// stdin/stdout.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/haasonsaas/pocketd/internal/channels"
	"github.com/haasonsaas/pocketd/pkg/models"
)

// ChatID is the single conversation the terminal maps to.
const ChatID = "local"

// Adapter reads user lines from input and prints replies to output.
type Adapter struct {
	publisher channels.InboundPublisher
	logger    *slog.Logger
	input     io.Reader
	output    io.Writer

	cancel context.CancelFunc
	wg     sync.WaitGroup

	outMu sync.Mutex
}

// Option configures the adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger.With("component", "cli")
		}
	}
}

// WithStreams overrides stdin/stdout, for tests.
func WithStreams(input io.Reader, output io.Writer) Option {
	return func(a *Adapter) {
		if input != nil {
			a.input = input
		}
		if output != nil {
			a.output = output
		}
	}
}

// New creates a terminal adapter publishing to the given bus.
func New(publisher channels.InboundPublisher, opts ...Option) *Adapter {
	a := &Adapter{
		publisher: publisher,
		logger:    slog.Default().With("component", "cli"),
		input:     os.Stdin,
		output:    os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() models.ChannelType { return models.ChannelCLI }

// Start launches the read loop. It returns immediately; the loop ends
// on EOF or Stop.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.readLoop(ctx)
	return nil
}

func (a *Adapter) readLoop(ctx context.Context) {
	defer a.wg.Done()
	scanner := bufio.NewScanner(a.input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	a.print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			a.print("> ")
			continue
		}
		msg := models.InboundMessage{
			Channel:  models.ChannelCLI,
			SenderID: "local",
			ChatID:   ChatID,
			Content:  line,
		}
		if err := a.publisher.PublishInbound(ctx, msg); err != nil {
			a.logger.Error("publish inbound failed", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		a.logger.Error("stdin read failed", "error", err)
	}
}

// Send prints an outbound message to the terminal.
func (a *Adapter) Send(ctx context.Context, msg models.OutboundMessage) error {
	_ = ctx
	a.outMu.Lock()
	defer a.outMu.Unlock()
	if msg.Content != "" {
		fmt.Fprintf(a.output, "\n%s\n", msg.Content)
	}
	for _, media := range msg.Media {
		fmt.Fprintf(a.output, "[attachment: %s]\n", media.Path)
	}
	fmt.Fprint(a.output, "> ")
	return nil
}

func (a *Adapter) print(s string) {
	a.outMu.Lock()
	fmt.Fprint(a.output, s)
	a.outMu.Unlock()
}

// Stop cancels the read loop. A blocked stdin read ends at the next
// line or EOF; Stop does not wait for it.
func (a *Adapter) Stop(ctx context.Context) error {
	_ = ctx
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}
