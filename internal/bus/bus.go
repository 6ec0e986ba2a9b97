// Package bus provides the in-process coordination substrate: four bounded
// FIFO event streams with best-effort fan-out to subscribers.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/pocketd/pkg/models"
)

// Stream names one of the four event streams.
type Stream string

const (
	StreamInbound    Stream = "inbound"
	StreamOutbound   Stream = "outbound"
	StreamToolEvents Stream = "tool_events"
	StreamStateEvent Stream = "state_events"
)

// DefaultQueueSize is the default per-stream queue capacity.
const DefaultQueueSize = 128

// ValidationError reports a malformed value rejected at publish time.
type ValidationError struct {
	Stream Stream
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s message: %s", e.Stream, e.Reason)
}

// Handler receives fan-out copies of published events. Handlers run
// synchronously on the publisher's goroutine; panics are recovered and
// logged so one subscriber cannot break the publisher or its peers.
type Handler func(event any)

// Stats is a snapshot of per-stream counters.
type Stats struct {
	Published map[Stream]uint64
	Consumed  map[Stream]uint64
}

type streamCounters struct {
	published atomic.Uint64
	consumed  atomic.Uint64
}

// MessageBus coordinates inbound/outbound traffic and lifecycle events for
// a single process. Queues are bounded; publishers block when full and
// consumers block when empty. Close releases blocked parties with
// ErrShutdown.
type MessageBus struct {
	logger *slog.Logger

	inbound     chan models.InboundMessage
	outbound    chan models.OutboundMessage
	toolEvents  chan models.ToolExecution
	stateEvents chan models.StateChange

	subMu       sync.Mutex
	subscribers map[Stream][]Handler

	counters map[Stream]*streamCounters

	promPublished *prometheus.CounterVec
	promConsumed  *prometheus.CounterVec
	promSubErrors *prometheus.CounterVec
	registry      *prometheus.Registry

	closed    chan struct{}
	closeOnce sync.Once
}

// Option configures the bus.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	queueSize int
}

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithQueueSize overrides the per-stream queue capacity.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// New creates a message bus with bounded queues for all four streams.
func New(opts ...Option) *MessageBus {
	o := &options{
		logger:    slog.Default(),
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	b := &MessageBus{
		logger:      o.logger.With("component", "bus"),
		inbound:     make(chan models.InboundMessage, o.queueSize),
		outbound:    make(chan models.OutboundMessage, o.queueSize),
		toolEvents:  make(chan models.ToolExecution, o.queueSize),
		stateEvents: make(chan models.StateChange, o.queueSize),
		subscribers: make(map[Stream][]Handler),
		counters: map[Stream]*streamCounters{
			StreamInbound:    {},
			StreamOutbound:   {},
			StreamToolEvents: {},
			StreamStateEvent: {},
		},
		closed:   make(chan struct{}),
		registry: prometheus.NewRegistry(),
	}

	b.promPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pocketd",
		Subsystem: "bus",
		Name:      "published_total",
		Help:      "Events published per stream.",
	}, []string{"stream"})
	b.promConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pocketd",
		Subsystem: "bus",
		Name:      "consumed_total",
		Help:      "Events consumed per stream.",
	}, []string{"stream"})
	b.promSubErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pocketd",
		Subsystem: "bus",
		Name:      "subscriber_errors_total",
		Help:      "Subscriber handler panics per stream.",
	}, []string{"stream"})
	b.registry.MustRegister(b.promPublished, b.promConsumed, b.promSubErrors)

	return b
}

// MetricsRegistry exposes the bus's prometheus registry for scraping.
func (b *MessageBus) MetricsRegistry() *prometheus.Registry {
	return b.registry
}

// Subscribe registers a handler for a stream. Handlers see a strict
// superset of what consumers dequeue: fan-out does not consume the queue.
func (b *MessageBus) Subscribe(stream Stream, handler Handler) {
	if handler == nil {
		return
	}
	b.subMu.Lock()
	b.subscribers[stream] = append(b.subscribers[stream], handler)
	b.subMu.Unlock()
}

func (b *MessageBus) fanOut(stream Stream, event any) {
	b.subMu.Lock()
	handlers := make([]Handler, len(b.subscribers[stream]))
	copy(handlers, b.subscribers[stream])
	b.subMu.Unlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.promSubErrors.WithLabelValues(string(stream)).Inc()
					b.logger.Error("subscriber panicked", "stream", stream, "panic", r)
				}
			}()
			handler(event)
		}()
	}
}

func (b *MessageBus) published(stream Stream) {
	b.counters[stream].published.Add(1)
	b.promPublished.WithLabelValues(string(stream)).Inc()
}

func (b *MessageBus) consumed(stream Stream) {
	b.counters[stream].consumed.Add(1)
	b.promConsumed.WithLabelValues(string(stream)).Inc()
}

// PublishInbound enqueues an inbound message, blocking while the queue is
// full. Returns a ValidationError for malformed messages and ErrShutdown
// after Close.
func (b *MessageBus) PublishInbound(ctx context.Context, msg models.InboundMessage) error {
	if msg.Channel == "" {
		return &ValidationError{Stream: StreamInbound, Reason: "channel is required"}
	}
	if msg.SenderID == "" {
		return &ValidationError{Stream: StreamInbound, Reason: "sender_id is required"}
	}
	if msg.ChatID == "" {
		return &ValidationError{Stream: StreamInbound, Reason: "chat_id is required"}
	}
	select {
	case <-b.closed:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	case b.inbound <- msg:
		b.published(StreamInbound)
		b.fanOut(StreamInbound, msg)
		return nil
	}
}

// ConsumeInbound dequeues the next inbound message, blocking while the
// queue is empty. Returns ErrShutdown once the bus is closed and drained.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (models.InboundMessage, error) {
	select {
	case msg := <-b.inbound:
		b.consumed(StreamInbound)
		return msg, nil
	default:
	}
	select {
	case msg := <-b.inbound:
		b.consumed(StreamInbound)
		return msg, nil
	case <-b.closed:
		select {
		case msg := <-b.inbound:
			b.consumed(StreamInbound)
			return msg, nil
		default:
			return models.InboundMessage{}, ErrShutdown
		}
	case <-ctx.Done():
		return models.InboundMessage{}, ctx.Err()
	}
}

// PublishOutbound enqueues an outbound message for channel delivery.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg models.OutboundMessage) error {
	if msg.Channel == "" {
		return &ValidationError{Stream: StreamOutbound, Reason: "channel is required"}
	}
	if msg.ChatID == "" {
		return &ValidationError{Stream: StreamOutbound, Reason: "chat_id is required"}
	}
	select {
	case <-b.closed:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	case b.outbound <- msg:
		b.published(StreamOutbound)
		b.fanOut(StreamOutbound, msg)
		return nil
	}
}

// ConsumeOutbound dequeues the next outbound message.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (models.OutboundMessage, error) {
	select {
	case msg := <-b.outbound:
		b.consumed(StreamOutbound)
		return msg, nil
	default:
	}
	select {
	case msg := <-b.outbound:
		b.consumed(StreamOutbound)
		return msg, nil
	case <-b.closed:
		select {
		case msg := <-b.outbound:
			b.consumed(StreamOutbound)
			return msg, nil
		default:
			return models.OutboundMessage{}, ErrShutdown
		}
	case <-ctx.Done():
		return models.OutboundMessage{}, ctx.Err()
	}
}

// PublishToolExecution enqueues a tool execution event.
func (b *MessageBus) PublishToolExecution(ctx context.Context, event models.ToolExecution) error {
	if event.Name == "" {
		return &ValidationError{Stream: StreamToolEvents, Reason: "name is required"}
	}
	select {
	case <-b.closed:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	case b.toolEvents <- event:
		b.published(StreamToolEvents)
		b.fanOut(StreamToolEvents, event)
		return nil
	}
}

// ConsumeToolExecution dequeues the next tool execution event.
func (b *MessageBus) ConsumeToolExecution(ctx context.Context) (models.ToolExecution, error) {
	select {
	case event := <-b.toolEvents:
		b.consumed(StreamToolEvents)
		return event, nil
	default:
	}
	select {
	case event := <-b.toolEvents:
		b.consumed(StreamToolEvents)
		return event, nil
	case <-b.closed:
		select {
		case event := <-b.toolEvents:
			b.consumed(StreamToolEvents)
			return event, nil
		default:
			return models.ToolExecution{}, ErrShutdown
		}
	case <-ctx.Done():
		return models.ToolExecution{}, ctx.Err()
	}
}

// PublishStateChange enqueues an agent state transition event.
func (b *MessageBus) PublishStateChange(ctx context.Context, event models.StateChange) error {
	if event.From == event.To {
		return &ValidationError{Stream: StreamStateEvent, Reason: "from and to states are equal"}
	}
	select {
	case <-b.closed:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	case b.stateEvents <- event:
		b.published(StreamStateEvent)
		b.fanOut(StreamStateEvent, event)
		return nil
	}
}

// ConsumeStateChange dequeues the next state change event.
func (b *MessageBus) ConsumeStateChange(ctx context.Context) (models.StateChange, error) {
	select {
	case event := <-b.stateEvents:
		b.consumed(StreamStateEvent)
		return event, nil
	default:
	}
	select {
	case event := <-b.stateEvents:
		b.consumed(StreamStateEvent)
		return event, nil
	case <-b.closed:
		select {
		case event := <-b.stateEvents:
			b.consumed(StreamStateEvent)
			return event, nil
		default:
			return models.StateChange{}, ErrShutdown
		}
	case <-ctx.Done():
		return models.StateChange{}, ctx.Err()
	}
}

// Stats returns a snapshot of the monotonic per-stream counters.
func (b *MessageBus) Stats() Stats {
	stats := Stats{
		Published: make(map[Stream]uint64, len(b.counters)),
		Consumed:  make(map[Stream]uint64, len(b.counters)),
	}
	for stream, c := range b.counters {
		stats.Published[stream] = c.published.Load()
		stats.Consumed[stream] = c.consumed.Load()
	}
	return stats
}

// Reset drains all queues and zeroes the counters. Test harnesses only.
func (b *MessageBus) Reset() {
	for {
		select {
		case <-b.inbound:
		case <-b.outbound:
		case <-b.toolEvents:
		case <-b.stateEvents:
		default:
			for _, c := range b.counters {
				c.published.Store(0)
				c.consumed.Store(0)
			}
			return
		}
	}
}

// Close shuts the bus down. Blocked publishers and consumers exit with
// ErrShutdown; consumers drain already-queued events first.
func (b *MessageBus) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
}

// Closed reports whether the bus has been shut down.
func (b *MessageBus) Closed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}
