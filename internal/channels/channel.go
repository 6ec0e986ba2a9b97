// Package channels defines the adapter contract between the outside
// world and the bus, plus a registry the gateway dispatches through.
package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/pocketd/pkg/models"
)

// Channel is one messaging surface. Start begins receiving and
// publishing inbound messages; Send delivers one outbound message;
// Stop shuts the adapter down.
type Channel interface {
	Name() models.ChannelType
	Start(ctx context.Context) error
	Send(ctx context.Context, msg models.OutboundMessage) error
	Stop(ctx context.Context) error
}

// InboundPublisher is the bus surface adapters publish through.
type InboundPublisher interface {
	PublishInbound(ctx context.Context, msg models.InboundMessage) error
}

// Registry holds the live channel adapters keyed by channel tag.
type Registry struct {
	mu       sync.RWMutex
	channels map[models.ChannelType]Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[models.ChannelType]Channel)}
}

// Register adds a channel, replacing any previous adapter with the
// same name.
func (r *Registry) Register(ch Channel) {
	if ch == nil {
		return
	}
	r.mu.Lock()
	r.channels[ch.Name()] = ch
	r.mu.Unlock()
}

// Get returns the adapter for a channel tag.
func (r *Registry) Get(name models.ChannelType) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Names returns the registered channel tags, sorted.
func (r *Registry) Names() []models.ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]models.ChannelType, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// StartAll starts every registered channel. The first failure wins;
// already-started channels are stopped again.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var started []Channel
	for _, ch := range r.channels {
		if err := ch.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop(ctx)
			}
			return fmt.Errorf("start channel %s: %w", ch.Name(), err)
		}
		started = append(started, ch)
	}
	return nil
}

// StopAll stops every registered channel, collecting the first error.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var firstErr error
	for _, ch := range r.channels {
		if err := ch.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop channel %s: %w", ch.Name(), err)
		}
	}
	return firstErr
}
