package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/pocketd/pkg/models"
)

// DefaultTick is the scheduler evaluation cadence.
const DefaultTick = time.Second

// stopGrace bounds how long Stop waits for an in-flight firing.
const stopGrace = 5 * time.Second

// Publisher is the bus surface the scheduler delivers through.
type Publisher interface {
	PublishInbound(ctx context.Context, msg models.InboundMessage) error
	PublishOutbound(ctx context.Context, msg models.OutboundMessage) error
}

// Scheduler evaluates the job store on a fixed tick and delivers due
// jobs. Firings are at most once per due instant: missed windows are
// not caught up.
type Scheduler struct {
	store     *Store
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	tick      time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger.With("component", "scheduler")
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTick overrides the evaluation cadence, for tests.
func WithTick(tick time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if tick > 0 {
			s.tick = tick
		}
	}
}

// NewScheduler creates a scheduler over the given store and publisher.
func NewScheduler(store *Store, publisher Publisher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:     store,
		publisher: publisher,
		logger:    slog.Default().With("component", "scheduler"),
		now:       time.Now,
		tick:      DefaultTick,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying job store for the CLI and the cron tool.
func (s *Scheduler) Store() *Store { return s.store }

// Start launches the tick loop. Idempotent while running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.run(s.stop, s.stopped)
	s.logger.Info("scheduler started", "tick", s.tick)
}

// Stop cancels the tick loop and waits briefly for an in-flight firing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	select {
	case <-stopped:
	case <-time.After(stopGrace):
		s.logger.Warn("scheduler stop timed out waiting for in-flight job")
	}
}

func (s *Scheduler) run(stop, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Evaluate(context.Background())
		}
	}
}

// Evaluate fires every due job once and persists the advanced state.
// Exposed so tests can drive the scheduler with a fake clock instead of
// the ticker.
func (s *Scheduler) Evaluate(ctx context.Context) {
	now := s.now()
	for _, job := range s.store.due(now) {
		fireErr := s.fire(ctx, job)
		if fireErr != nil {
			s.logger.Error("job delivery failed", "job", job.ID, "name", job.Name, "error", fireErr)
		} else {
			s.logger.Info("job fired", "job", job.ID, "name", job.Name)
		}
		if err := s.store.recordRun(job.ID, now, fireErr); err != nil {
			s.logger.Error("job state persist failed", "job", job.ID, "error", err)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, job *Job) error {
	if job.Deliver {
		if job.Channel == "" || job.To == "" {
			return fmt.Errorf("direct delivery requires channel and to")
		}
		return s.publisher.PublishOutbound(ctx, models.OutboundMessage{
			Channel: models.ChannelType(job.Channel),
			ChatID:  job.To,
			Content: job.Message,
		})
	}
	return s.publisher.PublishInbound(ctx, models.InboundMessage{
		Channel:  models.ChannelCron,
		SenderID: "cron",
		ChatID:   job.ID,
		Content:  job.Message,
		Metadata: map[string]any{"job_name": job.Name},
	})
}
