package cron

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/pocketd/pkg/models"
)

type capturingPublisher struct {
	mu       sync.Mutex
	inbound  []models.InboundMessage
	outbound []models.OutboundMessage
	fail     error
}

func (p *capturingPublisher) PublishInbound(ctx context.Context, msg models.InboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.inbound = append(p.inbound, msg)
	return nil
}

func (p *capturingPublisher) PublishOutbound(ctx context.Context, msg models.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.outbound = append(p.outbound, msg)
	return nil
}

type fixture struct {
	store     *Store
	scheduler *Scheduler
	publisher *capturingPublisher
	now       time.Time
	mu        sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		publisher: &capturingPublisher{},
		now:       time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
	nowFn := func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	}
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.json"), nowFn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	f.store = store
	f.scheduler = NewScheduler(store, f.publisher, WithNow(nowFn))
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestScheduleValidation(t *testing.T) {
	at := time.Now().Add(time.Hour)
	tests := []struct {
		name     string
		schedule Schedule
		wantErr  bool
	}{
		{"at ok", Schedule{Kind: KindAt, At: &at}, false},
		{"at missing time", Schedule{Kind: KindAt}, true},
		{"every ok", Schedule{Kind: KindEvery, EveryMS: 60000}, false},
		{"every below minimum", Schedule{Kind: KindEvery, EveryMS: 59999}, true},
		{"cron ok", Schedule{Kind: KindCron, Expr: "*/5 * * * *"}, false},
		{"cron bad expr", Schedule{Kind: KindCron, Expr: "not a cron"}, true},
		{"cron bad timezone", Schedule{Kind: KindCron, Expr: "0 9 * * *", Timezone: "Mars/Olympus"}, true},
		{"unknown kind", Schedule{Kind: "weekly"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddRejectsPastOneShot(t *testing.T) {
	f := newFixture(t)
	past := f.now.Add(-time.Hour)
	_, err := f.store.Add(&Job{
		Name:     "stale",
		Schedule: Schedule{Kind: KindAt, At: &past},
		Message:  "too late",
		Enabled:  true,
	})
	if err == nil {
		t.Fatal("past one-shot should be rejected")
	}
	if jobs := f.store.List(true); len(jobs) != 0 {
		t.Errorf("rejected job persisted: %+v", jobs)
	}

	// A disabled job may hold a past time, but enabling it once the time
	// has gone is refused the same way.
	parked, err := f.store.Add(&Job{
		Name:     "parked",
		Schedule: Schedule{Kind: KindAt, At: &past},
		Message:  "parked",
	})
	if err != nil {
		t.Fatalf("disabled past one-shot rejected: %v", err)
	}
	if _, err := f.store.SetEnabled(parked.ID, true); err == nil {
		t.Error("enabling a past one-shot should be rejected")
	}
	got, err := f.store.Get(parked.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Enabled {
		t.Error("rejected enable mutated the job")
	}
}

func TestEveryJobFiresAndAdvances(t *testing.T) {
	f := newFixture(t)
	job, err := f.store.Add(&Job{
		Name:     "standup",
		Schedule: Schedule{Kind: KindEvery, EveryMS: 60000},
		Message:  "time for standup",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if job.NextRun == nil {
		t.Fatal("next run not set on add")
	}

	// Not yet due.
	f.scheduler.Evaluate(context.Background())
	if len(f.publisher.inbound) != 0 {
		t.Fatal("job fired before its next run")
	}

	f.advance(time.Minute)
	f.scheduler.Evaluate(context.Background())
	if len(f.publisher.inbound) != 1 {
		t.Fatalf("want 1 firing, got %d", len(f.publisher.inbound))
	}
	msg := f.publisher.inbound[0]
	if msg.Channel != models.ChannelCron || msg.SenderID != "cron" || msg.ChatID != job.ID {
		t.Errorf("synthetic inbound = %+v", msg)
	}
	if msg.Content != "time for standup" {
		t.Errorf("content = %q", msg.Content)
	}

	got, err := f.store.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastStatus != "ok" || got.LastRun == nil {
		t.Errorf("run not recorded: %+v", got)
	}
	if got.NextRun == nil || !got.NextRun.After(f.now) {
		t.Errorf("next run not advanced past now: %v", got.NextRun)
	}
}

func TestMissedFiringsCollapseToOne(t *testing.T) {
	f := newFixture(t)
	job, err := f.store.Add(&Job{
		Name:     "pulse",
		Schedule: Schedule{Kind: KindEvery, EveryMS: 60000},
		Message:  "pulse",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Ten intervals pass while the scheduler was down.
	f.advance(10 * time.Minute)
	f.scheduler.Evaluate(context.Background())
	f.scheduler.Evaluate(context.Background())
	if len(f.publisher.inbound) != 1 {
		t.Errorf("want exactly 1 catch-up firing, got %d", len(f.publisher.inbound))
	}

	got, _ := f.store.Get(job.ID)
	if got.NextRun == nil || !got.NextRun.After(f.now) {
		t.Errorf("next run should be past now: %v", got.NextRun)
	}
}

func TestOneShotJobDeletesAfterRun(t *testing.T) {
	f := newFixture(t)
	at := f.now.Add(30 * time.Minute)
	job, err := f.store.Add(&Job{
		Name:     "reminder",
		Schedule: Schedule{Kind: KindAt, At: &at},
		Message:  "call the dentist",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !job.DeleteAfterRun {
		t.Error("one-shot jobs should default to delete after run")
	}

	f.advance(31 * time.Minute)
	f.scheduler.Evaluate(context.Background())
	if len(f.publisher.inbound) != 1 {
		t.Fatalf("want 1 firing, got %d", len(f.publisher.inbound))
	}
	if _, err := f.store.Get(job.ID); err == nil {
		t.Error("one-shot job should be deleted after firing")
	}
}

func TestDirectDelivery(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Add(&Job{
		Name:     "digest",
		Schedule: Schedule{Kind: KindEvery, EveryMS: 60000},
		Message:  "daily digest",
		Deliver:  true,
		Channel:  "telegram",
		To:       "chat42",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	f.advance(time.Minute)
	f.scheduler.Evaluate(context.Background())
	if len(f.publisher.inbound) != 0 {
		t.Error("direct delivery should not produce inbound")
	}
	if len(f.publisher.outbound) != 1 {
		t.Fatalf("want 1 outbound, got %d", len(f.publisher.outbound))
	}
	msg := f.publisher.outbound[0]
	if msg.Channel != "telegram" || msg.ChatID != "chat42" || msg.Content != "daily digest" {
		t.Errorf("outbound = %+v", msg)
	}
}

func TestDisabledJobDoesNotFire(t *testing.T) {
	f := newFixture(t)
	job, err := f.store.Add(&Job{
		Name:     "paused",
		Schedule: Schedule{Kind: KindEvery, EveryMS: 60000},
		Message:  "should not appear",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := f.store.SetEnabled(job.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	f.advance(5 * time.Minute)
	f.scheduler.Evaluate(context.Background())
	if len(f.publisher.inbound) != 0 {
		t.Error("disabled job fired")
	}

	// Re-enabling computes a fresh next run from now.
	reenabled, err := f.store.SetEnabled(job.ID, true)
	if err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if reenabled.NextRun == nil || !reenabled.NextRun.After(f.now) {
		t.Errorf("next run after enable = %v", reenabled.NextRun)
	}
}

func TestDeliveryErrorRecordedAndLoopContinues(t *testing.T) {
	f := newFixture(t)
	f.publisher.fail = errors.New("bus unavailable")
	job, err := f.store.Add(&Job{
		Name:     "flaky",
		Schedule: Schedule{Kind: KindEvery, EveryMS: 60000},
		Message:  "x",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	f.advance(time.Minute)
	f.scheduler.Evaluate(context.Background())

	got, _ := f.store.Get(job.ID)
	if got.LastStatus != "error" || got.LastError != "bus unavailable" {
		t.Errorf("error not recorded: %+v", got)
	}
	if got.NextRun == nil || !got.NextRun.After(f.now) {
		t.Errorf("failed job should still advance: %v", got.NextRun)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	job, err := store.Add(&Job{
		Name:     "keep",
		Schedule: Schedule{Kind: KindCron, Expr: "0 9 * * *"},
		Message:  "morning brief",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get(job.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Name != "keep" || got.Schedule.Expr != "0 9 * * *" || got.NextRun == nil {
		t.Errorf("job lost on reopen: %+v", got)
	}
}

func TestListFiltersDisabled(t *testing.T) {
	f := newFixture(t)
	a, _ := f.store.Add(&Job{Name: "a", Schedule: Schedule{Kind: KindEvery, EveryMS: 60000}, Enabled: true})
	f.advance(time.Second)
	b, _ := f.store.Add(&Job{Name: "b", Schedule: Schedule{Kind: KindEvery, EveryMS: 60000}, Enabled: true})
	if _, err := f.store.SetEnabled(b.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	enabled := f.store.List(false)
	if len(enabled) != 1 || enabled[0].ID != a.ID {
		t.Errorf("List(false) = %+v", enabled)
	}
	all := f.store.List(true)
	if len(all) != 2 || all[0].ID != a.ID || all[1].ID != b.ID {
		t.Errorf("List(true) = %+v", all)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	f := newFixture(t)
	scheduler := NewScheduler(f.store, f.publisher, WithTick(10*time.Millisecond))
	scheduler.Start()
	scheduler.Start() // idempotent
	scheduler.Stop()
	scheduler.Stop() // idempotent
}
