package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestMemory(t *testing.T) *FileMemory {
	t.Helper()
	m, err := NewFileMemory(filepath.Join(t.TempDir(), "memory.jsonl"))
	if err != nil {
		t.Fatalf("NewFileMemory: %v", err)
	}
	return m
}

func TestRememberAndSearch(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	if err := m.RememberUser(ctx, "The user's name is Dana"); err != nil {
		t.Fatalf("RememberUser: %v", err)
	}
	if err := m.RememberPreference(ctx, "Prefers short replies"); err != nil {
		t.Fatalf("RememberPreference: %v", err)
	}
	if err := m.RememberLearned(ctx, "The staging server lives at staging.example.com"); err != nil {
		t.Fatalf("RememberLearned: %v", err)
	}

	facts, err := m.Search(ctx, "staging server", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(facts) != 1 || facts[0].Category != CategoryLearned {
		t.Errorf("Search = %+v", facts)
	}

	facts, err = m.Search(ctx, "nothing matches this", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, fact := range facts {
		if !strings.Contains(strings.ToLower(fact.Content), "nothing") &&
			!strings.Contains(strings.ToLower(fact.Content), "matches") {
			t.Errorf("unrelated fact returned: %+v", fact)
		}
	}
}

func TestSearchRanksByTermOverlap(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	_ = m.RememberLearned(ctx, "deploy script lives in scripts/deploy.sh")
	_ = m.RememberLearned(ctx, "deploy happens every friday")

	facts, err := m.Search(ctx, "deploy script", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("want 2 matches, got %d", len(facts))
	}
	if !strings.Contains(facts[0].Content, "scripts/deploy.sh") {
		t.Errorf("two-term match should rank first: %+v", facts)
	}
}

func TestRelevantContext(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	block, err := m.RelevantContext(ctx, "anything")
	if err != nil || block != "" {
		t.Errorf("empty store should yield empty context: %q %v", block, err)
	}

	_ = m.RememberPreference(ctx, "Always answer in English")
	block, err = m.RelevantContext(ctx, "answer language English")
	if err != nil {
		t.Fatalf("RelevantContext: %v", err)
	}
	if !strings.Contains(block, "[preference] Always answer in English") {
		t.Errorf("context block = %q", block)
	}
}

func TestRecentEventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m, err := NewFileMemory(filepath.Join(t.TempDir(), "memory.jsonl"), WithNow(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))
	if err != nil {
		t.Fatalf("NewFileMemory: %v", err)
	}

	_ = m.RememberContext(ctx, "first")
	_ = m.RememberContext(ctx, "second")
	_ = m.RememberContext(ctx, "third")

	events, err := m.RecentEvents(ctx, 2)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 2 || events[0].Content != "third" || events[1].Content != "second" {
		t.Errorf("RecentEvents = %+v", events)
	}
}

func TestMemoryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.jsonl")

	m, err := NewFileMemory(path)
	if err != nil {
		t.Fatalf("NewFileMemory: %v", err)
	}
	if err := m.RememberUser(ctx, "timezone is UTC+2"); err != nil {
		t.Fatalf("RememberUser: %v", err)
	}

	reopened, err := NewFileMemory(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	stats, err := reopened.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 1 || stats.ByCategory[CategoryUser] != 1 {
		t.Errorf("Stats = %+v", stats)
	}
	facts, _ := reopened.Search(ctx, "timezone", 1)
	if len(facts) != 1 || facts[0].Content != "timezone is UTC+2" {
		t.Errorf("fact lost on reopen: %+v", facts)
	}
}

func TestRememberRejectsEmptyContent(t *testing.T) {
	m := newTestMemory(t)
	if err := m.RememberLearned(context.Background(), "   "); err == nil {
		t.Error("blank content should be rejected")
	}
}
