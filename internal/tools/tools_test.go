package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/pocketd/internal/agent"
	"github.com/haasonsaas/pocketd/internal/cron"
	"github.com/haasonsaas/pocketd/internal/memory"
	"github.com/haasonsaas/pocketd/pkg/models"
)

type capturedOutbound struct {
	mu   sync.Mutex
	msgs []models.OutboundMessage
}

func (c *capturedOutbound) PublishOutbound(ctx context.Context, msg models.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func runTool(t *testing.T, tool agent.Tool, ctx context.Context, args map[string]any) *agent.ToolResult {
	t.Helper()
	params, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return result
}

func conversationContext(channel, chatID string) context.Context {
	return agent.WithToolContext(context.Background(), agent.ToolContext{
		Channel: models.ChannelType(channel),
		ChatID:  chatID,
	})
}

func TestThinkTool(t *testing.T) {
	tool := NewThinkTool(nil)
	result := runTool(t, tool, context.Background(), map[string]any{"thought": "step one, then step two"})
	if result.IsError || result.Content != "Thought recorded." {
		t.Errorf("think = %+v", result)
	}

	result = runTool(t, tool, context.Background(), map[string]any{})
	if !result.IsError {
		t.Error("missing thought should fail")
	}
}

func TestMessageToolDefaultsToConversation(t *testing.T) {
	publisher := &capturedOutbound{}
	tool := NewMessageTool(publisher)

	ctx := conversationContext("telegram", "chat7")
	result := runTool(t, tool, ctx, map[string]any{"content": "heads up"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if len(publisher.msgs) != 1 {
		t.Fatalf("want 1 outbound, got %d", len(publisher.msgs))
	}
	msg := publisher.msgs[0]
	if msg.Channel != "telegram" || msg.ChatID != "chat7" || msg.Content != "heads up" {
		t.Errorf("outbound = %+v", msg)
	}
}

func TestMessageToolExplicitTarget(t *testing.T) {
	publisher := &capturedOutbound{}
	tool := NewMessageTool(publisher)

	result := runTool(t, tool, conversationContext("cli", "local"), map[string]any{
		"content": "cross-channel", "channel": "telegram", "chat_id": "other",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if publisher.msgs[0].Channel != "telegram" || publisher.msgs[0].ChatID != "other" {
		t.Errorf("explicit target ignored: %+v", publisher.msgs[0])
	}
}

func TestMessageToolWithoutTarget(t *testing.T) {
	tool := NewMessageTool(&capturedOutbound{})
	result := runTool(t, tool, context.Background(), map[string]any{"content": "lost"})
	if !result.IsError || !strings.Contains(result.Content, "channel and chat_id") {
		t.Errorf("missing target not caught: %q", result.Content)
	}
}

func TestSendFileTool(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	publisher := &capturedOutbound{}
	tool := NewSendFileTool(publisher, dir)
	ctx := conversationContext("telegram", "chat1")

	result := runTool(t, tool, ctx, map[string]any{"path": "report.pdf", "caption": "this week"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if len(publisher.msgs) != 1 {
		t.Fatalf("want 1 outbound, got %d", len(publisher.msgs))
	}
	msg := publisher.msgs[0]
	if msg.Content != "this week" || len(msg.Media) != 1 {
		t.Fatalf("outbound = %+v", msg)
	}
	media := msg.Media[0]
	if media.Type != models.MediaFile || media.Filename != "report.pdf" {
		t.Errorf("media = %+v", media)
	}
	if !strings.Contains(media.MimeType, "pdf") {
		t.Errorf("mime = %q", media.MimeType)
	}
}

func TestSendFileToolRejections(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tool.exe"), []byte("MZ"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "photo.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	publisher := &capturedOutbound{}
	tool := NewSendFileTool(publisher, dir)
	ctx := conversationContext("telegram", "chat1")

	result := runTool(t, tool, ctx, map[string]any{"path": "tool.exe"})
	if !result.IsError || !strings.Contains(result.Content, "not sendable") {
		t.Errorf("disallowed extension not caught: %q", result.Content)
	}

	result = runTool(t, tool, ctx, map[string]any{"path": "missing.png"})
	if !result.IsError || !strings.Contains(result.Content, "file not found") {
		t.Errorf("missing file not caught: %q", result.Content)
	}

	result = runTool(t, tool, ctx, map[string]any{"path": "../escape.png"})
	if !result.IsError || !strings.Contains(result.Content, "outside workspace") {
		t.Errorf("escape not caught: %q", result.Content)
	}

	result = runTool(t, tool, ctx, map[string]any{"path": "photo.png"})
	if result.IsError {
		t.Errorf("allowed image rejected: %q", result.Content)
	}
	if publisher.msgs[0].Media[0].Type != models.MediaImage {
		t.Errorf("image media type = %+v", publisher.msgs[0].Media[0])
	}
}

func TestMemoryTool(t *testing.T) {
	mem, err := memory.NewFileMemory(filepath.Join(t.TempDir(), "memory.jsonl"))
	if err != nil {
		t.Fatalf("NewFileMemory: %v", err)
	}
	tool := NewMemoryTool(mem)
	ctx := context.Background()

	result := runTool(t, tool, ctx, map[string]any{
		"action": "remember", "content": "user prefers metric units", "category": "preference",
	})
	if result.IsError {
		t.Fatalf("remember failed: %s", result.Content)
	}

	result = runTool(t, tool, ctx, map[string]any{"action": "search", "query": "metric units"})
	if result.IsError || !strings.Contains(result.Content, "metric units") {
		t.Errorf("search = %q", result.Content)
	}

	result = runTool(t, tool, ctx, map[string]any{"action": "stats"})
	if result.IsError || !strings.Contains(result.Content, "\"total\": 1") {
		t.Errorf("stats = %q", result.Content)
	}

	result = runTool(t, tool, ctx, map[string]any{"action": "remember", "content": "x", "category": "bogus"})
	if !result.IsError || !strings.Contains(result.Content, "unknown category") {
		t.Errorf("bad category = %q", result.Content)
	}
}

func TestCronTool(t *testing.T) {
	store, err := cron.NewStore(filepath.Join(t.TempDir(), "jobs.json"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tool := NewCronTool(store)
	ctx := context.Background()

	result := runTool(t, tool, ctx, map[string]any{
		"action": "add", "kind": "every", "every_seconds": 120,
		"name": "water plants", "message": "water the plants",
	})
	if result.IsError {
		t.Fatalf("add failed: %s", result.Content)
	}
	var added struct {
		Job cron.Job `json:"job"`
	}
	if err := json.Unmarshal([]byte(result.Content), &added); err != nil {
		t.Fatalf("decode add result: %v", err)
	}
	if added.Job.ID == "" || !added.Job.Enabled {
		t.Errorf("added job = %+v", added.Job)
	}

	result = runTool(t, tool, ctx, map[string]any{
		"action": "add", "kind": "every", "every_seconds": 10, "message": "too fast",
	})
	if !result.IsError || !strings.Contains(result.Content, "minimum") {
		t.Errorf("sub-minimum interval not rejected: %q", result.Content)
	}

	result = runTool(t, tool, ctx, map[string]any{"action": "disable", "job_id": added.Job.ID})
	if result.IsError {
		t.Fatalf("disable failed: %s", result.Content)
	}

	result = runTool(t, tool, ctx, map[string]any{"action": "list"})
	if strings.Contains(result.Content, "water plants") {
		t.Errorf("disabled job listed by default: %q", result.Content)
	}
	result = runTool(t, tool, ctx, map[string]any{"action": "list", "include_disabled": true})
	if !strings.Contains(result.Content, "water plants") {
		t.Errorf("include_disabled missing job: %q", result.Content)
	}

	result = runTool(t, tool, ctx, map[string]any{"action": "remove", "job_id": added.Job.ID})
	if result.IsError {
		t.Fatalf("remove failed: %s", result.Content)
	}
	result = runTool(t, tool, ctx, map[string]any{"action": "remove", "job_id": added.Job.ID})
	if !result.IsError {
		t.Error("removing a removed job should fail")
	}
}
