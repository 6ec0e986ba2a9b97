// Package memory holds long-lived facts about the user and the world,
// independent of any single conversation. The agent loop injects
// relevant facts into the system prompt; the memory tool writes them.
package memory

import (
	"context"
	"time"
)

// Category classifies a remembered fact.
type Category string

const (
	// CategoryLearned is something observed or discovered while working.
	CategoryLearned Category = "learned"
	// CategoryUser is a durable fact about the user.
	CategoryUser Category = "user"
	// CategoryPreference is how the user wants things done.
	CategoryPreference Category = "preference"
	// CategoryContext is ongoing situational context.
	CategoryContext Category = "context"
)

// Fact is one remembered item.
type Fact struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the store.
type Stats struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"by_category"`
}

// Collaborator is the memory surface the agent and the memory tool use.
type Collaborator interface {
	RememberLearned(ctx context.Context, content string) error
	RememberUser(ctx context.Context, content string) error
	RememberPreference(ctx context.Context, content string) error
	RememberContext(ctx context.Context, content string) error

	// Search returns facts matching the query, most relevant first.
	Search(ctx context.Context, query string, limit int) ([]Fact, error)

	// RelevantContext renders the facts most relevant to the query as a
	// prompt-ready block. Empty string when nothing matches.
	RelevantContext(ctx context.Context, query string) (string, error)

	// RecentEvents returns the newest facts, newest first.
	RecentEvents(ctx context.Context, limit int) ([]Fact, error)

	Stats(ctx context.Context) (Stats, error)
}
