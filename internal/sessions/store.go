// Package sessions provides durable, append-only conversation history
// keyed by session key, with an in-memory cache for hot sessions.
package sessions

import (
	"context"
	"fmt"

	"github.com/haasonsaas/pocketd/pkg/models"
)

// Store is the interface for session persistence.
type Store interface {
	// GetOrCreate returns the cached session, loads it from disk, or
	// creates a fresh one.
	GetOrCreate(ctx context.Context, key string) (*models.Session, error)

	// Get returns the session or nil when it does not exist.
	Get(ctx context.Context, key string) (*models.Session, error)

	// Save rewrites the whole session record atomically.
	Save(ctx context.Context, session *models.Session) error

	// AppendMessage appends one record to the session log without
	// rewriting history. The stored copy is truncated per policy.
	AppendMessage(ctx context.Context, key string, msg models.Message) error

	// Delete removes the cache entry and the backing record.
	Delete(ctx context.Context, key string) error

	// ListKeys returns the union of cached and persisted session keys.
	ListKeys(ctx context.Context) ([]string, error)

	// Clear removes all sessions. Test harnesses only.
	Clear(ctx context.Context) error
}

// SessionError reports an I/O problem with session persistence. The
// mutation that produced it was rejected and cached state is untouched.
type SessionError struct {
	Key   string
	Op    string
	Cause error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.Key, e.Op, e.Cause)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}
