package models

import "time"

// Session is the durable conversation state for one session key.
// Messages are ordered by append time and never mutated after append.
type Session struct {
	Key       string         `json:"key"`
	Messages  []Message      `json:"messages"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewSession creates an empty session for the given key.
func NewSession(key string) *Session {
	return &Session{
		Key:       key,
		CreatedAt: time.Now().UTC(),
	}
}

// Append adds a message to the session history.
func (s *Session) Append(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.Messages = append(s.Messages, msg)
}

// Clone returns a deep copy of the session. Stores hand out clones so
// callers never share mutable message slices.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := &Session{
		Key:       s.Key,
		CreatedAt: s.CreatedAt,
	}
	if s.Messages != nil {
		clone.Messages = make([]Message, len(s.Messages))
		copy(clone.Messages, s.Messages)
	}
	if s.Metadata != nil {
		clone.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}
