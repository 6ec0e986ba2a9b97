package sessions

import (
	"context"
	"sort"
	"sync"

	"github.com/haasonsaas/pocketd/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for tests and
// throwaway runs. It applies the same truncation policy as FileStore so
// prompt-rebuild behavior matches.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, key string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[key]; ok {
		return session.Clone(), nil
	}
	session := models.NewSession(key)
	m.sessions[key] = session
	return session.Clone(), nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	return session.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := session.Clone()
	for i := range clone.Messages {
		clone.Messages[i] = truncateForStorage(clone.Messages[i])
	}
	m.sessions[session.Key] = clone
	return nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, key string, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[key]
	if !ok {
		session = models.NewSession(key)
		m.sessions[key] = session
	}
	session.Append(truncateForStorage(msg))
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *MemoryStore) ListKeys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*models.Session)
	return nil
}
