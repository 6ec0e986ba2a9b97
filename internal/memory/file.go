package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// relevantFactLimit caps how many facts RelevantContext renders.
const relevantFactLimit = 5

// FileMemory is a JSONL-backed Collaborator: one fact per line, append
// on remember, full scan on search. Small by design; a pocket assistant
// accumulates hundreds of facts, not millions.
type FileMemory struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	facts []Fact
}

// FileOption configures a FileMemory.
type FileOption func(*FileMemory)

// WithLogger sets the memory logger.
func WithLogger(logger *slog.Logger) FileOption {
	return func(m *FileMemory) {
		if logger != nil {
			m.logger = logger.With("component", "memory")
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) FileOption {
	return func(m *FileMemory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewFileMemory opens (or creates) the fact log at path.
func NewFileMemory(path string, opts ...FileOption) (*FileMemory, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("memory path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	m := &FileMemory{
		path:   path,
		logger: slog.Default().With("component", "memory"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *FileMemory) load() error {
	file, err := os.Open(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open memory log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var fact Fact
		if err := json.Unmarshal([]byte(raw), &fact); err != nil {
			m.logger.Warn("skipping corrupt memory line", "line", line, "error", err)
			continue
		}
		m.facts = append(m.facts, fact)
	}
	return scanner.Err()
}

func (m *FileMemory) remember(category Category, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("content is required")
	}
	fact := Fact{
		ID:        uuid.NewString()[:8],
		Category:  category,
		Content:   content,
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("encode fact: %w", err)
	}
	file, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open memory log: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append fact: %w", err)
	}

	m.facts = append(m.facts, fact)
	return nil
}

func (m *FileMemory) RememberLearned(ctx context.Context, content string) error {
	return m.remember(CategoryLearned, content)
}

func (m *FileMemory) RememberUser(ctx context.Context, content string) error {
	return m.remember(CategoryUser, content)
}

func (m *FileMemory) RememberPreference(ctx context.Context, content string) error {
	return m.remember(CategoryPreference, content)
}

func (m *FileMemory) RememberContext(ctx context.Context, content string) error {
	return m.remember(CategoryContext, content)
}

// Search scores facts by how many query terms they contain,
// case-insensitive. Ties break newest first.
func (m *FileMemory) Search(ctx context.Context, query string, limit int) ([]Fact, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	type scored struct {
		fact  Fact
		score int
	}
	var matches []scored
	for _, fact := range m.facts {
		content := strings.ToLower(fact.Content)
		score := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{fact: fact, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].fact.CreatedAt.After(matches[j].fact.CreatedAt)
	})

	results := make([]Fact, 0, limit)
	for _, match := range matches {
		if len(results) >= limit {
			break
		}
		results = append(results, match.fact)
	}
	return results, nil
}

// RelevantContext renders the top matches as a bullet list for the
// system prompt.
func (m *FileMemory) RelevantContext(ctx context.Context, query string) (string, error) {
	facts, err := m.Search(ctx, query, relevantFactLimit)
	if err != nil || len(facts) == 0 {
		return "", err
	}
	var sb strings.Builder
	for _, fact := range facts {
		fmt.Fprintf(&sb, "- [%s] %s\n", fact.Category, fact.Content)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// RecentEvents returns the newest facts, newest first.
func (m *FileMemory) RecentEvents(ctx context.Context, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.facts)
	if limit > n {
		limit = n
	}
	results := make([]Fact, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		results = append(results, m.facts[i])
	}
	return results, nil
}

func (m *FileMemory) Stats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{Total: len(m.facts), ByCategory: make(map[Category]int)}
	for _, fact := range m.facts {
		stats.ByCategory[fact.Category]++
	}
	return stats, nil
}

var _ Collaborator = (*FileMemory)(nil)
