package sessions

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/haasonsaas/pocketd/pkg/models"
)

const sessionFileExt = ".jsonl"

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeKey derives a filesystem-safe filename stem from a session key.
func SanitizeKey(key string) string {
	return unsafeKeyChars.ReplaceAllString(key, "_")
}

// FileStore persists each session as one JSONL file under dir: one JSON
// object per line so appends are O(1) and a torn final line can be dropped
// on load instead of poisoning the session.
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*models.Session
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger.With("component", "sessions")
		}
	}
}

// NewFileStore creates a JSONL-backed session store rooted at dir.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("session storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &SessionError{Op: "create storage dir", Cause: err}
	}
	store := &FileStore{
		dir:    dir,
		logger: slog.Default().With("component", "sessions"),
		cache:  make(map[string]*models.Session),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, SanitizeKey(key)+sessionFileExt)
}

// GetOrCreate returns the cached session, loads it from disk, or creates
// a fresh empty one.
func (s *FileStore) GetOrCreate(ctx context.Context, key string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.cache[key]; ok {
		return session.Clone(), nil
	}
	session := s.loadLocked(key)
	if session == nil {
		session = models.NewSession(key)
	}
	s.cache[key] = session
	return session.Clone(), nil
}

// Get returns the session or nil when neither cache nor disk has it.
func (s *FileStore) Get(ctx context.Context, key string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.cache[key]; ok {
		return session.Clone(), nil
	}
	session := s.loadLocked(key)
	if session == nil {
		return nil, nil
	}
	s.cache[key] = session
	return session.Clone(), nil
}

// loadLocked reads a session file. Corrupt lines are logged and skipped;
// an unreadable file yields nil so the caller starts fresh.
func (s *FileStore) loadLocked(key string) *models.Session {
	file, err := os.Open(s.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("session file unreadable, starting fresh", "key", key, "error", err)
		}
		return nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		s.logger.Error("session file unreadable, starting fresh", "key", key, "error", err)
		return nil
	}

	session := models.NewSession(key)
	session.CreatedAt = info.ModTime().UTC()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			// A torn final line from a partial write is expected after a
			// crash; anything else is corruption. Both are skipped.
			s.logger.Warn("skipping corrupt session line", "key", key, "line", line, "error", err)
			continue
		}
		session.Messages = append(session.Messages, msg)
		if session.CreatedAt.IsZero() || (!msg.CreatedAt.IsZero() && msg.CreatedAt.Before(session.CreatedAt)) {
			session.CreatedAt = msg.CreatedAt
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("session scan stopped early", "key", key, "error", err)
	}
	return session
}

// Save rewrites the whole session record atomically (write temp, rename).
func (s *FileStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil || strings.TrimSpace(session.Key) == "" {
		return &SessionError{Op: "save", Cause: errors.New("session key is required")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf strings.Builder
	for _, msg := range session.Messages {
		data, err := json.Marshal(truncateForStorage(msg))
		if err != nil {
			return &SessionError{Key: session.Key, Op: "encode", Cause: err}
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	target := s.path(session.Key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0o644); err != nil {
		return &SessionError{Key: session.Key, Op: "write", Cause: err}
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return &SessionError{Key: session.Key, Op: "rename", Cause: err}
	}
	s.cache[session.Key] = session.Clone()
	return nil
}

// AppendMessage appends one record to the session log. On I/O failure the
// in-memory message list is left untouched.
func (s *FileStore) AppendMessage(ctx context.Context, key string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.cache[key]
	if !ok {
		session = s.loadLocked(key)
		if session == nil {
			session = models.NewSession(key)
		}
		s.cache[key] = session
	}

	stored := truncateForStorage(msg)
	data, err := json.Marshal(stored)
	if err != nil {
		return &SessionError{Key: key, Op: "encode", Cause: err}
	}

	file, err := os.OpenFile(s.path(key), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &SessionError{Key: key, Op: "open append", Cause: err}
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return &SessionError{Key: key, Op: "append", Cause: err}
	}

	session.Append(stored)
	return nil
}

// Delete removes the cache entry and the backing file.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, key)
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &SessionError{Key: key, Op: "delete", Cause: err}
	}
	return nil
}

// ListKeys returns the union of cached and on-disk session keys. Disk
// keys are recovered from sanitized filenames, so a key whose original
// form contained sanitized characters is reported in sanitized form
// unless it is cached.
func (s *FileStore) ListKeys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	keys := make([]string, 0, len(s.cache))
	for key := range s.cache {
		seen[SanitizeKey(key)] = struct{}{}
		keys = append(keys, key)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &SessionError{Op: "list", Cause: err}
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, sessionFileExt) {
			continue
		}
		stem := strings.TrimSuffix(name, sessionFileExt)
		if _, ok := seen[stem]; ok {
			continue
		}
		seen[stem] = struct{}{}
		keys = append(keys, stem)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every session from cache and disk. Test harnesses only.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = make(map[string]*models.Session)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return &SessionError{Op: "clear", Cause: err}
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sessionFileExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return &SessionError{Op: "clear", Cause: err}
		}
	}
	return nil
}
