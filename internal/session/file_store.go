package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore keeps one JSON record per visitor under a base directory.
// It is the localStorage analogue for single-node deployments.
type FileStore struct {
	basePath string
	maxAge   time.Duration

	mu  sync.Mutex
	now func() time.Time
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string, maxAge time.Duration) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("session base path is required")
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{basePath: basePath, maxAge: maxAge, now: time.Now}, nil
}

// WithClock overrides the store's clock, for tests.
func (s *FileStore) WithClock(now func() time.Time) *FileStore {
	s.now = now
	return s
}

// Load reads the visitor's record. Absent, corrupt, or expired data yields
// an unauthenticated result; corrupt and expired files are purged.
func (s *FileStore) Load(_ context.Context, visitorID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(visitorID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read session: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.Token == "" {
		_ = os.Remove(path)
		return Record{}, false, nil
	}
	if expired(rec, s.maxAge, s.now()) {
		_ = os.Remove(path)
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Save persists credential and profile atomically via tmp-file rename.
func (s *FileStore) Save(_ context.Context, visitorID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	path := s.path(visitorID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Clear removes the visitor's record; removing a missing record is fine.
func (s *FileStore) Clear(_ context.Context, visitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(visitorID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *FileStore) path(visitorID string) string {
	return filepath.Join(s.basePath, safeID(visitorID)+".json")
}

// safeID keeps visitor ids filesystem-safe; anything suspicious collapses
// to a name that cannot escape the base directory.
func safeID(id string) string {
	id = filepath.Base(strings.TrimSpace(id))
	if id == "" || id == "." || id == ".." {
		return "visitor"
	}
	return id
}
