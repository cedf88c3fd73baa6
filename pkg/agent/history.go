package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/hollisdev/ember/pkg/brain"
)

// SessionHistory is one session's rolling transcript plus its summary of
// everything already consolidated away.
type SessionHistory struct {
	SessionKey string          `json:"session_key"`
	Summary    string          `json:"summary,omitempty"`
	Messages   []brain.Message `json:"messages"`
}

// HistoryStore persists one JSON file per session under workspace/state.
type HistoryStore struct {
	dir string
	mu  sync.Mutex
}

func NewHistoryStore(workspace string) (*HistoryStore, error) {
	dir := filepath.Join(workspace, "state")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &HistoryStore{dir: dir}, nil
}

var sessionFilePattern = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

func (s *HistoryStore) path(sessionKey string) string {
	name := sessionFilePattern.ReplaceAllString(sessionKey, "_")
	return filepath.Join(s.dir, "history-"+name+".json")
}

// Load returns the session's history, or an empty one when none exists yet.
func (s *HistoryStore) Load(sessionKey string) (*SessionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(sessionKey))
	if os.IsNotExist(err) {
		return &SessionHistory{SessionKey: sessionKey}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session history: %w", err)
	}

	var h SessionHistory
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse session history %s: %w", sessionKey, err)
	}
	h.SessionKey = sessionKey
	return &h, nil
}

// Sessions lists every session key with a persisted history file. The keys
// come back in their sanitized on-disk form, which Load accepts unchanged.
func (s *HistoryStore) Sessions() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list history dir: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "history-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(strings.TrimPrefix(name, "history-"), ".json"))
	}
	return keys, nil
}

func (s *HistoryStore) Save(h *SessionHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session history: %w", err)
	}
	path := s.path(h.SessionKey)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session history: %w", err)
	}
	return os.Rename(tmp, path)
}
