package spark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// store persists the full job list as one JSON document. The engine is the
// single writer; every mutation rewrites the file before returning.
type store struct {
	path string
}

type storeFile struct {
	Jobs []*Job `json:"jobs"`
}

func newStore(path string) *store {
	return &store{path: path}
}

func (s *store) load() ([]*Job, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job store: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse job store %s: %w", s.path, err)
	}
	return file.Jobs, nil
}

// LoadJobs reads the job store without taking ownership of it. Used by CLI
// inspection when the daemon holds the engine.
func LoadJobs(path string) ([]*Job, error) {
	return newStore(path).load()
}

func (s *store) save(jobs []*Job) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create job store dir: %w", err)
	}

	data, err := json.MarshalIndent(storeFile{Jobs: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write job store: %w", err)
	}
	return os.Rename(tmp, s.path)
}
