package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hay-kot/gltodo/internal/core/history"
)

// HistoryFileName is the sync history file inside an account directory.
const HistoryFileName = "history.json"

type historyFile struct {
	Entries []history.Entry `json:"entries"`
}

// HistoryStore keeps the outcome of an account's recent sync passes, newest
// first. It lives next to the cache snapshot but is written independently:
// losing it never affects the cache.
type HistoryStore struct {
	path string
	mu   sync.Mutex
}

// NewHistoryStore creates a history store for the account directory dir.
func NewHistoryStore(dir string) *HistoryStore {
	return &HistoryStore{path: filepath.Join(dir, HistoryFileName)}
}

// List returns the recorded passes, newest first.
func (s *HistoryStore) List(_ context.Context) ([]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read()
}

// Health summarizes the recorded passes.
func (s *HistoryStore) Health(_ context.Context) (history.Health, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return history.Health{}, err
	}
	return history.Summarize(entries), nil
}

// Record adds entry as the newest pass and keeps at most maxEntries. An
// unreadable history file is replaced rather than failing the pass that is
// being recorded.
func (s *HistoryStore) Record(_ context.Context, entry history.Entry, maxEntries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		entries = nil
	}

	entries = append([]history.Entry{entry}, entries...)
	if maxEntries > 0 && len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}

	data, err := json.MarshalIndent(historyFile{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := writeAtomic(s.path, data, os.Rename); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Clear forgets every recorded pass.
func (s *HistoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

func (s *HistoryStore) read() ([]history.Entry, error) {
	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read history: %w", err)
	case len(data) == 0:
		return nil, nil
	}

	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return file.Entries, nil
}
