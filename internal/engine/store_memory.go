package engine

import (
	"context"
	"sync"

	"pnl_engine/internal/core"
)

// MemoryStore is an in-process SettingsStore for tests and for running
// without a database file.
type MemoryStore struct {
	mu       sync.Mutex
	settings *core.Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveSettings(_ context.Context, settings core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := settings
	s.settings = &copied
	return nil
}

func (s *MemoryStore) LoadSettings(_ context.Context) (*core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return nil, nil
	}
	copied := *s.settings
	return &copied, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
