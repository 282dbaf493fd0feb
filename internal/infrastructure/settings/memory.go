package settings

import (
	"context"
	"sync"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

// MemoryStore keeps synced settings in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	settings domain.Settings
}

var _ ports.SettingsStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) LoadSettings(context.Context) (domain.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, s domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}
