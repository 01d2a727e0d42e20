package audiocache

import (
	"context"
	"sync"

	"github.com/harya06/iqro-gesture/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process [Store]. Entries do not survive a restart.
// It is the default backend and the one used in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]tts.Audio
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]tts.Audio)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (tts.Audio, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	audio, ok := s.entries[key]
	return audio, ok, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, audio tts.Audio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = audio
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]tts.Audio)
	return n, nil
}

// Len returns the number of cached entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
