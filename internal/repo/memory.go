package meta

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sir_venger/chunk_lite/internal/models"
)

// MemoryStore хранит журнал собранных файлов только в оперативной памяти; удобно для тестов.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]models.Artifact
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: map[string]models.Artifact{}}
}

// Get возвращает запись по имени файла или ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, name string) (models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[name]
	if !ok {
		return models.Artifact{}, fmt.Errorf("%w: artifact %s", models.ErrNotFound, name)
	}
	return a, nil
}

// Save записывает (или перезаписывает) запись о файле.
func (s *MemoryStore) Save(_ context.Context, a models.Artifact) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("artifact name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.Name] = a
	return nil
}

// Close нужен для симметрии с PGStore.
func (s *MemoryStore) Close() {}
