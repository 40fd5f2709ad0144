package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/sir_venger/chunk_lite/internal/models"
)

// Memory держит блокировки в памяти процесса. Запись в карте появляется при захвате
// и удаляется при освобождении, поэтому карта не растёт с числом сессий.
type Memory struct {
	mu   sync.Mutex
	held map[string]uint64
	seq  uint64
}

var _ Locker = (*Memory)(nil)

// NewMemory создаёт пустую карту блокировок.
func NewMemory() *Memory {
	return &Memory{held: map[string]uint64{}}
}

// TryLock захватывает ключ или сразу возвращает ErrMergeInProgress.
// В памяти процесса блокировка не теряется, поэтому контекст отменяется только при unlock.
func (m *Memory) TryLock(ctx context.Context, key string) (context.Context, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[key]; busy {
		return nil, nil, fmt.Errorf("%w: session %s", models.ErrMergeInProgress, key)
	}
	m.seq++
	token := m.seq
	m.held[key] = token

	heldCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	return heldCtx, func() {
		once.Do(func() {
			cancel()
			m.mu.Lock()
			defer m.mu.Unlock()
			// Снимаем только свою блокировку.
			if m.held[key] == token {
				delete(m.held, key)
			}
		})
	}, nil
}

func (m *Memory) isHeld(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}

func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}
