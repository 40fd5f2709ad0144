package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sir_venger/chunk_lite/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ExclusivePerKey(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, unlock, err := m.TryLock(ctx, "a")
	require.NoError(t, err)

	_, _, err = m.TryLock(ctx, "a")
	assert.ErrorIs(t, err, models.ErrMergeInProgress)

	// другая сессия не блокируется
	_, unlockB, err := m.TryLock(ctx, "b")
	require.NoError(t, err)
	unlockB()

	unlock()
	unlock() // повторный вызов безопасен

	_, unlock, err = m.TryLock(ctx, "a")
	require.NoError(t, err)
	unlock()
}

func TestMemory_ReclaimsEntries(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, unlock, err := m.TryLock(ctx, k)
		require.NoError(t, err)
		assert.True(t, m.isHeld(k))
		unlock()
	}
	assert.Equal(t, 0, m.size())
}

func TestMemory_StaleUnlockDoesNotReleaseNewHolder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, first, err := m.TryLock(ctx, "a")
	require.NoError(t, err)
	first()

	_, second, err := m.TryLock(ctx, "a")
	require.NoError(t, err)
	defer second()

	first()
	assert.True(t, m.isHeld("a"))
}

func TestMemory_ConcurrentSingleWinner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
		release = make(chan struct{})
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, unlock, err := m.TryLock(ctx, "same")
			if err != nil {
				return
			}
			winners.Add(1)
			<-release
			unlock()
		}()
	}
	close(start)
	// проигравшие завершаются сразу, победитель ждёт release
	assert.Eventually(t, func() bool { return m.isHeld("same") }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 0, m.size())
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewMemory().TryLock(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory_HeldContextEndsOnUnlock(t *testing.T) {
	m := NewMemory()

	held, unlock, err := m.TryLock(context.Background(), "a")
	require.NoError(t, err)
	require.NoError(t, held.Err())

	unlock()
	assert.ErrorIs(t, held.Err(), context.Canceled)
	assert.NotErrorIs(t, context.Cause(held), ErrLost)
}
