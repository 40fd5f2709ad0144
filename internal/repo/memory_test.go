package meta

import (
	"context"
	"testing"
	"time"

	"github.com/sir_venger/chunk_lite/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "a.bin")
	assert.ErrorIs(t, err, models.ErrNotFound)

	a := models.Artifact{Name: "a.bin", SessionKey: "k", Size: 3, Sha256: "abc", Chunks: 2, MergedAt: time.Now()}
	require.NoError(t, s.Save(ctx, a))

	got, err := s.Get(ctx, "a.bin")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	assert.Error(t, s.Save(ctx, models.Artifact{}))
}

func TestOpen_MemoryDSN(t *testing.T) {
	for _, dsn := range []string{"", "memory://", "memory://journal"} {
		j, err := Open(context.Background(), dsn)
		require.NoError(t, err)
		_, ok := j.(*MemoryStore)
		assert.True(t, ok, dsn)
		j.Close()
	}
}
