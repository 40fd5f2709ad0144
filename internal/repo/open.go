// Package meta хранит журнал собранных файлов: имя, размер, SHA-256 и исходную сессию.
package meta

import (
	"context"
	"strings"

	"github.com/sir_venger/chunk_lite/internal/models"
)

// MemoryDSN выбирает in-memory журнал.
const MemoryDSN = "memory://"

// Journal: общий интерфейс in-memory и Postgres журналов.
type Journal interface {
	Get(ctx context.Context, name string) (models.Artifact, error)
	Save(ctx context.Context, a models.Artifact) error
	Close()
}

var (
	_ Journal = (*MemoryStore)(nil)
	_ Journal = (*PGStore)(nil)
)

// Open выбирает реализацию журнала по DSN: для пустого или memory:// память, иначе Postgres.
func Open(ctx context.Context, dsn string) (Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" || strings.HasPrefix(dsn, MemoryDSN) {
		return NewMemoryStore(), nil
	}
	return NewPGStore(ctx, dsn)
}
