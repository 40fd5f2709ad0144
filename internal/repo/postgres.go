package meta

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sir_venger/chunk_lite/internal/models"
)

const artifactsTable = "artifacts"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PGStore сохраняет журнал собранных файлов в Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore создаёт пул подключений к Postgres.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("meta dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	return &PGStore{pool: pool}, nil
}

// Get возвращает запись по имени файла.
func (s *PGStore) Get(ctx context.Context, name string) (models.Artifact, error) {
	sqlStr, args, err := psql.
		Select("name", "session_key", "size", "sha256", "chunks", "merged_at").
		From(artifactsTable).
		Where(sq.Eq{"name": name}).
		Limit(1).
		ToSql()
	if err != nil {
		return models.Artifact{}, fmt.Errorf("build select: %w", err)
	}

	var a models.Artifact
	err = s.pool.QueryRow(ctx, sqlStr, args...).Scan(&a.Name, &a.SessionKey, &a.Size, &a.Sha256, &a.Chunks, &a.MergedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Artifact{}, fmt.Errorf("%w: artifact %s", models.ErrNotFound, name)
		}
		return models.Artifact{}, fmt.Errorf("scan artifact row: %w", err)
	}

	return a, nil
}

// Save записывает (или обновляет) запись о файле.
func (s *PGStore) Save(ctx context.Context, a models.Artifact) error {
	sqlStr, args, err := psql.
		Insert(artifactsTable).
		Columns("name", "session_key", "size", "sha256", "chunks", "merged_at").
		Values(a.Name, a.SessionKey, a.Size, a.Sha256, a.Chunks, a.MergedAt).
		Suffix(`
			ON CONFLICT (name) DO UPDATE
			SET session_key = EXCLUDED.session_key,
				size        = EXCLUDED.size,
				sha256      = EXCLUDED.sha256,
				chunks      = EXCLUDED.chunks,
				merged_at   = EXCLUDED.merged_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert sql: %w", err)
	}

	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("exec upsert: %w", err)
	}

	return nil
}

// Close освобождает подключения пула.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
