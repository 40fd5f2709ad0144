// Package chunksvc реализует сценарии сервиса: приём чанков, статус сессии,
// склейку чанков в итоговый файл и сборку мусора по брошенным сессиям.
package chunksvc

import (
	"context"
	"log/slog"
	"time"

	"github.com/sir_venger/chunk_lite/internal/chunkstore"
	"github.com/sir_venger/chunk_lite/internal/lock"
	"github.com/sir_venger/chunk_lite/internal/models"
	"github.com/sir_venger/chunk_lite/internal/registry"
)

type (
	// ArtifactJournal хранит метаданные собранных файлов.
	ArtifactJournal interface {
		Get(ctx context.Context, name string) (models.Artifact, error)
		Save(ctx context.Context, a models.Artifact) error
	}

	// Service объединяет операции, которые вызывает HTTP-слой.
	Service interface {
		Upload(ctx context.Context, req models.UploadRequest) error
		Status(ctx context.Context, sessionKey string) ([]int, error)
		Merge(ctx context.Context, req models.MergeRequest) (models.Artifact, error)
		Artifact(ctx context.Context, name string) (models.Artifact, error)
		Sessions(ctx context.Context) ([]models.SessionInfo, error)
		Sweep(ctx context.Context, ttl time.Duration) (int, error)
		Ping(ctx context.Context) error
	}
)

// Deps собирает хранилище, блокировки, журнал и настройки сервиса.
type Deps struct {
	Store    chunkstore.Store
	Registry *registry.Registry
	Locker   lock.Locker
	Journal  ArtifactJournal
	Logger   *slog.Logger

	// MaxChunkSize: предельный размер одного чанка; 0 отключает проверку.
	MaxChunkSize int64
	// RequireContiguous запрещает склейку, если среди индексов 0..N-1 есть пропуски.
	RequireContiguous bool

	Now func() time.Time
}

// Uploads реализует Service поверх Deps.
type Uploads struct {
	Deps
}

var _ Service = (*Uploads)(nil)

// New конструирует сервис с заданными зависимостями, подставляя значения по умолчанию.
func New(deps Deps) *Uploads {
	if deps.Registry == nil {
		deps.Registry = registry.New(deps.Store)
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemory()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Uploads{Deps: deps}
}

// Status возвращает полученные индексы сессии по возрастанию.
func (s *Uploads) Status(ctx context.Context, sessionKey string) ([]int, error) {
	return s.Registry.Status(ctx, sessionKey)
}

// Artifact ищет запись о собранном файле в журнале.
func (s *Uploads) Artifact(ctx context.Context, name string) (models.Artifact, error) {
	if err := models.ValidateFilename(name); err != nil {
		return models.Artifact{}, err
	}
	if s.Journal == nil {
		return models.Artifact{}, models.ErrNotFound
	}
	return s.Journal.Get(ctx, name)
}

// Ping проверяет доступность хранилища чанков.
func (s *Uploads) Ping(ctx context.Context) error {
	return s.Store.Ping(ctx)
}

// Sessions перечисляет незавершённые сессии.
func (s *Uploads) Sessions(ctx context.Context) ([]models.SessionInfo, error) {
	return s.Store.ListSessions(ctx)
}
