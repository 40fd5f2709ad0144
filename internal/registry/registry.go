// Package registry отвечает на вопрос «какие чанки сессии уже получены».
//
// Собственного состояния у реестра нет: статус всегда читается из хранилища чанков,
// поэтому кеш не может разойтись с реальным набором файлов.
package registry

import (
	"context"

	"github.com/sir_venger/chunk_lite/internal/models"
)

// IndexLister: часть хранилища чанков, нужная реестру.
type IndexLister interface {
	ListIndices(ctx context.Context, key string) ([]int, error)
}

// Registry выводит статус сессий из хранилища.
type Registry struct {
	store IndexLister
}

// New создаёт реестр поверх хранилища.
func New(store IndexLister) *Registry {
	return &Registry{store: store}
}

// Status возвращает индексы полученных чанков по возрастанию.
// Неизвестная сессия даёт пустой статус, а не ошибка.
func (r *Registry) Status(ctx context.Context, key string) ([]int, error) {
	if err := models.ValidateSessionKey(key); err != nil {
		return nil, err
	}

	indices, err := r.store.ListIndices(ctx, key)
	if err != nil {
		return nil, err
	}
	if indices == nil {
		indices = []int{}
	}

	return indices, nil
}
