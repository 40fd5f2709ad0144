// Package lock гарантирует, что по одному ключу сессии одновременно идёт не больше одной склейки.
package lock

import (
	"context"
	"fmt"

	"github.com/sir_venger/chunk_lite/internal/models"
)

// ErrLost означает, что блокировку перехватил другой владелец, пока склейка ещё шла.
var ErrLost = fmt.Errorf("%w: merge lock lost", models.ErrMergeInProgress)

// Locker выдаёт эксклюзивную блокировку на ключ без ожидания.
// Если блокировка уже занята, TryLock возвращает models.ErrMergeInProgress.
//
// Возвращённый контекст живёт, пока блокировка наша: он отменяется при unlock,
// при отмене ctx и при потере блокировки (тогда context.Cause возвращает ErrLost).
// Работа под блокировкой должна идти с этим контекстом.
type Locker interface {
	TryLock(ctx context.Context, key string) (held context.Context, unlock func(), err error)
}
