package lock

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sir_venger/chunk_lite/internal/models"
)

//go:embed release.lua
var releaseScript string

//go:embed extend.lua
var extendScript string

const (
	defaultRedisTTL = 10 * time.Minute
	redisKeyPrefix  = "chunk_lite:merge:"
	redisOpTimeout  = 5 * time.Second
)

// Redis держит блокировки для нескольких инстансов сервиса над общим хранилищем.
// TTL страхует от блокировки, навсегда оставшейся после падения процесса; пока
// владелец жив, фоновая горутина продлевает ключ каждые ttl/3.
type Redis struct {
	client  *redis.Client
	release *redis.Script
	extend  *redis.Script
	ttl     time.Duration
	logger  *slog.Logger
}

var _ Locker = (*Redis)(nil)

// NewRedis создаёт блокировщик поверх клиента Redis.
func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client:  client,
		release: redis.NewScript(releaseScript),
		extend:  redis.NewScript(extendScript),
		ttl:     ttl,
		logger:  logger,
	}
}

// TryLock выполняет SET NX PX и запускает продление ключа.
// Освобождение и продление проверяют токен Lua-скриптом, поэтому чужой ключ не трогается.
func (r *Redis) TryLock(ctx context.Context, key string) (context.Context, func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: acquire merge lock: %w", models.ErrStorage, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: session %s", models.ErrMergeInProgress, key)
	}

	heldCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(cancel, key, redisKey, token, stop, done)

	var once sync.Once
	return heldCtx, func() {
		once.Do(func() {
			close(stop)
			<-done
			cancel(nil)

			// Контекст запроса к этому моменту может быть уже отменён.
			releaseCtx, cancelRelease := context.WithTimeout(context.Background(), redisOpTimeout)
			defer cancelRelease()
			if err := r.release.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil {
				r.logger.Warn("release merge lock failed", "key", key, "error", err)
			}
		})
	}, nil
}

// keepAlive продлевает ключ до закрытия stop. Если ключ уже принадлежит
// другому владельцу или истёк, контекст блокировки отменяется с ErrLost.
// Ошибка связи с Redis не считается потерей: ключ может быть ещё нашим.
func (r *Redis) keepAlive(cancel context.CancelCauseFunc, key, redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(max(r.ttl/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancelOp := context.WithTimeout(context.Background(), redisOpTimeout)
		extended, err := r.extend.Run(ctx, r.client, []string{redisKey}, token, r.ttl.Milliseconds()).Int64()
		cancelOp()

		if err != nil {
			r.logger.Warn("extend merge lock failed", "key", key, "error", err)
			continue
		}
		if extended == 0 {
			r.logger.Error("merge lock lost", "key", key)
			cancel(ErrLost)
			return
		}
	}
}
