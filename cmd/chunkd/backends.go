package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/sir_venger/chunk_lite/internal/chunkstore"
	"github.com/sir_venger/chunk_lite/internal/config"
	"github.com/sir_venger/chunk_lite/internal/lock"
)

// openStore выбирает хранилище чанков по storage.backend.
func openStore(ctx context.Context, cfg *config.Config) (chunkstore.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendS3:
		s3cfg := cfg.Storage.S3
		store, err := chunkstore.NewS3(ctx, chunkstore.S3Params{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Prefix:          s3cfg.Prefix,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			PartSize:        int64(s3cfg.PartSize),
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 store: %w", err)
		}
		return store, nil
	default:
		store, err := chunkstore.NewFS(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("open fs store: %w", err)
		}
		return store, nil
	}
}

// openLocker возвращает блокировщик склеек и функцию закрытия его соединений.
func openLocker(ctx context.Context, cfg *config.Config, log *slog.Logger) (lock.Locker, func(), error) {
	if cfg.Merge.Lock != config.LockRedis {
		return lock.NewMemory(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Merge.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Merge.RedisAddr, err)
	}

	return lock.NewRedis(client, cfg.Merge.LockTTL, log), func() { _ = client.Close() }, nil
}
