package chunksvc

import (
	"context"
	"errors"
	"time"

	"github.com/sir_venger/chunk_lite/internal/models"
)

// Sweep удаляет сессии, в которые не приходили чанки дольше ttl, и возвращает их число.
// Сессии с идущей склейкой пропускаются. Заодно удаляются недописанные итоговые
// файлы старше ttl, оставшиеся после падения посреди склейки.
func (s *Uploads) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}

	sessions, err := s.Store.ListSessions(ctx)
	if err != nil {
		return 0, err
	}

	now := s.Now()
	removed := 0
	for _, si := range sessions {
		if now.Sub(si.UpdatedAt) < ttl {
			continue
		}

		_, unlock, err := s.Locker.TryLock(ctx, si.Key)
		if err != nil {
			if !errors.Is(err, models.ErrMergeInProgress) {
				s.Logger.Warn("gc: lock session failed", "session", si.Key, "error", err)
			}
			continue
		}
		err = s.Store.DeleteSession(ctx, si.Key)
		unlock()
		if err != nil {
			s.Logger.Warn("gc: delete session failed", "session", si.Key, "error", err)
			continue
		}

		removed++
		s.Logger.Info("gc: stale session removed",
			"session", si.Key, "chunks", si.Chunks, "idle", now.Sub(si.UpdatedAt).Round(time.Second))
	}

	staged, err := s.Store.PurgeStaged(ctx, now.Add(-ttl))
	if err != nil {
		s.Logger.Warn("gc: purge staged artifacts failed", "error", err)
	} else if staged > 0 {
		s.Logger.Info("gc: staged artifacts removed", "count", staged)
	}

	return removed, nil
}

// RunGC периодически запускает Sweep, пока не отменён контекст.
func (s *Uploads) RunGC(ctx context.Context, ttl, every time.Duration) error {
	if every <= 0 || ttl <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx, ttl); err != nil && ctx.Err() == nil {
				s.Logger.Warn("gc: sweep failed", "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
