package chunksvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/sir_venger/chunk_lite/internal/chunkstore"
	"github.com/sir_venger/chunk_lite/internal/lock"
	"github.com/sir_venger/chunk_lite/internal/models"
)

// Merge склеивает чанки сессии по возрастанию индекса в файл req.Filename.
//
// На одну сессию одновременно выполняется не больше одной склейки: второй вызов
// получает ErrMergeInProgress. При любой ошибке во время склейки недописанный файл
// удаляется, а чанки остаются на месте для повторной попытки. После успешной
// публикации файла сессия удаляется.
func (s *Uploads) Merge(ctx context.Context, req models.MergeRequest) (models.Artifact, error) {
	if err := models.ValidateSessionKey(req.SessionKey); err != nil {
		return models.Artifact{}, err
	}
	if err := models.ValidateFilename(req.Filename); err != nil {
		return models.Artifact{}, err
	}
	if req.TotalChunks < 0 {
		return models.Artifact{}, fmt.Errorf("%w: total chunks must be non-negative", models.ErrInvalidRequest)
	}

	held, unlock, err := s.Locker.TryLock(ctx, req.SessionKey)
	if err != nil {
		return models.Artifact{}, err
	}
	defer unlock()

	log := s.Logger.With("session", req.SessionKey, "filename", req.Filename)

	it, err := s.Store.ReadOrdered(held, req.SessionKey)
	if err != nil {
		return models.Artifact{}, err
	}
	defer it.Close()

	indices := it.Indices()
	if len(indices) == 0 {
		return models.Artifact{}, fmt.Errorf("%w: session %s has no chunks", models.ErrEmptySession, req.SessionKey)
	}
	if err = checkCoverage(indices, req.TotalChunks, s.RequireContiguous); err != nil {
		return models.Artifact{}, err
	}

	artifact, err := s.concat(held, it, req.Filename)
	if err != nil {
		if cause := context.Cause(held); errors.Is(cause, lock.ErrLost) {
			err = cause
		}
		log.Error("merge failed, chunks kept for retry", "error", err)
		return models.Artifact{}, err
	}
	artifact.SessionKey = req.SessionKey
	artifact.MergedAt = s.Now().UTC()

	// Файл уже опубликован: доводим учёт и очистку до конца, даже если клиент отвалился.
	cleanupCtx := context.WithoutCancel(ctx)

	if s.Journal != nil {
		if err = s.Journal.Save(cleanupCtx, artifact); err != nil {
			log.Error("record artifact failed", "error", err)
			return models.Artifact{}, fmt.Errorf("%w: record artifact: %w", models.ErrStorage, err)
		}
	}

	if err = s.Store.DeleteSession(cleanupCtx, req.SessionKey); err != nil {
		log.Error("artifact published but session cleanup failed", "error", err)
		return models.Artifact{}, err
	}

	log.Info("session merged",
		"chunks", artifact.Chunks, "size", artifact.Size, "sha256", artifact.Sha256)
	return artifact, nil
}

// concat пишет чанки строго последовательно: следующий чанк начинается только
// после того, как предыдущий полностью записан.
func (s *Uploads) concat(ctx context.Context, it chunkstore.Iterator, filename string) (a models.Artifact, err error) {
	w, err := s.Store.CreateArtifact(ctx, filename)
	if err != nil {
		return models.Artifact{}, err
	}
	defer func() {
		if err == nil {
			return
		}
		if abortErr := w.Abort(); abortErr != nil {
			s.Logger.Warn("remove partial artifact failed", "filename", filename, "error", abortErr)
		}
	}()

	h := sha256.New()
	dst := io.MultiWriter(w, h)

	for {
		chunk, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Artifact{}, err
		}

		n, err := io.Copy(dst, chunkstore.ContextReader(ctx, chunk.Body))
		if err != nil {
			return models.Artifact{}, copyErr(chunk.Index, err)
		}
		a.Size += n
		a.Chunks++
	}

	// Блокировка могла потеряться на последнем чанке: не публикуем файл без неё.
	if err = ctx.Err(); err != nil {
		return models.Artifact{}, err
	}
	if err = w.Commit(); err != nil {
		return models.Artifact{}, err
	}

	a.Name = filename
	a.Sha256 = hex.EncodeToString(h.Sum(nil))
	return a, nil
}

// checkCoverage проверяет, что индексы образуют непрерывный ряд 0..N-1.
// Без total и без RequireContiguous склейка идёт по тем индексам, что есть.
func checkCoverage(indices []int, total int, contiguous bool) error {
	if total > 0 && (len(indices) != total || indices[len(indices)-1] != total-1) {
		if missing, ok := firstMissing(indices); ok && missing < total {
			return fmt.Errorf("%w: have %d of %d chunks, chunk %d is missing",
				models.ErrIncompleteSession, len(indices), total, missing)
		}
		return fmt.Errorf("%w: have %d chunks, expected %d", models.ErrIncompleteSession, len(indices), total)
	}
	if !contiguous {
		return nil
	}
	if missing, ok := firstMissing(indices); ok {
		return fmt.Errorf("%w: chunk %d is missing", models.ErrIncompleteSession, missing)
	}
	return nil
}

// firstMissing возвращает первый пропущенный индекс в отсортированном наборе.
func firstMissing(indices []int) (int, bool) {
	for i, idx := range indices {
		if idx != i {
			return i, true
		}
	}
	return 0, false
}

func copyErr(index int, err error) error {
	if errors.Is(err, models.ErrStorage) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: copy chunk %d: %w", models.ErrStorage, index, err)
}
