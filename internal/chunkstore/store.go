// Package chunkstore хранит чанки сессий загрузки и собирает из них итоговые файлы.
//
// Состояние сессии целиком выводится из содержимого хранилища: набор чанков,
// который вернул ListIndices, и есть статус сессии. Отдельного кеша нет.
package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/sir_venger/chunk_lite/internal/models"
)

// Store описывает хранилище чанков.
type Store interface {
	// Put атомарно записывает чанк: он либо сохранён целиком, либо отсутствует.
	// Повторная запись того же индекса перезаписывает данные.
	Put(ctx context.Context, key string, index int, r io.Reader) error
	// ListIndices возвращает индексы чанков по возрастанию; для неизвестной сессии пустой срез.
	ListIndices(ctx context.Context, key string) ([]int, error)
	// ReadOrdered открывает однопроходный итератор по чанкам в порядке возрастания индекса.
	ReadOrdered(ctx context.Context, key string) (Iterator, error)
	// DeleteSession рекурсивно удаляет сессию; отсутствие сессии не ошибка.
	DeleteSession(ctx context.Context, key string) error
	// CreateArtifact готовит запись итогового файла, видимого только после Commit.
	CreateArtifact(ctx context.Context, name string) (ArtifactWriter, error)
	// ListSessions перечисляет известные хранилищу сессии.
	ListSessions(ctx context.Context) ([]models.SessionInfo, error)
	// PurgeStaged удаляет недописанные итоговые файлы, начатые раньше before,
	// и возвращает их число. Такие файлы остаются после падения процесса посреди склейки.
	PurgeStaged(ctx context.Context, before time.Time) (int, error)
	// Ping проверяет, что хранилище доступно.
	Ping(ctx context.Context) error
}

// Chunk: один чанк из итератора. Body принадлежит итератору и действителен до следующего Next или Close.
type Chunk struct {
	Index int
	Body  io.ReadCloser
}

// Iterator выдаёт чанки сессии по возрастанию индекса; после последнего чанка Next возвращает io.EOF.
// Набор индексов фиксируется при создании итератора.
type Iterator interface {
	Indices() []int
	Next(ctx context.Context) (Chunk, error)
	Close() error
}

// ArtifactWriter принимает байты итогового файла.
// Commit публикует файл под итоговым именем, Abort удаляет всё записанное.
type ArtifactWriter interface {
	io.Writer
	Commit() error
	Abort() error
}

type openFunc func(ctx context.Context, index int) (io.ReadCloser, error)

// orderedIterator открывает чанки лениво, по одному, в заранее отсортированном порядке.
type orderedIterator struct {
	indices []int
	pos     int
	open    openFunc
	current io.ReadCloser
}

func newOrderedIterator(indices []int, open openFunc) *orderedIterator {
	return &orderedIterator{indices: indices, open: open}
}

func (it *orderedIterator) Indices() []int {
	return slices.Clone(it.indices)
}

func (it *orderedIterator) Next(ctx context.Context) (Chunk, error) {
	it.closeCurrent()

	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if it.pos >= len(it.indices) {
		return Chunk{}, io.EOF
	}

	idx := it.indices[it.pos]
	it.pos++

	rc, err := it.open(ctx, idx)
	if err != nil {
		return Chunk{}, storageErr(fmt.Sprintf("open chunk %d", idx), err)
	}
	it.current = rc

	return Chunk{Index: idx, Body: rc}, nil
}

func (it *orderedIterator) Close() error {
	it.closeCurrent()
	it.pos = len(it.indices)
	return nil
}

func (it *orderedIterator) closeCurrent() {
	if it.current != nil {
		_ = it.current.Close()
		it.current = nil
	}
}

// parseIndex принимает только каноничную десятичную запись неотрицательного числа.
func parseIndex(name string) (int, bool) {
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 || strconv.Itoa(n) != name {
		return 0, false
	}
	return n, true
}

func sortedIndices(names []string) []int {
	out := make([]int, 0, len(names))
	for _, name := range names {
		if idx, ok := parseIndex(name); ok {
			out = append(out, idx)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// storageErr оборачивает ошибку ввода-вывода в ErrStorage, сохраняя ошибки других видов как есть.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isPassthrough(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", models.ErrStorage, op, err)
}

func isPassthrough(err error) bool {
	return errors.Is(err, models.ErrStorage) ||
		errors.Is(err, models.ErrSizeLimit) ||
		errors.Is(err, models.ErrInvalidRequest) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ContextReader возвращает reader, который прерывает чтение, как только контекст отменён.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
