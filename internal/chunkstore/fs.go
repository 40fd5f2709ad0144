package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sir_venger/chunk_lite/internal/models"
)

const (
	tmpChunkPrefix    = ".chunk-"
	tmpArtifactPrefix = ".artifact-"
	dirPerm           = 0o755
	filePerm          = 0o644
)

// FS хранит чанки на локальном диске:
//
//	<root>/<sessionKey>/<index>  — чанки сессии;
//	<root>/<filename>            — собранные файлы.
type FS struct {
	root string
}

var _ Store = (*FS)(nil)

// NewFS создаёт файловое хранилище поверх каталога root, создавая его при необходимости.
func NewFS(root string) (*FS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("upload root is empty")
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, storageErr("create upload root", err)
	}
	return &FS{root: root}, nil
}

// Root возвращает корневой каталог хранилища.
func (s *FS) Root() string {
	return s.root
}

func (s *FS) sessionDir(key string) (string, error) {
	if err := models.ValidateSessionKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, key), nil
}

// Put пишет чанк во временный файл и переименовывает его в <index>, поэтому
// читатели никогда не видят недописанный чанк.
func (s *FS) Put(ctx context.Context, key string, index int, r io.Reader) (err error) {
	if err = models.ValidateIndex(index); err != nil {
		return err
	}
	dir, err := s.sessionDir(key)
	if err != nil {
		return err
	}
	if fi, statErr := os.Lstat(dir); statErr == nil && !fi.IsDir() {
		return fmt.Errorf("%w: session key %s is taken by a merged file", models.ErrInvalidRequest, key)
	}
	if err = os.MkdirAll(dir, dirPerm); err != nil {
		return storageErr("create session dir", err)
	}

	tmpPath := filepath.Join(dir, tmpChunkPrefix+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return storageErr("create chunk file", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(f, ContextReader(ctx, r)); err != nil {
		return storageErr(fmt.Sprintf("write chunk %d", index), err)
	}
	if err = f.Sync(); err != nil {
		return storageErr(fmt.Sprintf("sync chunk %d", index), err)
	}
	if err = f.Close(); err != nil {
		return storageErr(fmt.Sprintf("close chunk %d", index), err)
	}

	if err = os.Rename(tmpPath, filepath.Join(dir, strconv.Itoa(index))); err != nil {
		return storageErr(fmt.Sprintf("commit chunk %d", index), err)
	}

	return nil
}

// ListIndices читает каталог сессии и оставляет только файлы с числовыми именами.
func (s *FS) ListIndices(_ context.Context, key string) ([]int, error) {
	dir, err := s.sessionDir(key)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []int{}, nil
		}
		return nil, storageErr("list session", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}

	return sortedIndices(names), nil
}

// ReadOrdered возвращает итератор, открывающий файлы чанков по одному.
func (s *FS) ReadOrdered(ctx context.Context, key string) (Iterator, error) {
	indices, err := s.ListIndices(ctx, key)
	if err != nil {
		return nil, err
	}
	dir, _ := s.sessionDir(key)

	return newOrderedIterator(indices, func(_ context.Context, idx int) (io.ReadCloser, error) {
		return os.Open(filepath.Join(dir, strconv.Itoa(idx)))
	}), nil
}

// DeleteSession удаляет каталог сессии целиком.
func (s *FS) DeleteSession(_ context.Context, key string) error {
	dir, err := s.sessionDir(key)
	if err != nil {
		return err
	}
	// RemoveAll возвращает nil для отсутствующего пути.
	if err = os.RemoveAll(dir); err != nil {
		return storageErr("delete session", err)
	}
	return nil
}

// CreateArtifact открывает скрытый временный файл в корне; Commit переименовывает его в name.
func (s *FS) CreateArtifact(_ context.Context, name string) (ArtifactWriter, error) {
	if err := models.ValidateFilename(name); err != nil {
		return nil, err
	}

	path := filepath.Join(s.root, name)
	// Файлы и каталоги сессий делят одно пространство имён в корне.
	if fi, err := os.Lstat(path); err == nil && fi.IsDir() {
		return nil, fmt.Errorf("%w: filename %s is taken by an upload session", models.ErrInvalidRequest, name)
	}

	tmpPath := filepath.Join(s.root, tmpArtifactPrefix+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, storageErr("create artifact", err)
	}

	return &fsArtifact{
		f:       f,
		tmpPath: tmpPath,
		path:    path,
	}, nil
}

// ListSessions перечисляет каталоги сессий; время изменения каталога меняется при каждом новом чанке.
func (s *FS) ListSessions(ctx context.Context) ([]models.SessionInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, storageErr("list sessions", err)
	}

	var out []models.SessionInfo
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		info, err := e.Info()
		if err != nil {
			// Каталог мог исчезнуть после ReadDir, например его удалил merge.
			continue
		}
		indices, err := s.ListIndices(ctx, e.Name())
		if err != nil {
			continue
		}

		out = append(out, models.SessionInfo{
			Key:       e.Name(),
			Chunks:    len(indices),
			UpdatedAt: info.ModTime(),
		})
	}

	return out, nil
}

// PurgeStaged удаляет файлы .artifact-* в корне, которые не менялись с before.
func (s *FS) PurgeStaged(ctx context.Context, before time.Time) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, storageErr("list staged artifacts", err)
	}

	removed := 0
	for _, e := range entries {
		if err = ctx.Err(); err != nil {
			return removed, err
		}
		if !e.Type().IsRegular() || !strings.HasPrefix(e.Name(), tmpArtifactPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if err = os.Remove(filepath.Join(s.root, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, storageErr("remove staged artifact", err)
		}
		removed++
	}

	return removed, nil
}

// Ping проверяет, что корень хранилища существует и это каталог.
func (s *FS) Ping(context.Context) error {
	fi, err := os.Stat(s.root)
	if err != nil {
		return storageErr("stat upload root", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: upload root %s is not a directory", models.ErrStorage, s.root)
	}
	return nil
}

type fsArtifact struct {
	f       *os.File
	tmpPath string
	path    string
	done    bool
}

func (a *fsArtifact) Write(p []byte) (int, error) {
	n, err := a.f.Write(p)
	if err != nil {
		return n, storageErr("write artifact", err)
	}
	return n, nil
}

func (a *fsArtifact) Commit() error {
	if a.done {
		return fmt.Errorf("artifact already finished")
	}
	a.done = true

	if err := a.f.Sync(); err != nil {
		_ = a.f.Close()
		_ = os.Remove(a.tmpPath)
		return storageErr("sync artifact", err)
	}
	if err := a.f.Close(); err != nil {
		_ = os.Remove(a.tmpPath)
		return storageErr("close artifact", err)
	}
	if err := os.Rename(a.tmpPath, a.path); err != nil {
		_ = os.Remove(a.tmpPath)
		return storageErr("publish artifact", err)
	}

	return nil
}

func (a *fsArtifact) Abort() error {
	if a.done {
		return nil
	}
	a.done = true

	_ = a.f.Close()
	if err := os.Remove(a.tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("remove partial artifact", err)
	}
	return nil
}
