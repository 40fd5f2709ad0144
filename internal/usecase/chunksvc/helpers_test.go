package chunksvc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sir_venger/chunk_lite/internal/chunkstore"
	"github.com/sir_venger/chunk_lite/internal/lock"
	"github.com/sir_venger/chunk_lite/internal/models"
	meta "github.com/sir_venger/chunk_lite/internal/repo"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc     *Uploads
	fs      *chunkstore.FS
	locker  *lock.Memory
	journal *meta.MemoryStore
}

func newEnv(t *testing.T, wrap func(*chunkstore.FS) chunkstore.Store) *testEnv {
	t.Helper()
	fs, err := chunkstore.NewFS(t.TempDir())
	require.NoError(t, err)

	var store chunkstore.Store = fs
	if wrap != nil {
		store = wrap(fs)
	}

	env := &testEnv{fs: fs, locker: lock.NewMemory(), journal: meta.NewMemoryStore()}
	env.svc = New(Deps{
		Store:             store,
		Locker:            env.locker,
		Journal:           env.journal,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxChunkSize:      1 << 20,
		RequireContiguous: true,
	})
	return env
}

func (e *testEnv) upload(t *testing.T, key string, index int, data string) {
	t.Helper()
	err := e.svc.Upload(context.Background(), models.UploadRequest{
		SessionKey: key,
		Index:      index,
		Body:       strings.NewReader(data),
		Size:       int64(len(data)),
	})
	require.NoError(t, err)
}

// requireUnlocked проверяет, что склейка отпустила блокировку сессии.
func (e *testEnv) requireUnlocked(t *testing.T, key string) {
	t.Helper()
	_, unlock, err := e.locker.TryLock(context.Background(), key)
	require.NoError(t, err)
	unlock()
}

func (e *testEnv) artifactPath(name string) string {
	return filepath.Join(e.fs.Root(), name)
}

func (e *testEnv) readArtifact(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(e.artifactPath(name))
	require.NoError(t, err)
	return string(b)
}

// rootFiles возвращает имена файлов в корне хранилища, кроме каталогов сессий.
func (e *testEnv) rootFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.fs.Root())
	require.NoError(t, err)
	var out []string
	for _, en := range entries {
		if !en.IsDir() {
			out = append(out, en.Name())
		}
	}
	return out
}

// faultStore подменяет тело чанка failAt читателем, который падает после первого байта.
type faultStore struct {
	*chunkstore.FS
	failAt int
	err    error
}

func (f *faultStore) ReadOrdered(ctx context.Context, key string) (chunkstore.Iterator, error) {
	it, err := f.FS.ReadOrdered(ctx, key)
	if err != nil {
		return nil, err
	}
	return &faultIterator{Iterator: it, failAt: f.failAt, err: f.err}, nil
}

type faultIterator struct {
	chunkstore.Iterator
	failAt int
	err    error
}

func (it *faultIterator) Next(ctx context.Context) (chunkstore.Chunk, error) {
	ch, err := it.Iterator.Next(ctx)
	if err != nil || ch.Index != it.failAt {
		return ch, err
	}
	ch.Body = io.NopCloser(io.MultiReader(io.LimitReader(ch.Body, 1), errReader{it.err}))
	return ch, nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// gateStore останавливает склейку на первом чанке, пока тест не откроет release.
// Если задан only, останавливается только эта сессия.
type gateStore struct {
	*chunkstore.FS
	only    string
	entered chan struct{}
	release chan struct{}
}

func newGateStore(fs *chunkstore.FS) *gateStore {
	return &gateStore{FS: fs, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateStore) ReadOrdered(ctx context.Context, key string) (chunkstore.Iterator, error) {
	it, err := g.FS.ReadOrdered(ctx, key)
	if err != nil || (g.only != "" && key != g.only) {
		return it, err
	}
	return &gateIterator{Iterator: it, g: g}, nil
}

type gateIterator struct {
	chunkstore.Iterator
	g      *gateStore
	passed bool
}

func (it *gateIterator) Next(ctx context.Context) (chunkstore.Chunk, error) {
	if !it.passed {
		it.passed = true
		close(it.g.entered)
		select {
		case <-it.g.release:
		case <-ctx.Done():
			return chunkstore.Chunk{}, ctx.Err()
		}
	}
	return it.Iterator.Next(ctx)
}

// failingCleanupStore отказывает в удалении сессии.
type failingCleanupStore struct {
	*chunkstore.FS
}

func (failingCleanupStore) DeleteSession(context.Context, string) error {
	return errors.Join(models.ErrStorage, errors.New("permission denied"))
}

// stealableLocker выдаёт блокировку, которую тест может отобрать через steal.
type stealableLocker struct {
	cancel context.CancelCauseFunc
}

func (l *stealableLocker) TryLock(ctx context.Context, _ string) (context.Context, func(), error) {
	held, cancel := context.WithCancelCause(ctx)
	l.cancel = cancel
	return held, func() { cancel(nil) }, nil
}

func (l *stealableLocker) steal() {
	l.cancel(lock.ErrLost)
}
