package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sir_venger/chunk_lite/internal/app/chunkhttp"
	"github.com/sir_venger/chunk_lite/internal/chunkstore"
	"github.com/sir_venger/chunk_lite/internal/logger"
	meta "github.com/sir_venger/chunk_lite/internal/repo"
	"github.com/sir_venger/chunk_lite/internal/usecase/chunksvc"
	"github.com/sir_venger/chunk_lite/pkg/chunkclient"
	"github.com/stretchr/testify/require"
)

// stack поднимает сервис целиком поверх файлового хранилища во временном каталоге.
type stack struct {
	root   string
	server *httptest.Server
	client *chunkclient.Client
}

func newStack(t *testing.T, gcTTL time.Duration) *stack {
	t.Helper()
	root := t.TempDir()
	store, err := chunkstore.NewFS(root)
	require.NoError(t, err)

	journal, err := meta.Open(context.Background(), meta.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(journal.Close)

	svc := chunksvc.New(chunksvc.Deps{
		Store:             store,
		Journal:           journal,
		Logger:            logger.Discard(),
		MaxChunkSize:      1 << 20,
		RequireContiguous: true,
	})
	srv := httptest.NewServer(chunkhttp.New(chunkhttp.Options{
		Service:      svc,
		Logger:       logger.Discard(),
		MaxChunkSize: 1 << 20,
		GCTTL:        gcTTL,
	}))
	t.Cleanup(srv.Close)

	return &stack{
		root:   root,
		server: srv,
		client: chunkclient.New(srv.URL, chunkclient.WithRetry(2, time.Millisecond, 10*time.Millisecond)),
	}
}

func postJSON(url string, payload any) (*http.Response, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	return resp, body, nil
}
