package chunkclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
	"github.com/stretchr/testify/require"
)

// fakeServer: минимальная реализация API в памяти.
type fakeServer struct {
	mu        sync.Mutex
	chunks    map[string]map[int][]byte
	artifacts map[string]chunkproto.Artifact
	uploads   atomic.Int32
	failNext  atomic.Int32
	busyNext  atomic.Int32
	// dropReply: склейка выполняется, но соединение рвётся до ответа
	dropReply atomic.Int32
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{chunks: map[string]map[int][]byte{}, artifacts: map[string]chunkproto.Artifact{}}
	mux := http.NewServeMux()
	mux.HandleFunc(chunkproto.PathCheck, fs.check)
	mux.HandleFunc(chunkproto.PathUpload, fs.upload)
	mux.HandleFunc(chunkproto.PathMerge, fs.merge)
	mux.HandleFunc("/api/artifacts/", fs.artifact)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return fs, ts
}

func (f *fakeServer) check(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := chunkproto.CheckResponse{Data: []int{}}
	for idx := range f.chunks[r.URL.Query().Get(chunkproto.QueryHash)] {
		out.Data = append(out.Data, idx)
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (f *fakeServer) upload(w http.ResponseWriter, r *http.Request) {
	if f.failNext.Add(-1) >= 0 {
		http.Error(w, `{"error":"temporarily unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	f.uploads.Add(1)

	file, _, err := r.FormFile(chunkproto.FieldFile)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(chunkproto.ErrorResponse{Error: err.Error()})
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	var idx int
	_ = json.Unmarshal([]byte(r.FormValue(chunkproto.FieldIndex)), &idx)

	f.mu.Lock()
	hash := r.FormValue(chunkproto.FieldHash)
	if f.chunks[hash] == nil {
		f.chunks[hash] = map[int][]byte{}
	}
	f.chunks[hash][idx] = data
	f.mu.Unlock()

	_ = json.NewEncoder(w).Encode(chunkproto.UploadResponse{})
}

func (f *fakeServer) merge(w http.ResponseWriter, r *http.Request) {
	if f.busyNext.Add(-1) >= 0 {
		w.Header().Set(chunkproto.HeaderRetryAfter, "0")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(chunkproto.ErrorResponse{Error: "merge in progress"})
		return
	}

	var req chunkproto.MergeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	session := f.chunks[req.Hash]
	if len(session) == 0 {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(chunkproto.ErrorResponse{Error: "empty session"})
		return
	}

	var out bytes.Buffer
	for i := 0; i < len(session); i++ {
		out.Write(session[i])
	}
	delete(f.chunks, req.Hash)

	a := chunkproto.Artifact{
		Name:       req.Filename,
		SessionKey: req.Hash,
		Size:       int64(out.Len()),
		Chunks:     req.Total,
	}
	f.artifacts[req.Filename] = a

	if f.dropReply.Add(-1) >= 0 {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			_ = conn.Close()
		}
		return
	}

	_ = json.NewEncoder(w).Encode(chunkproto.MergeResponse{Artifact: &a})
}

func (f *fakeServer) artifact(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	a, ok := f.artifacts[strings.TrimPrefix(r.URL.Path, "/api/artifacts/")]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(chunkproto.ErrorResponse{Error: "not found"})
		return
	}
	_ = json.NewEncoder(w).Encode(a)
}

func fastClient(url string, opts ...Option) *Client {
	return New(url, append([]Option{WithRetry(3, time.Millisecond, 5*time.Millisecond)}, opts...)...)
}

func TestCheckUploadMerge(t *testing.T) {
	_, ts := newFakeServer(t)
	c := fastClient(ts.URL)
	ctx := context.Background()

	got, err := c.Check(ctx, "abc")
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, c.UploadChunk(ctx, "abc", 0, []byte("hello")))
	got, err = c.Check(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, []int{0}, got)

	a, err := c.Merge(ctx, "abc", "out.bin", 1)
	require.NoError(t, err)
	require.Equal(t, int64(5), a.Size)
}

func TestMerge_LostReplyAfterCompletedMerge(t *testing.T) {
	srv, ts := newFakeServer(t)
	srv.dropReply.Store(1)
	c := fastClient(ts.URL)
	ctx := context.Background()

	require.NoError(t, c.UploadChunk(ctx, "abc", 0, []byte("hello")))

	// первая попытка склеила сессию, повтор видит пустую сессию
	a, err := c.Merge(ctx, "abc", "out.bin", 1)
	require.NoError(t, err)
	require.Equal(t, "abc", a.SessionKey)
	require.Equal(t, int64(5), a.Size)

	// чужой файл с тем же именем не делает склейку выполненной
	_, err = c.Merge(ctx, "other", "out.bin", 1)
	require.True(t, IsStatus(err, http.StatusNotFound), "got %v", err)
}

func TestUploadChunk_RetriesServerErrors(t *testing.T) {
	srv, ts := newFakeServer(t)
	srv.failNext.Store(2)
	c := fastClient(ts.URL)

	require.NoError(t, c.UploadChunk(context.Background(), "abc", 0, []byte("x")))
	require.Equal(t, int32(1), srv.uploads.Load())
}

func TestUploadChunk_GivesUpWithAPIError(t *testing.T) {
	srv, ts := newFakeServer(t)
	srv.failNext.Store(100)
	c := fastClient(ts.URL)

	err := c.UploadChunk(context.Background(), "abc", 0, []byte("x"))
	require.Error(t, err)
	require.True(t, IsStatus(err, http.StatusServiceUnavailable))
}

func TestMerge_RetriesWhileBusy(t *testing.T) {
	srv, ts := newFakeServer(t)
	c := fastClient(ts.URL)
	ctx := context.Background()

	require.NoError(t, c.UploadChunk(ctx, "abc", 0, []byte("x")))
	srv.busyNext.Store(2)

	_, err := c.Merge(ctx, "abc", "out.bin", 0)
	require.NoError(t, err)
}

func TestMerge_NotFoundIsNotRetried(t *testing.T) {
	_, ts := newFakeServer(t)
	c := fastClient(ts.URL)

	_, err := c.Merge(context.Background(), "nothing", "out.bin", 0)
	require.True(t, IsStatus(err, http.StatusNotFound))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "empty session", apiErr.Message)
}
