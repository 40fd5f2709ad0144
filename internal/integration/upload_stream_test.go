package integration

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
	"github.com/stretchr/testify/require"
)

// Чанки без multipart: тело PUT стримится в хранилище как есть.
func TestRawChunksAndMerge(t *testing.T) {
	st := newStack(t, 0)

	payload := bytes.Repeat([]byte("0123456789abcdef"), 1024) // 16 KiB
	const chunk = 5000
	total := 0
	for off := 0; off < len(payload); off += chunk {
		end := min(off+chunk, len(payload))
		// io.MultiReader скрывает длину, и запрос уходит chunked.
		body := io.MultiReader(bytes.NewReader(payload[off:end]))
		req, err := http.NewRequest(http.MethodPut, st.server.URL+fmt.Sprintf(chunkproto.PathChunkFormat, "stream", total), body)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		total++
	}

	resp, _, err := postJSON(st.server.URL+chunkproto.PathMerge, chunkproto.MergeRequest{Hash: "stream", Filename: "stream.bin", Total: total})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := os.ReadFile(filepath.Join(st.root, "stream.bin"))
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, got), "downloaded data mismatch, got %d bytes want %d", len(got), len(payload))
}
