package chunkhttp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sir_venger/chunk_lite/internal/models"
	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
)

// merge склеивает чанки сессии в файл с именем из запроса.
func (a *Server) merge(w http.ResponseWriter, r *http.Request) {
	var req chunkproto.MergeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, mergeBodyLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.fail(w, r, fmt.Errorf("%w: decode merge request: %w", models.ErrInvalidRequest, err))
		return
	}

	artifact, err := a.svc.Merge(r.Context(), models.MergeRequest{
		SessionKey:  req.Hash,
		Filename:    req.Filename,
		TotalChunks: req.Total,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := toProto(artifact)
	a.writeJSON(w, r, http.StatusOK, chunkproto.MergeResponse{Code: chunkproto.CodeOK, Artifact: &out})
}

func toProto(a models.Artifact) chunkproto.Artifact {
	return chunkproto.Artifact{
		Name:       a.Name,
		SessionKey: a.SessionKey,
		Size:       a.Size,
		Sha256:     a.Sha256,
		Chunks:     a.Chunks,
		MergedAt:   a.MergedAt,
	}
}
