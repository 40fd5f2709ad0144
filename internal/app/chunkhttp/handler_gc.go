package chunkhttp

import (
	"net/http"

	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
)

// gcOnce вручную запускает удаление брошенных сессий.
func (a *Server) gcOnce(w http.ResponseWriter, r *http.Request) {
	removed, err := a.svc.Sweep(r.Context(), a.gcTTL)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.writeJSON(w, r, http.StatusOK, chunkproto.GCResponse{Removed: removed})
}
