package chunkhttp

import (
	"net/http"

	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
)

// check возвращает индексы уже загруженных чанков, чтобы клиент докачал только недостающие.
func (a *Server) check(w http.ResponseWriter, r *http.Request) {
	indices, err := a.svc.Status(r.Context(), r.URL.Query().Get(chunkproto.QueryHash))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.writeJSON(w, r, http.StatusOK, chunkproto.CheckResponse{Data: indices})
}
