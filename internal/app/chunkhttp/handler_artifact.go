package chunkhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// artifact отдаёт запись журнала о собранном файле.
func (a *Server) artifact(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Artifact(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.writeJSON(w, r, http.StatusOK, toProto(res))
}
