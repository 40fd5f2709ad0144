package chunkhttp

import (
	"net/http"

	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
)

// sessions перечисляет незавершённые сессии для администратора.
func (a *Server) sessions(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Sessions(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := chunkproto.SessionsResponse{Sessions: make([]chunkproto.Session, 0, len(list))}
	for _, si := range list {
		out.Sessions = append(out.Sessions, chunkproto.Session{
			Hash:      si.Key,
			Chunks:    si.Chunks,
			UpdatedAt: si.UpdatedAt.UTC(),
		})
	}

	a.writeJSON(w, r, http.StatusOK, out)
}
