package chunkhttp

import (
	"net/http"

	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
)

// health отвечает, доступно ли хранилище. Сессии не перечисляются: проба должна быть дешёвой.
func (a *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Ping(r.Context()); err != nil {
		a.log.Warn("health check failed", "error", err)
		a.writeJSON(w, r, http.StatusServiceUnavailable, chunkproto.HealthResponse{OK: false})
		return
	}

	a.writeJSON(w, r, http.StatusOK, chunkproto.HealthResponse{OK: true})
}
