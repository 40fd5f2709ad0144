package chunkhttp

import (
	"encoding/json"
	"net/http"

	"github.com/sir_venger/chunk_lite/internal/logger"
	"github.com/sir_venger/chunk_lite/pkg/httperrors"
)

func (a *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromRequest(r.Context(), a.log).Warn("write response failed", "error", err)
	}
}

// fail пишет ошибку клиенту; 5xx дополнительно попадают в лог.
func (a *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httperrors.Status(err) >= http.StatusInternalServerError {
		logger.FromRequest(r.Context(), a.log).Error("request failed", "path", r.URL.Path, "error", err)
	}
	httperrors.Write(w, err)
}
