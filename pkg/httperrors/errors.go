// Package httperrors переводит ошибки сервиса в HTTP-ответы.
package httperrors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sir_venger/chunk_lite/internal/models"
	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
)

// RetryAfter: подсказка клиенту, через сколько секунд повторить склейку.
const RetryAfter = 5

// Status возвращает HTTP-код для ошибки.
func Status(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, models.ErrSizeLimit):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrEmptySession), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrIncompleteSession), errors.Is(err, models.ErrMergeInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Write пишет ошибку в виде {"error": "..."} с подходящим статусом.
func Write(w http.ResponseWriter, err error) {
	status := Status(err)
	if errors.Is(err, models.ErrMergeInProgress) {
		w.Header().Set(chunkproto.HeaderRetryAfter, strconv.Itoa(RetryAfter))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(chunkproto.ErrorResponse{Error: err.Error()})
}
