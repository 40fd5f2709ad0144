package chunkhttp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sir_venger/chunk_lite/internal/models"
)

// parseIndex разбирает индекс чанка: только десятичная запись без знака и ведущих нулей.
func parseIndex(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: chunk index is missing", models.ErrInvalidRequest)
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 || strconv.Itoa(idx) != raw {
		return 0, fmt.Errorf("%w: invalid chunk index %q", models.ErrInvalidRequest, raw)
	}
	return idx, nil
}
