package models

import "time"

// SessionInfo описывает сессию загрузки так, как её видит хранилище чанков.
type SessionInfo struct {
	Key       string    `json:"key"`
	Chunks    int       `json:"chunks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Artifact содержит метаданные собранного файла.
type Artifact struct {
	Name       string    `json:"name"`
	SessionKey string    `json:"session_key"`
	Size       int64     `json:"size"`
	Sha256     string    `json:"sha256"`
	Chunks     int       `json:"chunks"`
	MergedAt   time.Time `json:"merged_at"`
}
