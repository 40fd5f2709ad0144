// Package chunkproto описывает HTTP-протокол сервиса чанковой загрузки: пути, поля форм и тела ответов.
package chunkproto

import "time"

// Пути API.
const (
	PathCheck          = "/api/check"
	PathUpload         = "/api/upload"
	PathChunkFormat    = "/api/chunks/%s/%d"
	PathMerge          = "/api/merge"
	PathArtifactFormat = "/api/artifacts/%s"
	PathHealth         = "/health"
	PathGC             = "/admin/gc"
	PathSessions       = "/admin/sessions"
)

// Поля multipart-формы и query-параметры.
const (
	QueryHash   = "hash"
	FieldHash   = "hash"
	FieldIndex  = "index"
	FieldSha256 = "sha256"
	FieldFile   = "files"
)

const (
	HeaderChecksum   = "X-Checksum-Sha256"
	HeaderRetryAfter = "Retry-After"
)

// CodeOK: значение поля code в успешных ответах.
const CodeOK = 0

type CheckResponse struct {
	Data []int `json:"data"`
}

type UploadResponse struct {
	Code int `json:"code"`
}

type MergeRequest struct {
	Hash     string `json:"hash"`
	Filename string `json:"filename"`
	// Total: ожидаемое число чанков; 0 означает «не проверять».
	Total int `json:"total,omitempty"`
}

type MergeResponse struct {
	Code     int       `json:"code"`
	Artifact *Artifact `json:"artifact,omitempty"`
}

// Artifact: метаданные собранного файла.
type Artifact struct {
	Name       string    `json:"name"`
	SessionKey string    `json:"hash"`
	Size       int64     `json:"size"`
	Sha256     string    `json:"sha256"`
	Chunks     int       `json:"chunks"`
	MergedAt   time.Time `json:"merged_at"`
}

type GCResponse struct {
	Removed int `json:"removed"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

// Session: незавершённая сессия загрузки.
type Session struct {
	Hash      string    `json:"hash"`
	Chunks    int       `json:"chunks"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
