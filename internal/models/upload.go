package models

import "io"

// UploadRequest описывает один чанк сессии, уже извлечённый из транспорта.
type UploadRequest struct {
	SessionKey string
	Index      int
	Body       io.Reader
	// Size: объявленная длина чанка; 0 или меньше означает, что длина заранее неизвестна.
	Size int64
	// Sha256: необязательная hex-сумма чанка от клиента.
	Sha256 string
}

// MergeRequest описывает запрос на склейку сессии в итоговый файл.
type MergeRequest struct {
	SessionKey string
	Filename   string
	// TotalChunks: ожидаемое число чанков; 0 означает «не проверять».
	TotalChunks int
}
