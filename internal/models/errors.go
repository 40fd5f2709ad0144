package models

import "errors"

// Виды ошибок ядра. Конкретные ошибки оборачивают их через fmt.Errorf("%w: ...").
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrStorage           = errors.New("storage error")
	ErrEmptySession      = errors.New("empty session")
	ErrIncompleteSession = errors.New("incomplete session")
	ErrMergeInProgress   = errors.New("merge in progress")
	ErrSizeLimit         = errors.New("size limit exceeded")
	ErrNotFound          = errors.New("not found")
)
