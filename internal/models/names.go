package models

import (
	"fmt"
	"strings"
)

const maxNameLength = 255

// ValidateSessionKey проверяет, что ключ сессии можно безопасно использовать как имя каталога.
func ValidateSessionKey(key string) error {
	if err := validateName(key); err != nil {
		return fmt.Errorf("%w: session key: %v", ErrInvalidRequest, err)
	}
	return nil
}

// ValidateFilename проверяет имя итогового файла.
func ValidateFilename(name string) error {
	if err := validateName(name); err != nil {
		return fmt.Errorf("%w: filename: %v", ErrInvalidRequest, err)
	}
	return nil
}

// ValidateIndex проверяет номер чанка.
func ValidateIndex(idx int) error {
	if idx < 0 {
		return fmt.Errorf("%w: chunk index must be non-negative, got %d", ErrInvalidRequest, idx)
	}
	return nil
}

func validateName(s string) error {
	switch {
	case strings.TrimSpace(s) == "":
		return fmt.Errorf("must not be empty")
	case len(s) > maxNameLength:
		return fmt.Errorf("longer than %d bytes", maxNameLength)
	case s == "." || s == "..":
		return fmt.Errorf("%q is not allowed", s)
	// Имена с точкой в начале зарезервированы под временные файлы хранилища.
	case strings.HasPrefix(s, "."):
		return fmt.Errorf("must not start with a dot")
	case strings.ContainsAny(s, "/\\\x00"):
		return fmt.Errorf("must not contain path separators")
	case strings.Contains(s, ".."):
		return fmt.Errorf("must not contain %q", "..")
	}
	return nil
}
