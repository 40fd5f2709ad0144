package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSessionKey(t *testing.T) {
	good := []string{"5d41402abc4b2a76b9719d911017c592", "session-1", "a.b"}
	for _, k := range good {
		assert.NoError(t, ValidateSessionKey(k), k)
	}

	bad := []string{"", "   ", ".", "..", "../etc", "a/b", `a\b`, ".hidden", "a..b", "x\x00y", strings.Repeat("a", 256)}
	for _, k := range bad {
		err := ValidateSessionKey(k)
		assert.Error(t, err, "%q", k)
		assert.True(t, errors.Is(err, ErrInvalidRequest), "%q", k)
	}
}

func TestValidateFilenameAndIndex(t *testing.T) {
	assert.NoError(t, ValidateFilename("video.mp4"))
	assert.ErrorIs(t, ValidateFilename("../../passwd"), ErrInvalidRequest)
	assert.ErrorIs(t, ValidateFilename(""), ErrInvalidRequest)

	assert.NoError(t, ValidateIndex(0))
	assert.ErrorIs(t, ValidateIndex(-1), ErrInvalidRequest)
}
