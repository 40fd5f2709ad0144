package chunksvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/sir_venger/chunk_lite/internal/models"
)

// Upload сохраняет один чанк. Размер проверяется до записи, если он известен заранее;
// иначе запись обрывается, как только поток превысил лимит, и чанк не появляется в хранилище.
func (s *Uploads) Upload(ctx context.Context, req models.UploadRequest) error {
	if err := models.ValidateSessionKey(req.SessionKey); err != nil {
		return err
	}
	if err := models.ValidateIndex(req.Index); err != nil {
		return err
	}
	if req.Body == nil {
		return fmt.Errorf("%w: chunk body is missing", models.ErrInvalidRequest)
	}
	if s.MaxChunkSize > 0 && req.Size > s.MaxChunkSize {
		return fmt.Errorf("%w: chunk %d is %d bytes, limit is %d", models.ErrSizeLimit, req.Index, req.Size, s.MaxChunkSize)
	}

	body, err := newCheckedReader(req.Body, s.MaxChunkSize, req.Size, req.Sha256)
	if err != nil {
		return err
	}

	if err = s.Store.Put(ctx, req.SessionKey, req.Index, body); err != nil {
		s.Logger.Warn("chunk upload failed",
			"session", req.SessionKey, "index", req.Index, "error", err)
		return err
	}

	s.Logger.Debug("chunk stored",
		"session", req.SessionKey, "index", req.Index, "size", body.n)
	return nil
}

// checkedReader считает байты и хеш по мере чтения и превращает нарушение
// лимита, длины или контрольной суммы в ошибку чтения, чтобы хранилище отбросило запись.
type checkedReader struct {
	r       io.Reader
	limit   int64
	size    int64
	wantSha string
	h       hash.Hash
	n       int64
}

func newCheckedReader(r io.Reader, limit, size int64, sha string) (*checkedReader, error) {
	cr := &checkedReader{r: r, limit: limit, size: size}
	if sha = strings.ToLower(strings.TrimSpace(sha)); sha != "" {
		if _, err := hex.DecodeString(sha); err != nil || len(sha) != sha256.Size*2 {
			return nil, fmt.Errorf("%w: malformed sha256 %q", models.ErrInvalidRequest, sha)
		}
		cr.wantSha = sha
		cr.h = sha256.New()
	}
	return cr, nil
}

func (c *checkedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.h != nil && n > 0 {
		c.h.Write(p[:n])
	}

	if c.limit > 0 && c.n > c.limit {
		return n, fmt.Errorf("%w: chunk exceeds %d bytes", models.ErrSizeLimit, c.limit)
	}
	if err == io.EOF {
		if c.size > 0 && c.n != c.size {
			return n, fmt.Errorf("%w: size mismatch: declared %d, got %d", models.ErrInvalidRequest, c.size, c.n)
		}
		if c.h != nil {
			if got := hex.EncodeToString(c.h.Sum(nil)); got != c.wantSha {
				return n, fmt.Errorf("%w: sha256 mismatch: got %s", models.ErrInvalidRequest, got)
			}
		}
	}
	return n, err
}
