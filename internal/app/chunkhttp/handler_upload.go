package chunkhttp

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sir_venger/chunk_lite/internal/models"
	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
)

// uploadForm принимает чанк multipart-формой: поля hash, index, необязательный sha256 и файл в поле files.
func (a *Server) uploadForm(w http.ResponseWriter, r *http.Request) {
	if limit := a.bodyLimit(formOverhead); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	if err := r.ParseMultipartForm(formMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			a.fail(w, r, fmt.Errorf("%w: chunk exceeds %d bytes", models.ErrSizeLimit, a.maxChunkSize))
			return
		}
		a.fail(w, r, fmt.Errorf("%w: parse form: %w", models.ErrInvalidRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	idx, err := parseIndex(r.FormValue(chunkproto.FieldIndex))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	file, header, err := r.FormFile(chunkproto.FieldFile)
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: form field %q: %w", models.ErrInvalidRequest, chunkproto.FieldFile, err))
		return
	}
	defer file.Close()

	err = a.svc.Upload(r.Context(), models.UploadRequest{
		SessionKey: r.FormValue(chunkproto.FieldHash),
		Index:      idx,
		Body:       file,
		Size:       header.Size,
		Sha256:     r.FormValue(chunkproto.FieldSha256),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.writeJSON(w, r, http.StatusOK, chunkproto.UploadResponse{Code: chunkproto.CodeOK})
}

// uploadRaw принимает чанк сырым телом запроса; контрольная сумма передаётся заголовком.
func (a *Server) uploadRaw(w http.ResponseWriter, r *http.Request) {
	idx, err := parseIndex(chi.URLParam(r, "index"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if limit := a.bodyLimit(0); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	err = a.svc.Upload(r.Context(), models.UploadRequest{
		SessionKey: chi.URLParam(r, "hash"),
		Index:      idx,
		Body:       r.Body,
		Size:       r.ContentLength,
		Sha256:     r.Header.Get(chunkproto.HeaderChecksum),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.writeJSON(w, r, http.StatusCreated, chunkproto.UploadResponse{Code: chunkproto.CodeOK})
}
