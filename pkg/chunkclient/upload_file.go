package chunkclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/docker/go-units"
	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
	"golang.org/x/sync/errgroup"
)

const (
	minChunkSize = 8 * units.MiB
	maxChunkSize = 100 * units.MiB
)

// UploadOptions настраивает UploadFile.
type UploadOptions struct {
	// Filename: имя файла на сервере; по умолчанию базовое имя локального файла.
	Filename string
	// ChunkSize: размер чанка; 0 выбирает размер по размеру файла и параллельности.
	ChunkSize int64
	// Concurrency: сколько чанков грузится одновременно.
	Concurrency int
}

// Plan описывает, на сколько чанков делится файл и какого они размера.
type Plan struct {
	Total int
	Size  int64
}

// Result: итог загрузки файла.
type Result struct {
	Hash     string
	Plan     Plan
	Skipped  int
	Uploaded int
	Artifact chunkproto.Artifact
}

// UploadFile загружает файл чанками с докачкой: ключом сессии служит SHA-256 содержимого,
// чанки, которые сервер уже получил, повторно не отправляются.
func (c *Client) UploadFile(ctx context.Context, path string, opts UploadOptions) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{}, err
	}
	if !info.Mode().IsRegular() {
		return Result{}, fmt.Errorf("%s is not a regular file", path)
	}

	if opts.Filename == "" {
		opts.Filename = filepath.Base(path)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = OptimalChunkSize(info.Size(), opts.Concurrency)
	}

	hash, err := fileHash(f)
	if err != nil {
		return Result{}, fmt.Errorf("hash %s: %w", path, err)
	}

	res := Result{Hash: hash, Plan: PlanChunks(info.Size(), opts.ChunkSize)}

	have, err := c.Check(ctx, hash)
	if err != nil {
		return res, fmt.Errorf("check session: %w", err)
	}
	done := make(map[int]bool, len(have))
	for _, idx := range have {
		done[idx] = true
	}

	bar := newProgressBar(c.progress, fmt.Sprintf("Uploading %s", opts.Filename), info.Size())
	bar.render(true)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for idx := 0; idx < res.Plan.Total; idx++ {
		off := int64(idx) * res.Plan.Size
		size := min(res.Plan.Size, info.Size()-off)

		if done[idx] {
			res.Skipped++
			bar.AddBytes(size)
			continue
		}
		res.Uploaded++

		g.Go(func() error {
			buf := make([]byte, size)
			if _, err := f.ReadAt(buf, off); err != nil && err != io.EOF {
				return fmt.Errorf("read chunk %d: %w", idx, err)
			}
			if err := c.UploadChunk(gctx, hash, idx, buf); err != nil {
				return fmt.Errorf("upload chunk %d: %w", idx, err)
			}
			bar.AddBytes(size)
			return nil
		})
	}

	if err = g.Wait(); err != nil {
		bar.Fail(err)
		return res, err
	}

	res.Artifact, err = c.Merge(ctx, hash, opts.Filename, res.Plan.Total)
	if err != nil {
		bar.Fail(err)
		return res, fmt.Errorf("merge: %w", err)
	}

	bar.Finish()
	return res, nil
}

// PlanChunks делит length байт на чанки по size байт. Пустой файл даёт один пустой чанк.
func PlanChunks(length, size int64) Plan {
	if length <= 0 {
		return Plan{Total: 1, Size: 0}
	}
	if size <= 0 {
		size = length
	}
	return Plan{
		Total: int((length + size - 1) / size),
		Size:  size,
	}
}

// OptimalChunkSize делит файл поровну между воркерами в пределах от 8 до 100 MiB.
func OptimalChunkSize(totalSize int64, concurrency int) int64 {
	if concurrency <= 0 {
		concurrency = 1
	}
	cs := totalSize / int64(concurrency)
	if cs >= maxChunkSize {
		cs /= 2
	}
	return max(min(cs, maxChunkSize), minChunkSize)
}

func defaultConcurrency() int {
	return min(max(runtime.NumCPU()*2, 2), 8)
}

func fileHash(f *os.File) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, 1<<62)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
