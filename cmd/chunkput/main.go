package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/pflag"

	"github.com/sir_venger/chunk_lite/internal/logger"
	"github.com/sir_venger/chunk_lite/pkg/chunkclient"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "chunkput: %v\n", err)
		os.Exit(1)
	}
}

// run загружает файлы из аргументов по одному; повторный запуск докачивает недостающие чанки.
func run() error {
	var (
		server      string
		name        string
		chunkSize   string
		concurrency int
		retries     int
		quiet       bool
		verbose     bool
	)

	flags := pflag.NewFlagSet("chunkput", pflag.ContinueOnError)
	flags.StringVarP(&server, "server", "s", envOr("CHUNK_SERVER", "http://localhost:8080"), "chunk service base URL")
	flags.StringVarP(&name, "name", "n", "", "file name on the server (single file only; default: local base name)")
	flags.StringVar(&chunkSize, "chunk-size", "", "chunk size, e.g. 8MiB (default: picked from file size)")
	flags.IntVarP(&concurrency, "concurrency", "j", 0, "parallel chunk uploads")
	flags.IntVar(&retries, "retries", 4, "retries per request")
	flags.BoolVarP(&quiet, "quiet", "q", false, "no progress bar")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log requests and retries")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chunkput [flags] FILE...\n\n%s", flags.FlagUsages())
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	files := flags.Args()
	if len(files) == 0 {
		flags.Usage()
		return errors.New("no files given")
	}
	if name != "" && len(files) > 1 {
		return errors.New("--name works with a single file")
	}

	var size int64
	if chunkSize != "" {
		v, err := units.RAMInBytes(chunkSize)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid --chunk-size %q", chunkSize)
		}
		size = v
	}

	opts := []chunkclient.Option{chunkclient.WithRetry(retries, 500*time.Millisecond, 10*time.Second)}
	if !quiet {
		opts = append(opts, chunkclient.WithProgress(os.Stdout))
	}
	if verbose {
		log, err := logger.New(os.Stderr, "debug", logger.FormatText)
		if err != nil {
			return err
		}
		opts = append(opts, chunkclient.WithLogger(log))
	}
	client := chunkclient.New(server, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, path := range files {
		res, err := client.UploadFile(ctx, path, chunkclient.UploadOptions{
			Filename:    name,
			ChunkSize:   size,
			Concurrency: concurrency,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("%s -> %s (%s, %d chunks, %d resumed) sha256=%s\n",
			path, res.Artifact.Name, units.BytesSize(float64(res.Artifact.Size)),
			res.Plan.Total, res.Skipped, res.Artifact.Sha256)
	}

	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
