package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/sir_venger/chunk_lite/internal/app/chunkhttp"
	"github.com/sir_venger/chunk_lite/internal/config"
	"github.com/sir_venger/chunk_lite/internal/logger"
	meta "github.com/sir_venger/chunk_lite/internal/repo"
	"github.com/sir_venger/chunk_lite/internal/usecase/chunksvc"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "chunkd: %v\n", err)
		os.Exit(1)
	}
}

// run поднимает HTTP-сервис и фоновый GC и ждёт SIGINT/SIGTERM.
func run() error {
	var configPath, listenAddr string
	flags := pflag.NewFlagSet("chunkd", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: $CONFIG_PATH or ./config.yaml)")
	flags.StringVar(&listenAddr, "addr", "", "listen address, overrides listen_addr")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	log, err := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	locker, closeLocker, err := openLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	journal, err := meta.Open(ctx, cfg.MetaDSN)
	if err != nil {
		return fmt.Errorf("open artifact journal: %w", err)
	}
	defer journal.Close()

	svc := chunksvc.New(chunksvc.Deps{
		Store:             store,
		Locker:            locker,
		Journal:           journal,
		Logger:            log,
		MaxChunkSize:      int64(cfg.MaxChunkSize),
		RequireContiguous: cfg.Merge.RequireContiguous,
	})

	server := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: chunkhttp.New(chunkhttp.Options{
			Service:      svc,
			Logger:       log,
			MaxChunkSize: int64(cfg.MaxChunkSize),
			GCTTL:        cfg.GC.SessionTTL,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("chunkd listening",
			"addr", cfg.ListenAddr,
			"backend", cfg.Storage.Backend,
			"lock", cfg.Merge.Lock,
			"max_chunk_size", cfg.MaxChunkSize.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return svc.RunGC(gctx, cfg.GC.SessionTTL, cfg.GC.Interval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Info("chunkd stopped")
		return nil
	})

	return g.Wait()
}
