package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/sir_venger/chunk_lite/internal/config"
	"github.com/sir_venger/chunk_lite/internal/logger"
	meta "github.com/sir_venger/chunk_lite/internal/repo"
)

func main() {
	var configPath, dsn string
	flags := pflag.NewFlagSet("migrate", pflag.ExitOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	flags.StringVar(&dsn, "dsn", "", "postgres DSN, overrides meta_dsn")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	if dsn == "" {
		dsn = strings.TrimSpace(cfg.MetaDSN)
	}
	if dsn == "" || strings.HasPrefix(dsn, meta.MemoryDSN) {
		log.Info("memory journal selected, skipping migrations")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := meta.ApplyMigrations(ctx, dsn); err != nil {
		log.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	log.Info("migrations applied")
}
