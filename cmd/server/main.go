package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/api"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/app"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/config"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/logging"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath   = flag.String("config", "", "path to YAML config (default ./config.yaml or ~/.config/docqa/config.yaml)")
		addr      = flag.String("addr", "", "listen address (overrides server.addr)")
		dataDir   = flag.String("data", "", "data directory for vectors.bin and documents.db (overrides data_dir)")
		uploadDir = flag.String("uploads", "", "upload directory (overrides upload_dir)")
	)
	flag.Parse()

	var (
		cfg *config.AppConfig
		err error
	)
	if *cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(*cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *uploadDir != "" {
		cfg.UploadDir = *uploadDir
	}

	logging.Configure(cfg.LogLevel)

	a, err := app.Open(cfg)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}()

	srv := api.NewServer(a.DB, a.Answerer, a.Pipeline, api.Options{
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("docqa starting", "addr", cfg.Server.Addr, "data", cfg.DataDir, "uploads", cfg.UploadDir,
		"dim", cfg.Dimension, "embedder", cfg.Embedder.Type, "answer", cfg.Answer.Type)
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		slog.Error("server failed", "error", err)
		a.Close()
		os.Exit(1)
	}
}
