package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"compare/internal/config"
	"compare/internal/http/server"
	"compare/internal/infra/logging"
	"compare/internal/infra/pdfrender"
	"compare/internal/infra/scratch"
	"compare/internal/infra/vision"
	"compare/internal/infra/worker"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.Load()
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	logging.SetLogLevel(cfg.Logger.Level)

	var rdb *redis.Client
	if cfg.Cache.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.RedisDB,
		})
		defer rdb.Close()
	}

	dir, err := scratch.Dir(cfg.Scratch.Dir)
	if err != nil {
		logging.Error("Scratch dir unusable, using system temp", "dir", cfg.Scratch.Dir, "error", err)
		dir = os.TempDir()
	}
	cfg.Scratch.Dir = dir

	sweeper := scratch.NewSweeper(dir, cfg.Scratch.MaxAge)
	if cfg.Scratch.SweepCron != "" {
		if err := sweeper.Start(cfg.Scratch.SweepCron); err != nil {
			logging.Error("Scratch sweeper not started", "error", err)
		}
	}
	defer sweeper.Stop()

	backend := pdfrender.BackendOrFitz(cfg.PDF)
	defer backend.Close()

	pool := worker.NewPool(cfg.Worker.Size)
	defer pool.Close()

	app := server.New(server.Deps{
		Config:     cfg,
		Redis:      rdb,
		Pool:       pool,
		Comparator: vision.NewEngine(vision.ParamsFromConfig(cfg.Compare)),
		Renderer:   pdfrender.New(backend, cfg.PDF.DPI),
	})

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// startServer starts the Fiber app and blocks until a shutdown signal is handled.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		logging.Info("Listening", "addr", cfg.Server.Host+cfg.Server.Port, "workers", cfg.Worker.Size, "pdf_backend", cfg.PDF.Backend)
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint
	signal.Stop(sigint)

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
