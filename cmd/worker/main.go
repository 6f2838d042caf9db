package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dkrasnov/receipt-gateway/config"
	"github.com/dkrasnov/receipt-gateway/internal/bus"
	"github.com/dkrasnov/receipt-gateway/internal/engine"
	"github.com/dkrasnov/receipt-gateway/internal/migration"
	"github.com/dkrasnov/receipt-gateway/internal/processor"
	"github.com/dkrasnov/receipt-gateway/internal/queue"
	"github.com/dkrasnov/receipt-gateway/internal/repo/cache"
	"github.com/dkrasnov/receipt-gateway/internal/repo/persistent"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
	"github.com/dkrasnov/receipt-gateway/pkg/postgres"
	"github.com/dkrasnov/receipt-gateway/pkg/redisclient"
	"github.com/dkrasnov/receipt-gateway/pkg/s3client"
)

// cmd/worker is the recognition-processor process: it dequeues jobs,
// runs the alignment/QR/OCR pipeline, and publishes terminal events. It
// exposes no HTTP surface, see cmd/gateway for ingest.
func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("config error: %s", err)
		}
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config error: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := logger.New(cfg.Log.Level)

	s3Ctx, s3Cancel := context.WithTimeout(ctx, cfg.S3.CfgLoadTimeout)
	defer s3Cancel()
	s3c, err := s3client.New(s3Ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey)
	if err != nil {
		l.Fatal(err, "cmd/worker - main - s3client.New")
	}

	pg, err := postgres.New(cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
	if err != nil {
		l.Fatal(err, "cmd/worker - main - postgres.New")
	}
	defer pg.Close()

	if err := migration.EnsureMigrated(ctx, pg.Pool, l); err != nil {
		l.Fatal(err, "cmd/worker - main - migration.EnsureMigrated")
	}

	rc, err := redisclient.New(ctx, cfg.Redis.URL)
	if err != nil {
		l.Fatal(err, "cmd/worker - main - redisclient.New")
	}
	defer rc.Close()

	redisCache := cache.New(rc.Client)
	imagesRepo := persistent.NewImagesRepo(pg, redisCache)
	recognitionsRepo := persistent.NewRecognitionsRepo(pg, redisCache)
	blobStore := persistent.NewBlobRepo(s3c, cfg.S3.Bucket)
	jobQueue := queue.New(rc.Client)
	publisher := bus.New(rc.Client, l)

	aligner := engine.NewAligner(cfg.Engine.AlignerURL, cfg.Engine.Timeout)
	tesseract := engine.NewTesseract(cfg.Engine.TesseractURL, cfg.Engine.Timeout)
	paddleocr := engine.NewPaddleOCR(cfg.Engine.PaddleOCRURL, cfg.Engine.Timeout)

	pipeline := processor.NewPipeline(
		imagesRepo, recognitionsRepo, blobStore, redisCache,
		aligner, tesseract, paddleocr,
		publisher, jobQueue, l,
		processor.Thresholds{High: cfg.Thresholds.High, Low: cfg.Thresholds.Low},
	)

	controller := processor.NewController(jobQueue, pipeline, l, cfg.Worker.ProcessTimeout, cfg.Worker.Concurrency, cfg.Worker.RatePerSecond)

	reaper := queue.NewReaper(jobQueue, l, cfg.Worker.ReaperInterval)

	if err := reaper.Start(ctx); err != nil {
		l.Fatal(err, "cmd/worker - main - reaper.Start")
	}

	if err := controller.Start(ctx); err != nil {
		l.Fatal(err, "cmd/worker - main - controller.Start")
	}

	l.Info("cmd/worker - main - started, concurrency=%d", cfg.Worker.Concurrency)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	l.Info("cmd/worker - main - shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	if err := controller.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "cmd/worker - main - controller.Shutdown")
	}
	if err := reaper.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "cmd/worker - main - reaper.Shutdown")
	}
}
