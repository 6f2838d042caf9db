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
	"github.com/dkrasnov/receipt-gateway/internal/controller/restapi"
	"github.com/dkrasnov/receipt-gateway/internal/ingest"
	"github.com/dkrasnov/receipt-gateway/internal/migration"
	"github.com/dkrasnov/receipt-gateway/internal/queue"
	"github.com/dkrasnov/receipt-gateway/internal/repo/cache"
	"github.com/dkrasnov/receipt-gateway/internal/repo/persistent"
	"github.com/dkrasnov/receipt-gateway/pkg/httpserver"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
	"github.com/dkrasnov/receipt-gateway/pkg/postgres"
	"github.com/dkrasnov/receipt-gateway/pkg/redisclient"
	"github.com/dkrasnov/receipt-gateway/pkg/s3client"
)

// cmd/gateway is the ingest/HTTP process: it accepts uploads, writes
// blob+metadata, and enqueues jobs. It performs no recognition work;
// see cmd/worker for that.
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
		l.Fatal(err, "cmd/gateway - main - s3client.New")
	}

	pg, err := postgres.New(cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
	if err != nil {
		l.Fatal(err, "cmd/gateway - main - postgres.New")
	}
	defer pg.Close()

	if err := migration.EnsureMigrated(ctx, pg.Pool, l); err != nil {
		l.Fatal(err, "cmd/gateway - main - migration.EnsureMigrated")
	}

	rc, err := redisclient.New(ctx, cfg.Redis.URL)
	if err != nil {
		l.Fatal(err, "cmd/gateway - main - redisclient.New")
	}
	defer rc.Close()

	redisCache := cache.New(rc.Client)
	imagesRepo := persistent.NewImagesRepo(pg, redisCache)
	recognitionsRepo := persistent.NewRecognitionsRepo(pg, redisCache)
	blobStore := persistent.NewBlobRepo(s3c, cfg.S3.Bucket)
	jobQueue := queue.New(rc.Client)
	publisher := bus.New(rc.Client, l)

	svc := ingest.New(blobStore, redisCache, imagesRepo, recognitionsRepo, pg, jobQueue, publisher, l)

	httpServer := httpserver.New(l, httpserver.Port(cfg.HTTP.Port), httpserver.Prefork(cfg.HTTP.UsePreforkMode))
	if err := restapi.NewRouter(httpServer.App, cfg, svc, imagesRepo, recognitionsRepo, blobStore, pg.Pool, l); err != nil {
		l.Fatal(err, "cmd/gateway - main - restapi.NewRouter")
	}

	httpServer.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("cmd/gateway - main - signal: %s", s.String())
	case err = <-httpServer.Notify():
		l.Error(err, "cmd/gateway - main - httpServer.Notify")
	}

	if err := httpServer.Shutdown(); err != nil {
		l.Error(err, "cmd/gateway - main - httpServer.Shutdown")
	}
}
