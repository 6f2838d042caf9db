package restapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkrasnov/receipt-gateway/config"
	"github.com/dkrasnov/receipt-gateway/internal/controller/restapi/middleware"
	v1 "github.com/dkrasnov/receipt-gateway/internal/controller/restapi/v1"
	"github.com/dkrasnov/receipt-gateway/internal/ingest"
	"github.com/dkrasnov/receipt-gateway/internal/repo"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// @title Receipt Recognition Gateway
// @version 1.0.0
// @host localhost:8080
// @BasePath /
func NewRouter(
	app *fiber.App,
	cfg *config.Config,
	svc *ingest.Service,
	imagesRepo repo.ImagesRepo,
	recognitionsRepo repo.RecognitionsRepo,
	blobStore repo.BlobStore,
	pgPool *pgxpool.Pool,
	l logger.Interface,
) error {
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(l))

	promMiddleware, err := middleware.NewPrometheus(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", newHealthHandler(pgPool, l))

	if cfg.Swagger.Enabled {
		app.Get("/swagger/*", swagger.HandlerDefault)
	}

	apiV1Group := app.Group("/api/v1")
	{
		v1.NewRecognitionRoutes(apiV1Group, svc, imagesRepo, recognitionsRepo, blobStore, cfg.S3.PresignTTL, l)
	}

	return nil
}
