package v1

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dkrasnov/receipt-gateway/internal/ingest"
	"github.com/dkrasnov/receipt-gateway/internal/repo"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
)

func NewRecognitionRoutes(
	apiV1Group fiber.Router,
	svc *ingest.Service,
	imagesRepo repo.ImagesRepo,
	recognitionsRepo repo.RecognitionsRepo,
	blobStore repo.BlobStore,
	presignTTL time.Duration,
	l logger.Interface,
) {
	r := &V1{
		ingest:           svc,
		imagesRepo:       imagesRepo,
		recognitionsRepo: recognitionsRepo,
		blobStore:        blobStore,
		presignTTL:       presignTTL,
		logger:           l,
	}

	apiV1Group.Post("/recognize", r.recognize)
	apiV1Group.Get("/recognitions/:id", r.getRecognition)
	apiV1Group.Get("/images/:id", r.getImage)
}
