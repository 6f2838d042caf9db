package v1

import (
	"time"

	"github.com/dkrasnov/receipt-gateway/internal/ingest"
	"github.com/dkrasnov/receipt-gateway/internal/repo"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
)

type V1 struct {
	ingest           *ingest.Service
	imagesRepo       repo.ImagesRepo
	recognitionsRepo repo.RecognitionsRepo
	blobStore        repo.BlobStore
	presignTTL       time.Duration
	logger           logger.Interface
}
