package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/dkrasnov/receipt-gateway/internal/bus"
	"github.com/dkrasnov/receipt-gateway/internal/cachekeys"
	"github.com/dkrasnov/receipt-gateway/internal/entity"
	"github.com/dkrasnov/receipt-gateway/internal/queue"
	"github.com/dkrasnov/receipt-gateway/internal/repo"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
)

const (
	cacheTTL             = time.Hour
	estimatedWaitPerJob  = 15 * time.Second
	nanoidAlphabetLength = 21
)

type UploadOptions struct {
	SourceService     *string
	SourceReference   *string
	AcceptedQRFormats []entity.QRFormat
}

type UploadResult struct {
	ImageID       string
	RecognitionID string
	Status        entity.Status
}

// Service implements C4: validates the upload, writes the blob, seeds
// the cache, inserts Image+Recognition, enqueues the job and publishes
// ocr.queued.
type Service struct {
	blobStore        repo.BlobStore
	cache            repo.Cache
	imagesRepo       repo.ImagesRepo
	recognitionsRepo repo.RecognitionsRepo
	transactor       repo.Transactor
	queue            queue.Queue
	publisher        *bus.Publisher
	logger           logger.Interface
}

func New(
	blobStore repo.BlobStore,
	cache repo.Cache,
	imagesRepo repo.ImagesRepo,
	recognitionsRepo repo.RecognitionsRepo,
	transactor repo.Transactor,
	q queue.Queue,
	publisher *bus.Publisher,
	l logger.Interface,
) *Service {
	return &Service{
		blobStore:        blobStore,
		cache:            cache,
		imagesRepo:       imagesRepo,
		recognitionsRepo: recognitionsRepo,
		transactor:       transactor,
		queue:            q,
		publisher:        publisher,
		logger:           l,
	}
}

func (s *Service) UploadImage(ctx context.Context, data io.Reader, declaredMime string, size int64, opts UploadOptions) (*UploadResult, error) {
	mime, ext, err := validateMime(declaredMime)
	if err != nil {
		return nil, err
	}
	if err := validateSize(size); err != nil {
		return nil, err
	}
	if err := validateAcceptedFormats(opts.AcceptedQRFormats); err != nil {
		return nil, err
	}

	bytesData, err := io.ReadAll(data)
	if err != nil {
		return nil, fmt.Errorf("ingest - Service - UploadImage - io.ReadAll: %w", err)
	}
	if int64(len(bytesData)) > entity.MaxImageSize {
		return nil, fmt.Errorf("ingest - Service - UploadImage: file exceeds %d bytes", entity.MaxImageSize)
	}

	imageID, err := gonanoid.New(nanoidAlphabetLength)
	if err != nil {
		return nil, fmt.Errorf("ingest - Service - UploadImage - gonanoid.New: %w", err)
	}
	blobKey := fmt.Sprintf("%s-original%s", imageID, ext)

	// 2. write to blob store
	originalURL, err := s.blobStore.Put(ctx, blobKey, bytesData, string(mime))
	if err != nil {
		return nil, fmt.Errorf("ingest - Service - UploadImage - s.blobStore.Put: %w", err)
	}

	// 3. seed cache
	if err := s.cache.SetBinary(ctx, cachekeys.Image(imageID), bytesData, cacheTTL); err != nil {
		s.logger.Warn("ingest - Service - UploadImage - s.cache.SetBinary failed, imageId=%s, err=%v", imageID, err)
	}

	now := time.Now()
	image := &entity.Image{
		ID:              imageID,
		OriginalURL:     originalURL,
		FileSize:        int64(len(bytesData)),
		MimeType:        mime,
		SourceService:   opts.SourceService,
		SourceReference: opts.SourceReference,
		UploadedAt:      now,
	}

	recognitionID, err := gonanoid.New(nanoidAlphabetLength)
	if err != nil {
		_ = s.compensateBlob(ctx, blobKey)
		return nil, fmt.Errorf("ingest - Service - UploadImage - gonanoid.New: %w", err)
	}
	recognition := &entity.Recognition{
		ID:            recognitionID,
		ImageID:       imageID,
		Status:        entity.StatusQueued,
		AttemptNumber: 1,
		CreatedAt:     now,
	}

	// 4. insert Image + Recognition in one transaction
	err = s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.imagesRepo.Create(ctx, image); err != nil {
			return fmt.Errorf("ingest - Service - UploadImage - s.imagesRepo.Create: %w", err)
		}
		if err := s.recognitionsRepo.Create(ctx, recognition); err != nil {
			return fmt.Errorf("ingest - Service - UploadImage - s.recognitionsRepo.Create: %w", err)
		}
		return nil
	})
	if err != nil {
		// metadata insert failed: the blob may already be orphaned.
		// Best-effort cleanup; the orphan is acceptable if this fails.
		_ = s.compensateBlob(ctx, blobKey)
		return nil, fmt.Errorf("ingest - Service - UploadImage - s.transactor.WithinTransaction: %w", err)
	}

	// 5. enqueue job; a failure here leaves the Recognition `queued`
	// forever, per the spec's documented compensation gap.
	job := entity.Job{
		ImageID:             imageID,
		RecognitionID:       recognitionID,
		SourceService:       opts.SourceService,
		SourceReference:     opts.SourceReference,
		AcceptedQRFormats:   opts.AcceptedQRFormats,
		EnqueuedAtUnixMilli: now.UnixMilli(),
	}

	payload, err := json.Marshal(queue.Envelope{Job: job})
	if err != nil {
		return nil, fmt.Errorf("ingest - Service - UploadImage - json.Marshal: %w", err)
	}

	position, err := s.queue.Enqueue(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("ingest - Service - UploadImage - s.queue.Enqueue: %w", err)
	}

	// 6. publish ocr.queued
	s.publisher.PublishQueued(ctx, bus.QueuedPayload{
		ImageID:         imageID,
		RecognitionID:   recognitionID,
		SourceService:   opts.SourceService,
		SourceReference: opts.SourceReference,
		Position:        position,
		EstimatedWaitMs: position * estimatedWaitPerJob.Milliseconds(),
	}, now.UnixMilli())

	return &UploadResult{ImageID: imageID, RecognitionID: recognitionID, Status: entity.StatusQueued}, nil
}

func (s *Service) compensateBlob(ctx context.Context, blobKey string) error {
	if err := s.blobStore.Delete(ctx, blobKey); err != nil {
		s.logger.Error(err, "ingest - Service - compensateBlob - s.blobStore.Delete")
		return err
	}
	return nil
}
