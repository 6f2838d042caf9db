package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkrasnov/receipt-gateway/internal/bus"
	"github.com/dkrasnov/receipt-gateway/internal/cachekeys"
	"github.com/dkrasnov/receipt-gateway/internal/engine"
	"github.com/dkrasnov/receipt-gateway/internal/entity"
	"github.com/dkrasnov/receipt-gateway/internal/imaging"
	"github.com/dkrasnov/receipt-gateway/internal/qr"
	"github.com/dkrasnov/receipt-gateway/internal/queue"
	"github.com/dkrasnov/receipt-gateway/internal/repo"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
	"github.com/dkrasnov/receipt-gateway/pkg/types/errs"
)

// Thresholds carries both confidence knobs the spec names. High is
// preserved for documentation/early-exit purposes but the fallback
// chain below accepts on Low alone; High never causes an attempt to
// be skipped.
type Thresholds struct {
	High float64
	Low  float64
}

// Pipeline is the heart of the system: C5's per-job state machine,
// load, align, QR attempt, OCR fallback chain, terminal write, publish.
type Pipeline struct {
	imagesRepo       repo.ImagesRepo
	recognitionsRepo repo.RecognitionsRepo
	blobStore        repo.BlobStore
	cache            repo.Cache
	aligner          engine.ImageAligner
	tesseract        engine.TextRecognizer
	paddleocr        engine.TextRecognizer
	publisher        *bus.Publisher
	queue            queue.Queue
	logger           logger.Interface
	thresholds       Thresholds
}

func NewPipeline(
	imagesRepo repo.ImagesRepo,
	recognitionsRepo repo.RecognitionsRepo,
	blobStore repo.BlobStore,
	cache repo.Cache,
	aligner engine.ImageAligner,
	tesseract engine.TextRecognizer,
	paddleocr engine.TextRecognizer,
	publisher *bus.Publisher,
	q queue.Queue,
	l logger.Interface,
	thresholds Thresholds,
) *Pipeline {
	return &Pipeline{
		imagesRepo:       imagesRepo,
		recognitionsRepo: recognitionsRepo,
		blobStore:        blobStore,
		cache:            cache,
		aligner:          aligner,
		tesseract:        tesseract,
		paddleocr:        paddleocr,
		publisher:        publisher,
		queue:            q,
		logger:           l,
		thresholds:       thresholds,
	}
}

// HandleJob is invoked by the Controller's worker goroutines, one job
// envelope at a time.
func (p *Pipeline) HandleJob(ctx context.Context, payload []byte) error {
	var env queue.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("processor - Pipeline - HandleJob - json.Unmarshal: %w", err)
	}

	dequeuedAt := time.Now()
	job := env.Job

	rec, err := p.recognitionsRepo.FindByID(ctx, job.RecognitionID)
	if err != nil {
		p.logger.Error(err, "processor - Pipeline - HandleJob - p.recognitionsRepo.FindByID")
		return p.retry(ctx, env)
	}

	if rec.Status.Terminal() {
		// At-least-once delivery: a retried job for an id already
		// written to a terminal status leaves that state untouched
		// and emits at most one additional event.
		p.republishTerminal(ctx, rec)
		return p.queue.MarkCompleted(ctx, payload)
	}

	queueWaitMs := dequeuedAt.UnixMilli() - job.EnqueuedAtUnixMilli

	rec.Status = entity.StatusProcessing
	if err := p.recognitionsRepo.Update(ctx, rec); err != nil {
		p.logger.Error(err, "processor - Pipeline - HandleJob - p.recognitionsRepo.Update processing")
		return p.retry(ctx, env)
	}
	p.publisher.PublishProcessing(ctx, bus.ProcessingPayload{
		ImageID:       job.ImageID,
		RecognitionID: job.RecognitionID,
	}, time.Now().UnixMilli())

	if err := p.process(ctx, job, rec, dequeuedAt, queueWaitMs); err != nil {
		p.failJob(ctx, rec, err, dequeuedAt)
		return p.retry(ctx, env)
	}

	return p.queue.MarkCompleted(ctx, payload)
}

// process implements steps 1-4 of §4.5. Aligner and QR failures are
// recovered locally; an Image lookup failure (including not-found), a
// failure to load the original bytes, an exhausted OCR chain, or a
// failed terminal write is returned as a non-nil error.
func (p *Pipeline) process(ctx context.Context, job entity.Job, rec *entity.Recognition, dequeuedAt time.Time, queueWaitMs int64) error {
	image, err := p.imagesRepo.FindByID(ctx, job.ImageID)
	if err != nil {
		return fmt.Errorf("processor - Pipeline - process - p.imagesRepo.FindByID: %w", err)
	}

	original, err := p.loadOriginalBytes(ctx, image)
	if err != nil {
		return fmt.Errorf("processor - Pipeline - process - p.loadOriginalBytes: %w", err)
	}

	warped, preprocessed := p.align(ctx, image, original)

	if code, ok := qr.Decode(warped, preprocessed); ok {
		if job.AcceptsFormat(code.Format) {
			return p.completeQR(ctx, rec, code, dequeuedAt, queueWaitMs)
		}
		p.logger.Debug("processor - Pipeline - process - qr decoded but not in acceptedQrFormats, format=%s", code.Format)
	}

	result, usedEngine, err := p.runOCRChain(ctx, preprocessed, warped)
	if err != nil {
		return fmt.Errorf("processor - Pipeline - process - p.runOCRChain: %w", err)
	}

	return p.completeText(ctx, rec, result, usedEngine, dequeuedAt, queueWaitMs)
}

func (p *Pipeline) loadOriginalBytes(ctx context.Context, image *entity.Image) ([]byte, error) {
	if data, ok, err := p.cache.GetBinary(ctx, cachekeys.Image(image.ID)); err != nil {
		p.logger.Warn("processor - Pipeline - loadOriginalBytes - p.cache.GetBinary failed, falling back to blob store, err=%v", err)
	} else if ok {
		return data, nil
	}

	_, key, ok := repo.ParseBlobURL(image.OriginalURL)
	if !ok {
		return nil, fmt.Errorf("processor - Pipeline - loadOriginalBytes: malformed original url %q", image.OriginalURL)
	}

	return p.blobStore.Get(ctx, key)
}

// align calls the aligner and degrades to local preprocessing on
// failure, per step 2. On success it also persists Image.processedUrl;
// on failure no processedUrl is written.
func (p *Pipeline) align(ctx context.Context, image *entity.Image, original []byte) (warped, preprocessed []byte) {
	result, err := p.aligner.Align(ctx, original, engine.AlignOptions{Mode: "classic", ApplyOCRPrep: false})
	if err != nil {
		p.logger.Warn("processor - Pipeline - align - aligner unavailable, degrading to local preprocessing, imageId=%s, err=%v", image.ID, err)

		pre, preErr := imaging.Preprocess(original)
		if preErr != nil {
			p.logger.Error(preErr, "processor - Pipeline - align - imaging.Preprocess")
			pre = original
		}

		return original, pre
	}

	_, key, ok := repo.ParseBlobURL(image.OriginalURL)
	if ok {
		processedKey := key + "-warped"
		processedURL, putErr := p.blobStore.Put(ctx, processedKey, result.Warped, string(image.MimeType))
		if putErr != nil {
			p.logger.Error(putErr, "processor - Pipeline - align - p.blobStore.Put")
		} else if setErr := p.imagesRepo.SetProcessedURL(ctx, image.ID, processedURL); setErr != nil {
			p.logger.Error(setErr, "processor - Pipeline - align - p.imagesRepo.SetProcessedURL")
		}
	}

	return result.Warped, result.Preprocessed
}

type ocrAttempt struct {
	engine     entity.Engine
	buf        []byte
	recognizer engine.TextRecognizer
}

// runOCRChain walks the fixed-order fallback chain from step 4:
// Tesseract/preprocessed, PaddleOCR/preprocessed, PaddleOCR/warped.
func (p *Pipeline) runOCRChain(ctx context.Context, preprocessed, warped []byte) (engine.RecognizeResult, entity.Engine, error) {
	attempts := []ocrAttempt{
		{engine: entity.EngineTesseract, buf: preprocessed, recognizer: p.tesseract},
		{engine: entity.EnginePaddleOCR, buf: preprocessed, recognizer: p.paddleocr},
		{engine: entity.EnginePaddleOCR, buf: warped, recognizer: p.paddleocr},
	}

	var last engine.RecognizeResult
	var lastEngine entity.Engine
	haveResult := false

	for _, a := range attempts {
		res, err := a.recognizer.Recognize(ctx, a.buf)
		if err != nil {
			p.logger.Warn("processor - Pipeline - runOCRChain - attempt failed, engine=%s, err=%v", a.engine, err)
			continue
		}

		haveResult = true
		last = res
		lastEngine = a.engine

		if res.Confidence >= p.thresholds.Low {
			return res, a.engine, nil
		}
	}

	if haveResult {
		return last, lastEngine, nil
	}

	return engine.RecognizeResult{}, "", errs.ErrAllEnginesFailed
}

func (p *Pipeline) completeQR(ctx context.Context, rec *entity.Recognition, code *qr.Code, dequeuedAt time.Time, queueWaitMs int64) error {
	now := time.Now()
	resultType := entity.ResultQR
	procMs := now.Sub(dequeuedAt).Milliseconds()

	rec.Status = entity.StatusCompleted
	rec.ResultType = &resultType
	rec.QRData = &code.Data
	rec.QRFormat = &code.Format
	rec.QRLocation = &code.Location
	rec.ProcessingTimeMs = &procMs
	rec.QueueWaitTimeMs = &queueWaitMs
	rec.CompletedAt = &now

	if err := p.recognitionsRepo.Update(ctx, rec); err != nil {
		return fmt.Errorf("processor - Pipeline - completeQR - p.recognitionsRepo.Update: %w", err)
	}

	p.publisher.PublishCompleted(ctx, bus.CompletedPayload{
		ImageID:        rec.ImageID,
		RecognitionID:  rec.ID,
		ResultType:     resultType,
		QR:             &bus.QRResult{QRData: code.Data, QRFormat: code.Format, QRLocation: code.Location},
		ProcessingTime: procMs,
	}, now.UnixMilli())

	return nil
}

func (p *Pipeline) completeText(ctx context.Context, rec *entity.Recognition, result engine.RecognizeResult, usedEngine entity.Engine, dequeuedAt time.Time, queueWaitMs int64) error {
	now := time.Now()
	resultType := entity.ResultText
	aligned := true
	confidence := entity.RoundConfidence(result.Confidence)
	procMs := now.Sub(dequeuedAt).Milliseconds()

	rec.Status = entity.StatusCompleted
	rec.ResultType = &resultType
	rec.RawText = &result.Text
	rec.Confidence = &confidence
	rec.Engine = &usedEngine
	rec.Aligned = &aligned
	rec.ProcessingTimeMs = &procMs
	rec.QueueWaitTimeMs = &queueWaitMs
	rec.CompletedAt = &now

	if err := p.recognitionsRepo.Update(ctx, rec); err != nil {
		return fmt.Errorf("processor - Pipeline - completeText - p.recognitionsRepo.Update: %w", err)
	}

	p.publisher.PublishCompleted(ctx, bus.CompletedPayload{
		ImageID:        rec.ImageID,
		RecognitionID:  rec.ID,
		ResultType:     resultType,
		Text:           &bus.TextResult{RawText: result.Text, Confidence: confidence, Engine: usedEngine, Aligned: aligned},
		ProcessingTime: procMs,
	}, now.UnixMilli())

	return nil
}

func (p *Pipeline) failJob(ctx context.Context, rec *entity.Recognition, cause error, dequeuedAt time.Time) {
	now := time.Now()
	errMsg := cause.Error()

	rec.Status = entity.StatusFailed
	rec.Error = &errMsg
	rec.CompletedAt = &now

	if err := p.recognitionsRepo.Update(ctx, rec); err != nil {
		p.logger.Error(err, "processor - Pipeline - failJob - p.recognitionsRepo.Update")
		return
	}

	p.publisher.PublishFailed(ctx, bus.FailedPayload{
		ImageID:       rec.ImageID,
		RecognitionID: rec.ID,
		Error:         errMsg,
	}, now.UnixMilli())
}

func (p *Pipeline) republishTerminal(ctx context.Context, rec *entity.Recognition) {
	now := time.Now().UnixMilli()

	switch rec.Status {
	case entity.StatusCompleted:
		payload := bus.CompletedPayload{ImageID: rec.ImageID, RecognitionID: rec.ID}
		if rec.ResultType != nil {
			payload.ResultType = *rec.ResultType
			if *rec.ResultType == entity.ResultText && rec.RawText != nil {
				payload.Text = &bus.TextResult{
					RawText:    deref(rec.RawText),
					Confidence: deref(rec.Confidence),
					Engine:     deref(rec.Engine),
					Aligned:    deref(rec.Aligned),
				}
			}
			if *rec.ResultType == entity.ResultQR && rec.QRData != nil {
				payload.QR = &bus.QRResult{
					QRData:     deref(rec.QRData),
					QRFormat:   deref(rec.QRFormat),
					QRLocation: deref(rec.QRLocation),
				}
			}
		}
		payload.ProcessingTime = deref(rec.ProcessingTimeMs)
		p.publisher.PublishCompleted(ctx, payload, now)
	case entity.StatusFailed:
		p.publisher.PublishFailed(ctx, bus.FailedPayload{
			ImageID:       rec.ImageID,
			RecognitionID: rec.ID,
			Error:         deref(rec.Error),
		}, now)
	}
}

// retry re-raises a job failure to the queue, which owns its own
// delivery-retry policy (3 attempts, exponential backoff from 2s).
func (p *Pipeline) retry(ctx context.Context, env queue.Envelope) error {
	env.Attempt++

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("processor - Pipeline - retry - json.Marshal: %w", err)
	}

	if err := p.queue.Requeue(ctx, payload, env.Attempt-1); err != nil {
		return fmt.Errorf("processor - Pipeline - retry - p.queue.Requeue: %w", err)
	}

	return nil
}

func deref[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}
