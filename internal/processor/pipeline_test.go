package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	stdimage "image"
	"image/color"
	stdjpeg "image/jpeg"
	stdpng "image/png"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrasnov/receipt-gateway/internal/bus"
	"github.com/dkrasnov/receipt-gateway/internal/engine"
	"github.com/dkrasnov/receipt-gateway/internal/entity"
	imocks "github.com/dkrasnov/receipt-gateway/internal/ingest/mocks"
	emocks "github.com/dkrasnov/receipt-gateway/internal/processor/mocks"
	"github.com/dkrasnov/receipt-gateway/internal/queue"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
)

func testPublisher() *bus.Publisher {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	return bus.New(client, logger.New("error"))
}

type fixture struct {
	images       *imocks.ImagesRepo
	recognitions *imocks.RecognitionsRepo
	blob         *imocks.BlobStore
	cache        *imocks.Cache
	aligner      *emocks.Aligner
	tesseract    *emocks.Recognizer
	paddleocr    *emocks.Recognizer
	q            *imocks.Queue
	pipeline     *Pipeline
}

func newFixture(thresholds Thresholds) *fixture {
	f := &fixture{
		images:       &imocks.ImagesRepo{},
		recognitions: &imocks.RecognitionsRepo{},
		blob:         &imocks.BlobStore{},
		cache:        &imocks.Cache{},
		aligner:      &emocks.Aligner{},
		tesseract:    &emocks.Recognizer{},
		paddleocr:    &emocks.Recognizer{},
		q:            &imocks.Queue{},
	}
	f.pipeline = NewPipeline(
		f.images, f.recognitions, f.blob, f.cache,
		f.aligner, f.tesseract, f.paddleocr,
		testPublisher(), f.q, logger.New("error"),
		thresholds,
	)
	return f
}

func envelopePayload(t *testing.T, job entity.Job, attempt int) []byte {
	t.Helper()
	b, err := json.Marshal(queue.Envelope{Job: job, Attempt: attempt})
	require.NoError(t, err)
	return b
}

func baseJob() entity.Job {
	return entity.Job{
		ImageID:             "image-id-aaaaaaaaaaa",
		RecognitionID:       "recognition-id-bbbbb",
		EnqueuedAtUnixMilli: time.Now().UnixMilli(),
	}
}

// encodedQRImage renders payload as a real scannable QR code via
// gozxing's own writer, mirroring internal/qr's own test fixtures, so
// HandleJob's qr.Decode branch is exercised against content a reader
// can actually find a code in.
func encodedQRImage(t *testing.T, payload string) []byte {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 200, 200, nil)
	require.NoError(t, err)

	img := stdimage.NewGray(stdimage.Rect(0, 0, matrix.GetWidth(), matrix.GetHeight()))
	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			v := uint8(255)
			if matrix.Get(x, y) {
				v = 0
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, stdpng.Encode(&buf, img))
	return buf.Bytes()
}

// sampleJPEG builds a small real JPEG, used by the aligner-failure
// scenario where the degrade path runs imaging.Preprocess against it.
func sampleJPEG(t *testing.T) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := uint8(0)
			if x > 16 {
				v = 255
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, stdjpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestHandleJobHighConfidenceFirstEngineWins(t *testing.T) {
	f := newFixture(Thresholds{High: 0.70, Low: 0.60})
	job := baseJob()

	f.images.FindByIDFunc = func(ctx context.Context, id string) (*entity.Image, error) {
		return &entity.Image{ID: job.ImageID, OriginalURL: "blob://bucket/key.jpg", MimeType: entity.MimeJPEG}, nil
	}
	f.recognitions.FindByIDFunc = func(ctx context.Context, id string) (*entity.Recognition, error) {
		return &entity.Recognition{ID: job.RecognitionID, ImageID: job.ImageID, Status: entity.StatusQueued}, nil
	}
	f.blob.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		return []byte("original-bytes"), nil
	}
	f.tesseract.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		return engine.RecognizeResult{Text: "ИТОГ 123.45", Confidence: 0.92}, nil
	}

	err := f.pipeline.HandleJob(context.Background(), envelopePayload(t, job, 0))

	require.NoError(t, err)
	require.Len(t, f.recognitions.Updated, 2) // processing, then completed
	final := f.recognitions.Updated[len(f.recognitions.Updated)-1]
	assert.Equal(t, entity.StatusCompleted, final.Status)
	require.NotNil(t, final.ResultType)
	assert.Equal(t, entity.ResultText, *final.ResultType)
	assert.Equal(t, entity.EngineTesseract, *final.Engine)
	assert.Equal(t, 1, f.tesseract.Calls)
	assert.Equal(t, 0, f.paddleocr.Calls) // tesseract already cleared Low, chain stops
}

func TestHandleJobFallsThroughOCRChainOnLowConfidence(t *testing.T) {
	f := newFixture(Thresholds{High: 0.70, Low: 0.60})
	job := baseJob()

	f.images.FindByIDFunc = func(ctx context.Context, id string) (*entity.Image, error) {
		return &entity.Image{ID: job.ImageID, OriginalURL: "blob://bucket/key.jpg", MimeType: entity.MimeJPEG}, nil
	}
	f.recognitions.FindByIDFunc = func(ctx context.Context, id string) (*entity.Recognition, error) {
		return &entity.Recognition{ID: job.RecognitionID, ImageID: job.ImageID, Status: entity.StatusQueued}, nil
	}
	f.blob.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		return []byte("original-bytes"), nil
	}
	f.tesseract.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		return engine.RecognizeResult{Text: "garbled", Confidence: 0.3}, nil
	}
	f.paddleocr.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		return engine.RecognizeResult{Text: "ИТОГ 55.00", Confidence: 0.81}, nil
	}

	err := f.pipeline.HandleJob(context.Background(), envelopePayload(t, job, 0))

	require.NoError(t, err)
	final := f.recognitions.Updated[len(f.recognitions.Updated)-1]
	assert.Equal(t, entity.StatusCompleted, final.Status)
	assert.Equal(t, entity.EnginePaddleOCR, *final.Engine)
	assert.Equal(t, 1, f.tesseract.Calls)
	assert.Equal(t, 1, f.paddleocr.Calls) // second attempt (preprocessed) already cleared Low
}

func TestHandleJobAllEnginesFailMarksFailedAndRetries(t *testing.T) {
	f := newFixture(Thresholds{High: 0.70, Low: 0.60})
	job := baseJob()

	f.images.FindByIDFunc = func(ctx context.Context, id string) (*entity.Image, error) {
		return &entity.Image{ID: job.ImageID, OriginalURL: "blob://bucket/key.jpg", MimeType: entity.MimeJPEG}, nil
	}
	f.recognitions.FindByIDFunc = func(ctx context.Context, id string) (*entity.Recognition, error) {
		return &entity.Recognition{ID: job.RecognitionID, ImageID: job.ImageID, Status: entity.StatusQueued}, nil
	}
	f.blob.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		return []byte("original-bytes"), nil
	}
	f.tesseract.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		return engine.RecognizeResult{}, errors.New("tesseract down")
	}
	f.paddleocr.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		return engine.RecognizeResult{}, errors.New("paddleocr down")
	}

	err := f.pipeline.HandleJob(context.Background(), envelopePayload(t, job, 0))

	require.NoError(t, err) // HandleJob itself never surfaces the processing error; it requeues
	final := f.recognitions.Updated[len(f.recognitions.Updated)-1]
	assert.Equal(t, entity.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	require.Len(t, f.q.Requeued, 1)
}

func TestHandleJobLoadsOriginalFromCacheBeforeBlobStore(t *testing.T) {
	f := newFixture(Thresholds{High: 0.70, Low: 0.60})
	job := baseJob()

	f.images.FindByIDFunc = func(ctx context.Context, id string) (*entity.Image, error) {
		return &entity.Image{ID: job.ImageID, OriginalURL: "blob://bucket/key.jpg", MimeType: entity.MimeJPEG}, nil
	}
	f.recognitions.FindByIDFunc = func(ctx context.Context, id string) (*entity.Recognition, error) {
		return &entity.Recognition{ID: job.RecognitionID, ImageID: job.ImageID, Status: entity.StatusQueued}, nil
	}
	f.cache.GetBinaryFunc = func(ctx context.Context, key string) ([]byte, bool, error) {
		assert.Equal(t, "image:"+job.ImageID, key)
		return []byte("cached-bytes"), true, nil
	}
	blobGetCalled := false
	f.blob.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		blobGetCalled = true
		return nil, nil
	}
	f.tesseract.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		assert.Equal(t, []byte("cached-bytes"), buf)
		return engine.RecognizeResult{Text: "text", Confidence: 0.95}, nil
	}

	err := f.pipeline.HandleJob(context.Background(), envelopePayload(t, job, 0))

	require.NoError(t, err)
	assert.False(t, blobGetCalled)
}

func TestHandleJobTerminalStatusIsIdempotent(t *testing.T) {
	f := newFixture(Thresholds{High: 0.70, Low: 0.60})
	job := baseJob()

	completedResultType := entity.ResultText
	f.recognitions.FindByIDFunc = func(ctx context.Context, id string) (*entity.Recognition, error) {
		return &entity.Recognition{
			ID: job.RecognitionID, ImageID: job.ImageID,
			Status: entity.StatusCompleted, ResultType: &completedResultType,
		}, nil
	}

	err := f.pipeline.HandleJob(context.Background(), envelopePayload(t, job, 1))

	require.NoError(t, err)
	// a terminal recognition must never be re-processed: no image
	// lookup, no further repo Update, no requeue, only the archival
	// MarkCompleted call.
	assert.Empty(t, f.recognitions.Updated)
	assert.Empty(t, f.q.Requeued)
	assert.Len(t, f.q.Completed, 1)
}

func TestHandleJobRetriesOnRecognitionLookupFailure(t *testing.T) {
	f := newFixture(Thresholds{High: 0.70, Low: 0.60})
	job := baseJob()

	f.recognitions.FindByIDFunc = func(ctx context.Context, id string) (*entity.Recognition, error) {
		return nil, errors.New("db unavailable")
	}

	err := f.pipeline.HandleJob(context.Background(), envelopePayload(t, job, 0))

	require.NoError(t, err)
	require.Len(t, f.q.Requeued, 1)

	var requeued queue.Envelope
	require.NoError(t, json.Unmarshal(f.q.Requeued[0], &requeued))
	assert.Equal(t, 1, requeued.Attempt)
}

func TestHandleJobCompletesFiscalQRWithoutTryingOCR(t *testing.T) {
	f := newFixture(Thresholds{High: 0.70, Low: 0.60})
	job := baseJob()
	payload := "t=20260101T1200&s=1234.50&fn=1234567890123456&fp=42&n=1"

	f.images.FindByIDFunc = func(ctx context.Context, id string) (*entity.Image, error) {
		return &entity.Image{ID: job.ImageID, OriginalURL: "blob://bucket/key.jpg", MimeType: entity.MimeJPEG}, nil
	}
	f.recognitions.FindByIDFunc = func(ctx context.Context, id string) (*entity.Recognition, error) {
		return &entity.Recognition{ID: job.RecognitionID, ImageID: job.ImageID, Status: entity.StatusQueued}, nil
	}
	f.blob.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		return encodedQRImage(t, payload), nil
	}

	err := f.pipeline.HandleJob(context.Background(), envelopePayload(t, job, 0))

	require.NoError(t, err)
	final := f.recognitions.Updated[len(f.recognitions.Updated)-1]
	assert.Equal(t, entity.StatusCompleted, final.Status)
	require.NotNil(t, final.ResultType)
	assert.Equal(t, entity.ResultQR, *final.ResultType)
	require.NotNil(t, final.QRData)
	assert.Equal(t, payload, *final.QRData)
	require.NotNil(t, final.QRFormat)
	assert.Equal(t, entity.QRFiscal, *final.QRFormat)
	assert.Equal(t, 0, f.tesseract.Calls)
	assert.Equal(t, 0, f.paddleocr.Calls)
}

func TestHandleJobFallsThroughToOCRWhenQRFormatNotAccepted(t *testing.T) {
	f := newFixture(Thresholds{High: 0.70, Low: 0.60})
	job := baseJob()
	job.AcceptedQRFormats = []entity.QRFormat{entity.QRUrl}
	payload := "fn=1234567890123456"

	f.images.FindByIDFunc = func(ctx context.Context, id string) (*entity.Image, error) {
		return &entity.Image{ID: job.ImageID, OriginalURL: "blob://bucket/key.jpg", MimeType: entity.MimeJPEG}, nil
	}
	f.recognitions.FindByIDFunc = func(ctx context.Context, id string) (*entity.Recognition, error) {
		return &entity.Recognition{ID: job.RecognitionID, ImageID: job.ImageID, Status: entity.StatusQueued}, nil
	}
	f.blob.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		return encodedQRImage(t, payload), nil
	}
	f.tesseract.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		return engine.RecognizeResult{Text: "ИТОГ 10.00", Confidence: 0.91}, nil
	}

	err := f.pipeline.HandleJob(context.Background(), envelopePayload(t, job, 0))

	require.NoError(t, err)
	final := f.recognitions.Updated[len(f.recognitions.Updated)-1]
	assert.Equal(t, entity.StatusCompleted, final.Status)
	require.NotNil(t, final.ResultType)
	assert.Equal(t, entity.ResultText, *final.ResultType)
	assert.Equal(t, 1, f.tesseract.Calls)
}

func TestHandleJobDegradesToLocalPreprocessingWhenAlignerFails(t *testing.T) {
	f := newFixture(Thresholds{High: 0.70, Low: 0.60})
	job := baseJob()

	f.images.FindByIDFunc = func(ctx context.Context, id string) (*entity.Image, error) {
		return &entity.Image{ID: job.ImageID, OriginalURL: "blob://bucket/key.jpg", MimeType: entity.MimeJPEG}, nil
	}
	f.recognitions.FindByIDFunc = func(ctx context.Context, id string) (*entity.Recognition, error) {
		return &entity.Recognition{ID: job.RecognitionID, ImageID: job.ImageID, Status: entity.StatusQueued}, nil
	}
	f.blob.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		return sampleJPEG(t), nil
	}
	f.aligner.AlignFunc = func(ctx context.Context, buf []byte, opts engine.AlignOptions) (engine.AlignResult, error) {
		return engine.AlignResult{}, errors.New("aligner unreachable")
	}
	f.tesseract.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		return engine.RecognizeResult{Text: "ИТОГ 10.00", Confidence: 0.91}, nil
	}

	err := f.pipeline.HandleJob(context.Background(), envelopePayload(t, job, 0))

	require.NoError(t, err)
	final := f.recognitions.Updated[len(f.recognitions.Updated)-1]
	assert.Equal(t, entity.StatusCompleted, final.Status)
	assert.Equal(t, 0, f.images.SetProcessedURLCalls) // degrade path never writes processedUrl
}

func TestHandleJobAcceptsOnThirdOCRAttempt(t *testing.T) {
	f := newFixture(Thresholds{High: 0.70, Low: 0.60})
	job := baseJob()

	f.images.FindByIDFunc = func(ctx context.Context, id string) (*entity.Image, error) {
		return &entity.Image{ID: job.ImageID, OriginalURL: "blob://bucket/key.jpg", MimeType: entity.MimeJPEG}, nil
	}
	f.recognitions.FindByIDFunc = func(ctx context.Context, id string) (*entity.Recognition, error) {
		return &entity.Recognition{ID: job.RecognitionID, ImageID: job.ImageID, Status: entity.StatusQueued}, nil
	}
	f.blob.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		return []byte("original-bytes"), nil
	}
	f.tesseract.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		return engine.RecognizeResult{Text: "blurred", Confidence: 0.41}, nil
	}
	paddleCalls := 0
	f.paddleocr.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		paddleCalls++
		if paddleCalls == 1 {
			return engine.RecognizeResult{Text: "preprocessed-attempt", Confidence: 0.55}, nil
		}
		return engine.RecognizeResult{Text: "warped-attempt", Confidence: 0.72}, nil
	}

	err := f.pipeline.HandleJob(context.Background(), envelopePayload(t, job, 0))

	require.NoError(t, err)
	final := f.recognitions.Updated[len(f.recognitions.Updated)-1]
	assert.Equal(t, entity.StatusCompleted, final.Status)
	require.NotNil(t, final.Engine)
	assert.Equal(t, entity.EnginePaddleOCR, *final.Engine)
	require.NotNil(t, final.RawText)
	assert.Equal(t, "warped-attempt", *final.RawText)
	require.NotNil(t, final.Confidence)
	assert.InDelta(t, 0.72, *final.Confidence, 0.001)
	assert.Equal(t, 1, f.tesseract.Calls)
	assert.Equal(t, 2, f.paddleocr.Calls)
}

func TestHandleJobUsesLastAttemptResultWhenAllBelowLowThreshold(t *testing.T) {
	f := newFixture(Thresholds{High: 0.70, Low: 0.60})
	job := baseJob()

	f.images.FindByIDFunc = func(ctx context.Context, id string) (*entity.Image, error) {
		return &entity.Image{ID: job.ImageID, OriginalURL: "blob://bucket/key.jpg", MimeType: entity.MimeJPEG}, nil
	}
	f.recognitions.FindByIDFunc = func(ctx context.Context, id string) (*entity.Recognition, error) {
		return &entity.Recognition{ID: job.RecognitionID, ImageID: job.ImageID, Status: entity.StatusQueued}, nil
	}
	f.blob.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		return []byte("original-bytes"), nil
	}
	f.tesseract.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		return engine.RecognizeResult{Text: "t1", Confidence: 0.30}, nil
	}
	paddleCalls := 0
	f.paddleocr.RecognizeFunc = func(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
		paddleCalls++
		if paddleCalls == 1 {
			return engine.RecognizeResult{Text: "p1-preprocessed", Confidence: 0.40}, nil
		}
		return engine.RecognizeResult{Text: "p2-warped", Confidence: 0.50}, nil
	}

	err := f.pipeline.HandleJob(context.Background(), envelopePayload(t, job, 0))

	require.NoError(t, err)
	final := f.recognitions.Updated[len(f.recognitions.Updated)-1]
	assert.Equal(t, entity.StatusCompleted, final.Status)
	require.NotNil(t, final.Engine)
	assert.Equal(t, entity.EnginePaddleOCR, *final.Engine)
	require.NotNil(t, final.RawText)
	assert.Equal(t, "p2-warped", *final.RawText) // last attempt (warped), since none cleared Low
	assert.Equal(t, 1, f.tesseract.Calls)
	assert.Equal(t, 2, f.paddleocr.Calls)
}
