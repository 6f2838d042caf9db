package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrasnov/receipt-gateway/internal/bus"
	"github.com/dkrasnov/receipt-gateway/internal/controller/restapi/response"
	"github.com/dkrasnov/receipt-gateway/internal/entity"
	"github.com/dkrasnov/receipt-gateway/internal/ingest"
	"github.com/dkrasnov/receipt-gateway/internal/ingest/mocks"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
	"github.com/dkrasnov/receipt-gateway/pkg/types/errs"
)

// testPublisher returns a real bus.Publisher pointed at an address
// nothing listens on: publish failures are logged, not propagated, so
// handler tests never need a live Redis.
func testPublisher() *bus.Publisher {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	return bus.New(client, logger.New("error"))
}

func newTestApp(svc *ingest.Service, images *mocks.ImagesRepo, recognitions *mocks.RecognitionsRepo, blob *mocks.BlobStore) *fiber.App {
	app := fiber.New()
	NewRecognitionRoutes(app.Group("/api/v1"), svc, images, recognitions, blob, time.Hour, logger.New("error"))
	return app
}

func multipartUploadRequest(t *testing.T, fieldValues map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="receipt.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-jpeg-bytes"))
	require.NoError(t, err)

	for k, v := range fieldValues {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestRecognizeHandlerAccepted(t *testing.T) {
	images := &mocks.ImagesRepo{}
	recognitions := &mocks.RecognitionsRepo{}
	blob := &mocks.BlobStore{}
	cache := &mocks.Cache{}
	tx := &mocks.Transactor{}
	q := &mocks.Queue{}
	svc := ingest.New(blob, cache, images, recognitions, tx, q, testPublisher(), logger.New("error"))

	app := newTestApp(svc, images, recognitions, blob)

	req := multipartUploadRequest(t, map[string]string{"sourceService": "pos-terminal-7"})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var decoded response.Recognize
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.NotEmpty(t, decoded.ImageID)
	assert.NotEmpty(t, decoded.RecognitionID)
	assert.Equal(t, string(entity.StatusQueued), decoded.Status)
}

func TestRecognizeHandlerMissingImage(t *testing.T) {
	svc := ingest.New(&mocks.BlobStore{}, &mocks.Cache{}, &mocks.ImagesRepo{}, &mocks.RecognitionsRepo{}, &mocks.Transactor{}, &mocks.Queue{}, testPublisher(), logger.New("error"))
	app := newTestApp(svc, &mocks.ImagesRepo{}, &mocks.RecognitionsRepo{}, &mocks.BlobStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRecognitionHandlerFound(t *testing.T) {
	confidence := 0.91
	engineUsed := entity.EngineTesseract
	resultType := entity.ResultText
	text := "ИТОГ 100.00"
	recognitions := &mocks.RecognitionsRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*entity.Recognition, error) {
			return &entity.Recognition{
				ID: id, ImageID: "image-1", Status: entity.StatusCompleted,
				ResultType: &resultType, RawText: &text, Confidence: &confidence, Engine: &engineUsed,
			}, nil
		},
	}
	app := newTestApp(nil, &mocks.ImagesRepo{}, recognitions, &mocks.BlobStore{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/recognitions/rec-1", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded response.Recognition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "rec-1", decoded.ID)
	require.NotNil(t, decoded.RawText)
	assert.Equal(t, text, *decoded.RawText)
}

func TestGetRecognitionHandlerNotFound(t *testing.T) {
	recognitions := &mocks.RecognitionsRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*entity.Recognition, error) {
			return nil, errs.ErrRecordNotFound
		},
	}
	app := newTestApp(nil, &mocks.ImagesRepo{}, recognitions, &mocks.BlobStore{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/recognitions/missing", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetImageHandlerPresignsOriginal(t *testing.T) {
	images := &mocks.ImagesRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*entity.Image, error) {
			return &entity.Image{ID: id, OriginalURL: "blob://bucket/key.jpg"}, nil
		},
	}
	blob := &mocks.BlobStore{
		PresignFunc: func(ctx context.Context, key string, ttl time.Duration) (string, error) {
			assert.Equal(t, "key.jpg", key)
			return "https://presigned.example/key.jpg", nil
		},
	}
	app := newTestApp(nil, images, &mocks.RecognitionsRepo{}, blob)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/images/img-1", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded response.Image
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "original", decoded.Type)
	assert.Equal(t, "https://presigned.example/key.jpg", decoded.URL)
}

func TestGetImageHandlerProcessedVariantMissing(t *testing.T) {
	images := &mocks.ImagesRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*entity.Image, error) {
			return &entity.Image{ID: id, OriginalURL: "blob://bucket/key.jpg"}, nil
		},
	}
	app := newTestApp(nil, images, &mocks.RecognitionsRepo{}, &mocks.BlobStore{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/images/img-1?type=processed", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetImageHandlerRejectsUnknownVariant(t *testing.T) {
	app := newTestApp(nil, &mocks.ImagesRepo{}, &mocks.RecognitionsRepo{}, &mocks.BlobStore{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/images/img-1?type=thumbnail", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
