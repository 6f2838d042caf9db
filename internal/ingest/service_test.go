package ingest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrasnov/receipt-gateway/internal/bus"
	"github.com/dkrasnov/receipt-gateway/internal/entity"
	"github.com/dkrasnov/receipt-gateway/internal/ingest/mocks"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
	"github.com/dkrasnov/receipt-gateway/pkg/types/errs"
)

// testPublisher returns a real bus.Publisher pointed at an address
// nothing listens on: PublishQueued's failure path is logged and
// swallowed, so tests only need to confirm UploadImage never blocks on
// or propagates a publish failure.
func testPublisher() *bus.Publisher {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	return bus.New(client, logger.New("error"))
}

func newTestService(t *testing.T) (*Service, *mocks.ImagesRepo, *mocks.RecognitionsRepo, *mocks.BlobStore, *mocks.Queue) {
	t.Helper()
	images := &mocks.ImagesRepo{}
	recognitions := &mocks.RecognitionsRepo{}
	blob := &mocks.BlobStore{}
	cache := &mocks.Cache{}
	tx := &mocks.Transactor{}
	q := &mocks.Queue{}

	svc := New(blob, cache, images, recognitions, tx, q, testPublisher(), logger.New("error"))
	return svc, images, recognitions, blob, q
}

func TestUploadImageHappyPath(t *testing.T) {
	svc, images, recognitions, _, q := newTestService(t)

	result, err := svc.UploadImage(context.Background(), bytes.NewReader([]byte("fake-jpeg-bytes")), "image/jpeg", 15, UploadOptions{})

	require.NoError(t, err)
	assert.NotEmpty(t, result.ImageID)
	assert.NotEmpty(t, result.RecognitionID)
	assert.Equal(t, entity.StatusQueued, result.Status)
	require.Len(t, images.Created, 1)
	require.Len(t, recognitions.Created, 1)
	assert.Equal(t, result.ImageID, images.Created[0].ID)
	assert.Equal(t, result.RecognitionID, recognitions.Created[0].ID)
	assert.Equal(t, 1, recognitions.Created[0].AttemptNumber)
	require.Len(t, q.Enqueued, 1)
}

func TestUploadImageRejectsUnsupportedMime(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.UploadImage(context.Background(), bytes.NewReader([]byte("data")), "image/gif", 4, UploadOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestUploadImageRejectsOversizedDeclaration(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.UploadImage(context.Background(), bytes.NewReader([]byte("data")), "image/jpeg", entity.MaxImageSize+1, UploadOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestUploadImageRejectsUnknownAcceptedFormat(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.UploadImage(context.Background(), bytes.NewReader([]byte("data")), "image/jpeg", 4, UploadOptions{
		AcceptedQRFormats: []entity.QRFormat{"not-a-real-format"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestUploadImageCompensatesBlobOnTransactionFailure(t *testing.T) {
	images := &mocks.ImagesRepo{}
	recognitions := &mocks.RecognitionsRepo{}
	blob := &mocks.BlobStore{}
	cache := &mocks.Cache{}
	tx := &mocks.Transactor{Err: errors.New("insert failed")}
	q := &mocks.Queue{}

	svc := New(blob, cache, images, recognitions, tx, q, testPublisher(), logger.New("error"))

	_, err := svc.UploadImage(context.Background(), bytes.NewReader([]byte("fake-jpeg-bytes")), "image/jpeg", 15, UploadOptions{})

	require.Error(t, err)
	require.Len(t, blob.Deleted, 1)
	assert.Empty(t, q.Enqueued)
}
