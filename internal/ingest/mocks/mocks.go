// Package mocks provides hand-written test doubles for the repo/queue
// contracts ingest.Service depends on, in the style of docapi's
// internal/repository/mocks package.
package mocks

import (
	"context"
	"time"

	"github.com/dkrasnov/receipt-gateway/internal/entity"
)

type ImagesRepo struct {
	CreateFunc         func(ctx context.Context, image *entity.Image) error
	FindByIDFunc       func(ctx context.Context, id string) (*entity.Image, error)
	SetProcessedURLFunc func(ctx context.Context, id, processedURL string) error

	Created             []*entity.Image
	SetProcessedURLCalls int
}

func (m *ImagesRepo) Create(ctx context.Context, image *entity.Image) error {
	m.Created = append(m.Created, image)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, image)
	}
	return nil
}

func (m *ImagesRepo) FindByID(ctx context.Context, id string) (*entity.Image, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *ImagesRepo) SetProcessedURL(ctx context.Context, id, processedURL string) error {
	m.SetProcessedURLCalls++
	if m.SetProcessedURLFunc != nil {
		return m.SetProcessedURLFunc(ctx, id, processedURL)
	}
	return nil
}

type RecognitionsRepo struct {
	CreateFunc         func(ctx context.Context, r *entity.Recognition) error
	FindByIDFunc       func(ctx context.Context, id string) (*entity.Recognition, error)
	UpdateFunc         func(ctx context.Context, r *entity.Recognition) error
	FindStaleQueuedFunc func(ctx context.Context, olderThan time.Duration, limit int) ([]*entity.Recognition, error)

	Created []*entity.Recognition
	Updated []*entity.Recognition
}

func (m *RecognitionsRepo) Create(ctx context.Context, r *entity.Recognition) error {
	m.Created = append(m.Created, r)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, r)
	}
	return nil
}

func (m *RecognitionsRepo) FindByID(ctx context.Context, id string) (*entity.Recognition, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *RecognitionsRepo) Update(ctx context.Context, r *entity.Recognition) error {
	m.Updated = append(m.Updated, r)
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, r)
	}
	return nil
}

func (m *RecognitionsRepo) FindStaleQueued(ctx context.Context, olderThan time.Duration, limit int) ([]*entity.Recognition, error) {
	if m.FindStaleQueuedFunc != nil {
		return m.FindStaleQueuedFunc(ctx, olderThan, limit)
	}
	return nil, nil
}

type BlobStore struct {
	PutFunc     func(ctx context.Context, key string, data []byte, contentType string) (string, error)
	GetFunc     func(ctx context.Context, key string) ([]byte, error)
	DeleteFunc  func(ctx context.Context, key string) error
	PresignFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)

	Deleted []string
}

func (m *BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, data, contentType)
	}
	return "blob://bucket/" + key, nil
}

func (m *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, nil
}

func (m *BlobStore) Delete(ctx context.Context, key string) error {
	m.Deleted = append(m.Deleted, key)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

func (m *BlobStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.PresignFunc != nil {
		return m.PresignFunc(ctx, key, ttl)
	}
	return "https://presigned.example/" + key, nil
}

type Cache struct {
	SetBinaryFunc func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	GetBinaryFunc func(ctx context.Context, key string) ([]byte, bool, error)
}

func (m *Cache) Get(ctx context.Context, key string) (string, bool, error) { return "", false, nil }
func (m *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error { return nil }

func (m *Cache) GetBinary(ctx context.Context, key string) ([]byte, bool, error) {
	if m.GetBinaryFunc != nil {
		return m.GetBinaryFunc(ctx, key)
	}
	return nil, false, nil
}

func (m *Cache) SetBinary(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.SetBinaryFunc != nil {
		return m.SetBinaryFunc(ctx, key, value, ttl)
	}
	return nil
}

func (m *Cache) Delete(ctx context.Context, key string) error          { return nil }
func (m *Cache) Exists(ctx context.Context, key string) (bool, error) { return false, nil }

type Transactor struct {
	Err error
}

func (m *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.Err != nil {
		return m.Err
	}
	return fn(ctx)
}

type Queue struct {
	EnqueueFunc func(ctx context.Context, payload []byte) (int64, error)

	Enqueued  [][]byte
	Requeued  [][]byte
	Completed [][]byte
}

func (m *Queue) Enqueue(ctx context.Context, payload []byte) (int64, error) {
	m.Enqueued = append(m.Enqueued, payload)
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, payload)
	}
	return 1, nil
}

func (m *Queue) Dequeue(ctx context.Context, payload *[]byte) (bool, error) { return false, nil }

func (m *Queue) Requeue(ctx context.Context, payload []byte, attempt int) error {
	m.Requeued = append(m.Requeued, payload)
	return nil
}

func (m *Queue) MarkCompleted(ctx context.Context, payload []byte) error {
	m.Completed = append(m.Completed, payload)
	return nil
}

func (m *Queue) WaitingCount(ctx context.Context) (int64, error) { return 0, nil }
