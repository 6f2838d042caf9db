package repo

import (
	"context"
	"time"

	"github.com/dkrasnov/receipt-gateway/internal/entity"
)

type (
	// ImagesRepo persists Image metadata. FindByID is read-through
	// cached (TTL 1h); SetProcessedURL is write-through followed by
	// cache invalidation.
	ImagesRepo interface {
		Create(ctx context.Context, image *entity.Image) error
		FindByID(ctx context.Context, id string) (*entity.Image, error)
		// SetProcessedURL is the only mutation C5 performs on an Image
		// after creation.
		SetProcessedURL(ctx context.Context, id string, processedURL string) error
	}

	RecognitionsRepo interface {
		Create(ctx context.Context, r *entity.Recognition) error
		FindByID(ctx context.Context, id string) (*entity.Recognition, error)
		// Update persists a full record. Callers are expected to have
		// advanced Status via a legal transition before calling.
		Update(ctx context.Context, r *entity.Recognition) error
		// FindStaleQueued returns recognitions stuck in `queued` for
		// longer than olderThan; used by an out-of-core-scope janitor.
		FindStaleQueued(ctx context.Context, olderThan time.Duration, limit int) ([]*entity.Recognition, error)
	}

	// BlobStore is opaque key/byte storage with presigned-GET support.
	BlobStore interface {
		Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
		Get(ctx context.Context, key string) ([]byte, error)
		Delete(ctx context.Context, key string) error
		Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	}

	// Cache is a typed key/value store with optional TTL. Entries are
	// idempotent projections; a miss always falls back to the store of
	// record.
	Cache interface {
		Get(ctx context.Context, key string) (string, bool, error)
		Set(ctx context.Context, key, value string, ttl time.Duration) error
		GetBinary(ctx context.Context, key string) ([]byte, bool, error)
		SetBinary(ctx context.Context, key string, value []byte, ttl time.Duration) error
		Delete(ctx context.Context, key string) error
		Exists(ctx context.Context, key string) (bool, error)
	}

	// Transactor runs fn within a single store transaction, propagating
	// it through ctx so repos resolve the same executor.
	Transactor interface {
		WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	}
)
