package persistent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/dkrasnov/receipt-gateway/internal/cachekeys"
	"github.com/dkrasnov/receipt-gateway/internal/entity"
	"github.com/dkrasnov/receipt-gateway/internal/repo"
	"github.com/dkrasnov/receipt-gateway/pkg/postgres"
	"github.com/dkrasnov/receipt-gateway/pkg/types/errs"
	"github.com/jackc/pgx/v5"
)

// metaCacheTTL is the read-through TTL for cached Image/Recognition
// metadata rows (spec.md §4.2).
const metaCacheTTL = time.Hour

const (
	imagesTable = "images"

	imgIDColumn              = "id"
	imgOriginalURLColumn     = "original_url"
	imgProcessedURLColumn    = "processed_url"
	imgFileSizeColumn        = "file_size"
	imgMimeTypeColumn        = "mime_type"
	imgWidthColumn           = "width"
	imgHeightColumn          = "height"
	imgSourceServiceColumn   = "source_service"
	imgSourceReferenceColumn = "source_reference"
	imgUploadedAtColumn      = "uploaded_at"
)

type ImagesRepo struct {
	*postgres.Postgres
	cache repo.Cache
}

func NewImagesRepo(pg *postgres.Postgres, cache repo.Cache) *ImagesRepo {
	return &ImagesRepo{pg, cache}
}

func (r *ImagesRepo) Create(ctx context.Context, image *entity.Image) error {
	sql, args, err := r.Builder.
		Insert(imagesTable).
		Columns(
			imgIDColumn,
			imgOriginalURLColumn,
			imgFileSizeColumn,
			imgMimeTypeColumn,
			imgWidthColumn,
			imgHeightColumn,
			imgSourceServiceColumn,
			imgSourceReferenceColumn,
			imgUploadedAtColumn,
		).
		Values(
			image.ID,
			image.OriginalURL,
			image.FileSize,
			string(image.MimeType),
			image.Width,
			image.Height,
			image.SourceService,
			image.SourceReference,
			image.UploadedAt,
		).ToSql()
	if err != nil {
		return fmt.Errorf("ImagesRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("ImagesRepo - Create - executor.Exec: %w", err)
	}

	return nil
}

func (r *ImagesRepo) FindByID(ctx context.Context, id string) (*entity.Image, error) {
	cacheKey := cachekeys.ImageMeta(id)
	if cached, ok, err := r.cache.GetBinary(ctx, cacheKey); err == nil && ok {
		var image entity.Image
		if err := json.Unmarshal(cached, &image); err == nil {
			return &image, nil
		}
	}

	sql, args, err := r.Builder.
		Select(
			imgIDColumn,
			imgOriginalURLColumn,
			imgProcessedURLColumn,
			imgFileSizeColumn,
			imgMimeTypeColumn,
			imgWidthColumn,
			imgHeightColumn,
			imgSourceServiceColumn,
			imgSourceReferenceColumn,
			imgUploadedAtColumn,
		).
		From(imagesTable).
		Where(squirrel.Eq{imgIDColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ImagesRepo - FindByID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var image entity.Image
	var mimeType string
	err = executor.QueryRow(ctx, sql, args...).Scan(
		&image.ID,
		&image.OriginalURL,
		&image.ProcessedURL,
		&image.FileSize,
		&mimeType,
		&image.Width,
		&image.Height,
		&image.SourceService,
		&image.SourceReference,
		&image.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ImagesRepo - FindByID: %w", errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("ImagesRepo - FindByID - executor.QueryRow: %w", err)
	}
	image.MimeType = entity.MimeType(mimeType)

	if encoded, err := json.Marshal(&image); err == nil {
		_ = r.cache.SetBinary(ctx, cacheKey, encoded, metaCacheTTL)
	}

	return &image, nil
}

func (r *ImagesRepo) SetProcessedURL(ctx context.Context, id string, processedURL string) error {
	sql, args, err := r.Builder.
		Update(imagesTable).
		Set(imgProcessedURLColumn, processedURL).
		Where(squirrel.Eq{imgIDColumn: id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("ImagesRepo - SetProcessedURL - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("ImagesRepo - SetProcessedURL - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ImagesRepo - SetProcessedURL: %w", errs.ErrRecordNotFound)
	}

	_ = r.cache.Delete(ctx, cachekeys.ImageMeta(id))

	return nil
}
