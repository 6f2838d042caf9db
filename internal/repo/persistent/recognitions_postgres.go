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

const (
	recognitionsTable = "recognition_results"

	recIDColumn               = "id"
	recImageIDColumn          = "image_id"
	recStatusColumn           = "status"
	recResultTypeColumn       = "result_type"
	recRawTextColumn          = "raw_text"
	recConfidenceColumn       = "confidence"
	recEngineColumn           = "engine"
	recAlignedColumn          = "aligned"
	recQRDataColumn           = "qr_data"
	recQRFormatColumn         = "qr_format"
	recQRLocXColumn           = "qr_location_x"
	recQRLocYColumn           = "qr_location_y"
	recQRLocWColumn           = "qr_location_w"
	recQRLocHColumn           = "qr_location_h"
	recProcessingTimeColumn   = "processing_time_ms"
	recQueueWaitTimeColumn    = "queue_wait_time_ms"
	recAttemptNumberColumn    = "attempt_number"
	recErrorColumn            = "error"
	recCreatedAtColumn        = "created_at"
	recCompletedAtColumn      = "completed_at"
)

type RecognitionsRepo struct {
	*postgres.Postgres
	cache repo.Cache
}

func NewRecognitionsRepo(pg *postgres.Postgres, cache repo.Cache) *RecognitionsRepo {
	return &RecognitionsRepo{pg, cache}
}

func (r *RecognitionsRepo) Create(ctx context.Context, rec *entity.Recognition) error {
	sql, args, err := r.Builder.
		Insert(recognitionsTable).
		Columns(
			recIDColumn,
			recImageIDColumn,
			recStatusColumn,
			recAttemptNumberColumn,
			recCreatedAtColumn,
		).
		Values(
			rec.ID,
			rec.ImageID,
			string(rec.Status),
			rec.AttemptNumber,
			rec.CreatedAt,
		).ToSql()
	if err != nil {
		return fmt.Errorf("RecognitionsRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("RecognitionsRepo - Create - executor.Exec: %w", err)
	}

	return nil
}

func (r *RecognitionsRepo) FindByID(ctx context.Context, id string) (*entity.Recognition, error) {
	cacheKey := cachekeys.RecognitionMeta(id)
	if cached, ok, err := r.cache.GetBinary(ctx, cacheKey); err == nil && ok {
		var rec entity.Recognition
		if err := json.Unmarshal(cached, &rec); err == nil {
			return &rec, nil
		}
	}

	sql, args, err := r.Builder.
		Select(
			recIDColumn, recImageIDColumn, recStatusColumn, recResultTypeColumn,
			recRawTextColumn, recConfidenceColumn, recEngineColumn, recAlignedColumn,
			recQRDataColumn, recQRFormatColumn, recQRLocXColumn, recQRLocYColumn, recQRLocWColumn, recQRLocHColumn,
			recProcessingTimeColumn, recQueueWaitTimeColumn, recAttemptNumberColumn,
			recErrorColumn, recCreatedAtColumn, recCompletedAtColumn,
		).
		From(recognitionsTable).
		Where(squirrel.Eq{recIDColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("RecognitionsRepo - FindByID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rec, err := scanRecognition(executor.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("RecognitionsRepo - FindByID: %w", errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("RecognitionsRepo - FindByID - scanRecognition: %w", err)
	}

	if encoded, err := json.Marshal(rec); err == nil {
		_ = r.cache.SetBinary(ctx, cacheKey, encoded, metaCacheTTL)
	}

	return rec, nil
}

func (r *RecognitionsRepo) Update(ctx context.Context, rec *entity.Recognition) error {
	var qrX, qrY, qrW, qrH *int
	if rec.QRLocation != nil {
		qrX, qrY, qrW, qrH = &rec.QRLocation.X, &rec.QRLocation.Y, &rec.QRLocation.Width, &rec.QRLocation.Height
	}

	var resultType, engine, qrFormat *string
	if rec.ResultType != nil {
		s := string(*rec.ResultType)
		resultType = &s
	}
	if rec.Engine != nil {
		s := string(*rec.Engine)
		engine = &s
	}
	if rec.QRFormat != nil {
		s := string(*rec.QRFormat)
		qrFormat = &s
	}

	sql, args, err := r.Builder.
		Update(recognitionsTable).
		Set(recStatusColumn, string(rec.Status)).
		Set(recResultTypeColumn, resultType).
		Set(recRawTextColumn, rec.RawText).
		Set(recConfidenceColumn, rec.Confidence).
		Set(recEngineColumn, engine).
		Set(recAlignedColumn, rec.Aligned).
		Set(recQRDataColumn, rec.QRData).
		Set(recQRFormatColumn, qrFormat).
		Set(recQRLocXColumn, qrX).
		Set(recQRLocYColumn, qrY).
		Set(recQRLocWColumn, qrW).
		Set(recQRLocHColumn, qrH).
		Set(recProcessingTimeColumn, rec.ProcessingTimeMs).
		Set(recQueueWaitTimeColumn, rec.QueueWaitTimeMs).
		Set(recAttemptNumberColumn, rec.AttemptNumber).
		Set(recErrorColumn, rec.Error).
		Set(recCompletedAtColumn, rec.CompletedAt).
		Where(squirrel.Eq{recIDColumn: rec.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("RecognitionsRepo - Update - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("RecognitionsRepo - Update - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("RecognitionsRepo - Update: %w", errs.ErrRecordNotFound)
	}

	_ = r.cache.Delete(ctx, cachekeys.RecognitionMeta(rec.ID))

	return nil
}

func (r *RecognitionsRepo) FindStaleQueued(ctx context.Context, olderThan time.Duration, limit int) ([]*entity.Recognition, error) {
	cutoff := time.Now().Add(-olderThan)

	sql, args, err := r.Builder.
		Select(
			recIDColumn, recImageIDColumn, recStatusColumn, recResultTypeColumn,
			recRawTextColumn, recConfidenceColumn, recEngineColumn, recAlignedColumn,
			recQRDataColumn, recQRFormatColumn, recQRLocXColumn, recQRLocYColumn, recQRLocWColumn, recQRLocHColumn,
			recProcessingTimeColumn, recQueueWaitTimeColumn, recAttemptNumberColumn,
			recErrorColumn, recCreatedAtColumn, recCompletedAtColumn,
		).
		From(recognitionsTable).
		Where(squirrel.And{
			squirrel.Eq{recStatusColumn: string(entity.StatusQueued)},
			squirrel.Lt{recCreatedAtColumn: cutoff},
		}).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("RecognitionsRepo - FindStaleQueued - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("RecognitionsRepo - FindStaleQueued - executor.Query: %w", err)
	}
	defer rows.Close()

	var out []*entity.Recognition
	for rows.Next() {
		rec, err := scanRecognition(rows)
		if err != nil {
			return nil, fmt.Errorf("RecognitionsRepo - FindStaleQueued - scanRecognition: %w", err)
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

// rowScanner matches both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecognition(row rowScanner) (*entity.Recognition, error) {
	var rec entity.Recognition
	var status string
	var resultType, engine, qrFormat *string
	var qrX, qrY, qrW, qrH *int

	err := row.Scan(
		&rec.ID, &rec.ImageID, &status, &resultType,
		&rec.RawText, &rec.Confidence, &engine, &rec.Aligned,
		&rec.QRData, &qrFormat, &qrX, &qrY, &qrW, &qrH,
		&rec.ProcessingTimeMs, &rec.QueueWaitTimeMs, &rec.AttemptNumber,
		&rec.Error, &rec.CreatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = entity.Status(status)
	if resultType != nil {
		v := entity.ResultType(*resultType)
		rec.ResultType = &v
	}
	if engine != nil {
		v := entity.Engine(*engine)
		rec.Engine = &v
	}
	if qrFormat != nil {
		v := entity.QRFormat(*qrFormat)
		rec.QRFormat = &v
	}
	if qrX != nil && qrY != nil && qrW != nil && qrH != nil {
		rec.QRLocation = &entity.QRLocation{X: *qrX, Y: *qrY, Width: *qrW, Height: *qrH}
	}

	return &rec, nil
}
