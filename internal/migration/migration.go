package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkrasnov/receipt-gateway/pkg/logger"
)

type step struct {
	name string
	sql  string
}

var steps = []step{
	{
		name: "create_type_status_enum",
		sql:  `DO $$ BEGIN CREATE TYPE status_enum AS ENUM ('queued','processing','completed','failed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
	},
	{
		name: "create_type_result_type_enum",
		sql:  `DO $$ BEGIN CREATE TYPE result_type_enum AS ENUM ('text','qr'); EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
	},
	{
		name: "create_type_engine_enum",
		sql:  `DO $$ BEGIN CREATE TYPE engine_enum AS ENUM ('tesseract','paddleocr'); EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
	},
	{
		name: "create_type_qr_format_enum",
		sql:  `DO $$ BEGIN CREATE TYPE qr_format_enum AS ENUM ('fiscal','url','unknown'); EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
	},
	{
		name: "create_table_images",
		sql: `CREATE TABLE IF NOT EXISTS images (
  id               TEXT        PRIMARY KEY,
  original_url     TEXT        NOT NULL,
  processed_url    TEXT,
  file_size        BIGINT      NOT NULL CHECK (file_size > 0 AND file_size <= 10485760),
  mime_type        TEXT        NOT NULL,
  width            INTEGER,
  height           INTEGER,
  source_service   TEXT,
  source_reference TEXT,
  uploaded_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		name: "create_table_recognition_results",
		sql: `CREATE TABLE IF NOT EXISTS recognition_results (
  id                  TEXT              PRIMARY KEY,
  image_id            TEXT              NOT NULL REFERENCES images(id) ON DELETE CASCADE,
  status              status_enum       NOT NULL,
  result_type         result_type_enum,
  raw_text            TEXT,
  confidence          DOUBLE PRECISION  CHECK (confidence IS NULL OR confidence >= 0),
  engine              engine_enum,
  aligned             BOOLEAN,
  qr_data             TEXT,
  qr_format           qr_format_enum,
  qr_location_x       INTEGER,
  qr_location_y       INTEGER,
  qr_location_w       INTEGER,
  qr_location_h       INTEGER,
  processing_time_ms  BIGINT,
  queue_wait_time_ms  BIGINT,
  attempt_number      INTEGER           NOT NULL DEFAULT 1,
  error               TEXT,
  created_at          TIMESTAMPTZ       NOT NULL DEFAULT now(),
  completed_at        TIMESTAMPTZ
);`,
	},
	{
		name: "create_index_recognition_results_image_id",
		sql:  `CREATE INDEX IF NOT EXISTS idx_recognition_results_image_id ON recognition_results (image_id);`,
	},
	{
		name: "create_index_recognition_results_status_created_at",
		sql:  `CREATE INDEX IF NOT EXISTS idx_recognition_results_status_created_at ON recognition_results (status, created_at);`,
	},
}

// EnsureMigrated checks for the recognition_results sentinel table and
// runs the idempotent DDL steps if it is absent.
func EnsureMigrated(ctx context.Context, pool *pgxpool.Pool, l logger.Interface) error {
	start := time.Now()

	l.Info("migration - EnsureMigrated - checking sentinel table")

	var exists bool
	err := pool.QueryRow(ctx, `SELECT to_regclass('public.recognition_results') IS NOT NULL`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("migration - EnsureMigrated - sentinel check: %w", err)
	}

	if exists {
		l.Info("migration - EnsureMigrated - schema already present, skipping, durationMs=%d", time.Since(start).Milliseconds())
		return nil
	}

	l.Info("migration - EnsureMigrated - schema absent, running migration steps")

	for _, s := range steps {
		stepStart := time.Now()

		if _, err := pool.Exec(ctx, s.sql); err != nil {
			l.Error(err, "migration - EnsureMigrated - step failed, step=%s", s.name)
			return fmt.Errorf("migration - EnsureMigrated - step %s: %w", s.name, err)
		}

		l.Debug("migration - EnsureMigrated - step done, step=%s, durationMs=%d", s.name, time.Since(stepStart).Milliseconds())
	}

	l.Info("migration - EnsureMigrated - complete, durationMs=%d", time.Since(start).Milliseconds())

	return nil
}
