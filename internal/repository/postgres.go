package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS batch_jobs (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	model_name      TEXT NOT NULL DEFAULT '',
	total_documents INTEGER NOT NULL DEFAULT 0,
	processed_count INTEGER NOT NULL DEFAULT 0,
	failed_count    INTEGER NOT NULL DEFAULT 0,
	cancelled       BOOLEAN NOT NULL DEFAULT FALSE,
	error_message   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_results (
	job_id            TEXT NOT NULL,
	row_index         INTEGER NOT NULL,
	title             TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	tags              TEXT[] NOT NULL DEFAULT '{}',
	error_message     TEXT NOT NULL DEFAULT '',
	error_kind        TEXT NOT NULL DEFAULT '',
	extraction_method TEXT NOT NULL DEFAULT '',
	language          TEXT NOT NULL DEFAULT '',
	quality_tier      TEXT NOT NULL DEFAULT '',
	page_count        INTEGER NOT NULL DEFAULT 0,
	pages_extracted   INTEGER NOT NULL DEFAULT 0,
	is_scanned        BOOLEAN NOT NULL DEFAULT FALSE,
	processing_ms     BIGINT NOT NULL DEFAULT 0,
	recorded_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (job_id, row_index)
);`

// PostgresRepository persists jobs through a pgx connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Migrate creates the tables when they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) RecordJobStatus(ctx context.Context, job *models.BatchJob) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO batch_jobs (
			id, status, model_name, total_documents, processed_count,
			failed_count, cancelled, error_message, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			processed_count = EXCLUDED.processed_count,
			failed_count = EXCLUDED.failed_count,
			cancelled = EXCLUDED.cancelled,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
		WHERE batch_jobs.status NOT IN ('completed', 'failed', 'cancelled')
	`,
		job.ID,
		string(job.Status),
		job.Config.ModelName,
		job.TotalDocuments,
		job.ProcessedCount,
		job.FailedCount,
		job.Cancelled,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RecordDocumentResult(ctx context.Context, jobID string, res models.DocumentResult) error {
	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO batch_results (
			job_id, row_index, title, status, tags, error_message, error_kind,
			extraction_method, language, quality_tier, page_count,
			pages_extracted, is_scanned, processing_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (job_id, row_index) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			tags = EXCLUDED.tags,
			error_message = EXCLUDED.error_message,
			error_kind = EXCLUDED.error_kind,
			extraction_method = EXCLUDED.extraction_method,
			language = EXCLUDED.language,
			quality_tier = EXCLUDED.quality_tier,
			page_count = EXCLUDED.page_count,
			pages_extracted = EXCLUDED.pages_extracted,
			is_scanned = EXCLUDED.is_scanned,
			processing_ms = EXCLUDED.processing_ms,
			recorded_at = now()
	`,
		jobID,
		res.RowIndex,
		res.Title,
		string(res.Status),
		tags,
		res.Error,
		string(res.ErrorKind),
		string(res.ExtractionMethod),
		res.Language,
		string(res.QualityTier),
		res.PageCount,
		res.PagesExtracted,
		res.IsScanned,
		res.ProcessingMs,
	)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetJob(ctx context.Context, jobID string) (*models.BatchJob, error) {
	var (
		job       models.BatchJob
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, status, model_name, total_documents, processed_count, failed_count, cancelled,
			error_message, created_at, updated_at
		FROM batch_jobs
		WHERE id = $1
	`, jobID).Scan(
		&job.ID,
		&status,
		&job.Config.ModelName,
		&job.TotalDocuments,
		&job.ProcessedCount,
		&job.FailedCount,
		&job.Cancelled,
		&job.Error,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrJobNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}
	job.Status = models.JobStatus(status)
	job.CreatedAt = createdAt
	job.UpdatedAt = updatedAt

	rows, err := r.pool.Query(ctx, `
		SELECT row_index, title, status, tags, error_message, error_kind,
			extraction_method, language, quality_tier, page_count,
			pages_extracted, is_scanned, processing_ms
		FROM batch_results
		WHERE job_id = $1
		ORDER BY row_index
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res                           models.DocumentResult
			resStatus, kind, method, tier string
		)
		if err := rows.Scan(
			&res.RowIndex,
			&res.Title,
			&resStatus,
			&res.Tags,
			&res.Error,
			&kind,
			&method,
			&res.Language,
			&tier,
			&res.PageCount,
			&res.PagesExtracted,
			&res.IsScanned,
			&res.ProcessingMs,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.Status = models.DocumentStatus(resStatus)
		res.ErrorKind = models.ErrorKind(kind)
		res.ExtractionMethod = models.ExtractionMethod(method)
		res.QualityTier = models.QualityTier(tier)
		job.Results = append(job.Results, res)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate results: %w", rows.Err())
	}
	return &job, nil
}
