package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ayush/medical-report-worker/internal/apperrors"
	"github.com/ayush/medical-report-worker/internal/models"
)

// querier is the part of *pgxpool.Pool the ledger uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the job ledger: one row per request id.
type PostgresStore struct {
	pool querier
}

func NewPostgresStore(pool querier) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the report_jobs table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS report_jobs (
			request_id    VARCHAR(128) PRIMARY KEY,
			user_id       VARCHAR(128) NOT NULL,
			status        VARCHAR(16)  NOT NULL,
			report_id     VARCHAR(64)  NOT NULL DEFAULT '',
			error_message TEXT         NOT NULL DEFAULT '',
			attempts      INTEGER      NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate report_jobs: %w", err)
	}
	return nil
}

// MarkQueued records a newly published request.
func (s *PostgresStore) MarkQueued(ctx context.Context, requestID, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO report_jobs (request_id, user_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (request_id) DO NOTHING`,
		requestID, userID, models.JobQueued,
	)
	if err != nil {
		return fmt.Errorf("mark queued %s: %w", requestID, err)
	}
	return nil
}

// MarkProcessing counts a delivery attempt. Requests published by other
// producers have no queued row yet, so this upserts.
func (s *PostgresStore) MarkProcessing(ctx context.Context, requestID, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO report_jobs (request_id, user_id, status, attempts)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (request_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     attempts = report_jobs.attempts + 1,
		     updated_at = NOW()`,
		requestID, userID, models.JobProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark processing %s: %w", requestID, err)
	}
	return nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, requestID, reportID string) error {
	return s.finish(ctx, requestID, models.JobCompleted, reportID, "")
}

func (s *PostgresStore) MarkFailed(ctx context.Context, requestID, errMsg string) error {
	return s.finish(ctx, requestID, models.JobFailed, "", errMsg)
}

func (s *PostgresStore) finish(ctx context.Context, requestID, status, reportID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE report_jobs
		 SET status = $2, report_id = $3, error_message = $4, updated_at = NOW()
		 WHERE request_id = $1`,
		requestID, status, reportID, errMsg,
	)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", status, requestID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("job " + requestID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, requestID string) (*models.JobRecord, error) {
	var j models.JobRecord
	err := s.pool.QueryRow(ctx,
		`SELECT request_id, user_id, status, report_id, error_message, attempts, created_at, updated_at
		 FROM report_jobs WHERE request_id = $1`, requestID,
	).Scan(&j.RequestID, &j.UserID, &j.Status, &j.ReportID, &j.ErrorMessage, &j.Attempts, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("job")
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", requestID, err)
	}
	return &j, nil
}
