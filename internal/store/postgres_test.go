package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/medical-report-worker/internal/apperrors"
	"github.com/ayush/medical-report-worker/internal/models"
)

type execCall struct {
	sql  string
	args []any
}

type fakeQuerier struct {
	execs    []execCall
	execTag  pgconn.CommandTag
	execErr  error
	row      pgx.Row
	queryArg []any
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return f.execTag, f.execErr
}

func (f *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.queryArg = args
	return f.row
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *int:
			*p = r.values[i].(int)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

func TestPostgresStore_Transitions(t *testing.T) {
	ctx := context.Background()
	q := &fakeQuerier{execTag: pgconn.NewCommandTag("UPDATE 1")}
	s := NewPostgresStore(q)

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.MarkQueued(ctx, "r1", "u1"))
	require.NoError(t, s.MarkProcessing(ctx, "r1", "u1"))
	require.NoError(t, s.MarkCompleted(ctx, "r1", "rep-1"))
	require.NoError(t, s.MarkFailed(ctx, "r2", "boom"))

	require.Len(t, q.execs, 5)
	assert.Contains(t, q.execs[0].sql, "CREATE TABLE IF NOT EXISTS report_jobs")
	assert.Equal(t, []any{"r1", "u1", models.JobQueued}, q.execs[1].args)
	assert.Equal(t, []any{"r1", "u1", models.JobProcessing}, q.execs[2].args)
	assert.Contains(t, q.execs[2].sql, "attempts = report_jobs.attempts + 1")
	assert.Equal(t, []any{"r1", models.JobCompleted, "rep-1", ""}, q.execs[3].args)
	assert.Equal(t, []any{"r2", models.JobFailed, "", "boom"}, q.execs[4].args)
}

func TestPostgresStore_FinishUnknownJob(t *testing.T) {
	q := &fakeQuerier{execTag: pgconn.NewCommandTag("UPDATE 0")}
	err := NewPostgresStore(q).MarkCompleted(context.Background(), "missing", "rep")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestPostgresStore_ExecError(t *testing.T) {
	q := &fakeQuerier{execErr: errors.New("connection reset")}
	err := NewPostgresStore(q).MarkQueued(context.Background(), "r1", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark queued r1")
}

func TestPostgresStore_GetJob(t *testing.T) {
	now := time.Now()
	q := &fakeQuerier{row: fakeRow{values: []any{
		"r1", "u1", models.JobCompleted, "rep-1", "", 2, now, now,
	}}}

	job, err := NewPostgresStore(q).GetJob(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []any{"r1"}, q.queryArg)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, "rep-1", job.ReportID)
	assert.Equal(t, 2, job.Attempts)
}

func TestPostgresStore_GetJobMissing(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}
	_, err := NewPostgresStore(q).GetJob(context.Background(), "r1")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
