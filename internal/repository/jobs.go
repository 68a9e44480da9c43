package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ocreceipt/ocreceipt/constants"
	"github.com/ocreceipt/ocreceipt/internal/common"
	"github.com/ocreceipt/ocreceipt/internal/entity"
)

// JobRepository owns the upload_jobs table. Status moves strictly forward:
// queued, processing, then exactly one of completed or failed.
type JobRepository interface {
	Create(ctx context.Context, job *entity.UploadJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.UploadJob, error)
	// Claim flips a queued job to processing. It reports false when another
	// worker already owns the job or the job is past that state.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	// MarkCompleted and MarkFailed close a processing episode. They apply
	// only while the caller still holds the claim; if the job was requeued
	// or already reached a terminal state they return ErrStaleClaim and
	// leave the row untouched, so a terminal state is written exactly once.
	MarkCompleted(ctx context.Context, id, receiptID uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	// RequeueIncomplete returns interrupted work to the queue: every queued
	// job, plus processing jobs whose last update is older than staleAfter.
	// A fresher processing row is a live episode on another replica and is
	// left alone.
	RequeueIncomplete(ctx context.Context, staleAfter time.Duration) ([]uuid.UUID, error)
}

type jobRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewJobRepository(db *sql.DB, logger *slog.Logger) JobRepository {
	return &jobRepository{db: db, logger: logger}
}

func (r *jobRepository) Create(ctx context.Context, job *entity.UploadJob) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = constants.JobStatusQueued
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO upload_jobs (id, status, original_filename, stored_key, content_type, receipt_id, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULL, NULL, $6, $6)
	`, job.ID.String(), string(job.Status), job.OriginalFilename, job.StoredKey, job.ContentType, fmtTime(now))
	if err != nil {
		r.logger.Error("failed to insert upload job", "job_id", job.ID, "error", err)
		return common.WrapError(err, "insert upload job")
	}
	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.UploadJob, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, original_filename, stored_key, content_type, receipt_id, error_message, created_at, updated_at
		FROM upload_jobs WHERE id = $1
	`, id.String())
	return scanJob(row)
}

func (r *jobRepository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE upload_jobs SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, string(constants.JobStatusProcessing), fmtTime(time.Now().UTC()), id.String(), string(constants.JobStatusQueued))
	if err != nil {
		return false, common.WrapError(err, "claim upload job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, common.WrapError(err, "claim upload job")
	}
	return n == 1, nil
}

func (r *jobRepository) MarkCompleted(ctx context.Context, id, receiptID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE upload_jobs SET status = $1, receipt_id = $2, error_message = NULL, updated_at = $3
		WHERE id = $4 AND status = $5
	`, string(constants.JobStatusCompleted), receiptID.String(), fmtTime(time.Now().UTC()),
		id.String(), string(constants.JobStatusProcessing))
	if err != nil {
		return common.WrapError(err, "complete upload job")
	}
	return requireOwned(res, "complete upload job")
}

func (r *jobRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE upload_jobs SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`, string(constants.JobStatusFailed), message, fmtTime(time.Now().UTC()),
		id.String(), string(constants.JobStatusProcessing))
	if err != nil {
		return common.WrapError(err, "fail upload job")
	}
	return requireOwned(res, "fail upload job")
}

// requireOwned turns a zero-row terminal update into ErrStaleClaim: the job
// is not in processing under this worker's claim, so the result must be
// discarded rather than overwrite whatever state the row reached.
func requireOwned(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return common.WrapError(err, op)
	}
	if n == 0 {
		return common.WrapError(common.ErrStaleClaim, op)
	}
	return nil
}

func (r *jobRepository) RequeueIncomplete(ctx context.Context, staleAfter time.Duration) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, updated_at FROM upload_jobs WHERE status IN ($1, $2)
	`, string(constants.JobStatusQueued), string(constants.JobStatusProcessing))
	if err != nil {
		return nil, common.WrapError(err, "list incomplete jobs")
	}

	type incomplete struct {
		id     uuid.UUID
		status constants.JobStatus
	}
	var (
		found  []incomplete
		cutoff = time.Now().UTC().Add(-staleAfter)
	)
	for rows.Next() {
		var rawID, status, updatedAt string
		if err := rows.Scan(&rawID, &status, &updatedAt); err != nil {
			_ = rows.Close()
			return nil, common.WrapError(err, "scan incomplete job")
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			r.logger.Warn("skipping malformed job id", "id", rawID)
			continue
		}
		if constants.JobStatus(status) == constants.JobStatusProcessing && parseTime(updatedAt).After(cutoff) {
			// Fresh claim: a live episode, likely on another replica.
			continue
		}
		found = append(found, incomplete{id: id, status: constants.JobStatus(status)})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, common.WrapError(err, "list incomplete jobs")
	}
	_ = rows.Close()

	var ids []uuid.UUID
	for _, j := range found {
		if j.status == constants.JobStatusQueued {
			ids = append(ids, j.id)
			continue
		}
		// Guarded reset: lose the race gracefully if the episode finished
		// between the select and this update.
		res, err := r.db.ExecContext(ctx, `
			UPDATE upload_jobs SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
		`, string(constants.JobStatusQueued), fmtTime(time.Now().UTC()),
			j.id.String(), string(constants.JobStatusProcessing))
		if err != nil {
			return nil, common.WrapError(err, "requeue stale job")
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			ids = append(ids, j.id)
		}
	}
	return ids, nil
}

func scanJob(row *sql.Row) (*entity.UploadJob, error) {
	var (
		job                  entity.UploadJob
		rawID, status        string
		receiptID, errMsg    sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&rawID, &status, &job.OriginalFilename, &job.StoredKey, &job.ContentType,
		&receiptID, &errMsg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "scan upload job")
	}

	if job.ID, err = uuid.Parse(rawID); err != nil {
		return nil, common.WrapError(err, "parse job id")
	}
	job.Status = constants.JobStatus(status)
	if receiptID.Valid {
		rid, err := uuid.Parse(receiptID.String)
		if err != nil {
			return nil, common.WrapError(err, "parse receipt id")
		}
		job.ReceiptID = &rid
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
