package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parleyai/parley-platform/internal/nlp"
)

// PGJobStore persists job records to PostgreSQL for deployments without
// DynamoDB.
type PGJobStore struct {
	db *pgxpool.Pool
}

// NewPGJobStore builds a Postgres-backed JobStore.
func NewPGJobStore(db *pgxpool.Pool) *PGJobStore {
	if db == nil {
		panic("training: pgx pool cannot be nil")
	}
	return &PGJobStore{db: db}
}

var _ JobRecorder = (*PGJobStore)(nil)
var _ JobUpdater = (*PGJobStore)(nil)

// PutPending inserts a pending job record.
func (s *PGJobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("training: job cannot be nil")
	}

	now := time.Now().UTC()
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	if _, err := s.db.Exec(ctx, `
		INSERT INTO training_jobs (
			job_id, bot_id, status, model_version, accuracy,
			num_intents, num_examples, error_message,
			created_at, updated_at, expires_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, job.JobID, job.BotID, job.Status, job.ModelVersion, job.Accuracy,
		job.NumIntents, job.NumExamples, job.ErrorMessage,
		now, now, time.Unix(job.ExpiresAt, 0).UTC(),
	); err != nil {
		return fmt.Errorf("training: persist job: %w", err)
	}
	return nil
}

// MarkRunning flips a pending job to running.
func (s *PGJobStore) MarkRunning(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("training: jobID required")
	}
	result, err := s.db.Exec(ctx, `
		UPDATE training_jobs
		SET status = $2, updated_at = $3
		WHERE job_id = $1
	`, jobID, JobStatusRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("training: update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkCompleted records the training result on the job.
func (s *PGJobStore) MarkCompleted(ctx context.Context, jobID string, result nlp.TrainingMetrics) error {
	if jobID == "" {
		return errors.New("training: jobID required")
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE training_jobs
		SET status = $2,
		    model_version = $3,
		    accuracy = $4,
		    num_intents = $5,
		    num_examples = $6,
		    error_message = '',
		    updated_at = $7
		WHERE job_id = $1
	`, jobID, JobStatusCompleted, result.Version, result.Accuracy,
		result.NumIntents, result.NumExamples, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("training: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed marks the job as failed with an error message.
func (s *PGJobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errors.New("training: jobID required")
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE training_jobs
		SET status = $2, error_message = $3, updated_at = $4
		WHERE job_id = $1
	`, jobID, JobStatusFailed, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("training: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob loads a job by ID.
func (s *PGJobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("training: jobID required")
	}

	var (
		job       JobRecord
		createdAt time.Time
		updatedAt time.Time
		expiresAt pgtype.Timestamptz
	)
	row := s.db.QueryRow(ctx, `
		SELECT job_id, bot_id, status, model_version, accuracy,
		       num_intents, num_examples, error_message,
		       created_at, updated_at, expires_at
		FROM training_jobs
		WHERE job_id = $1
	`, jobID)

	if err := row.Scan(&job.JobID, &job.BotID, &job.Status, &job.ModelVersion, &job.Accuracy,
		&job.NumIntents, &job.NumExamples, &job.ErrorMessage,
		&createdAt, &updatedAt, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("training: fetch job: %w", err)
	}

	job.CreatedAt = createdAt.Format(time.RFC3339Nano)
	job.UpdatedAt = updatedAt.Format(time.RFC3339Nano)
	if expiresAt.Valid {
		job.ExpiresAt = expiresAt.Time.Unix()
	}
	return &job, nil
}
