package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andromapper/geomapper/internal/model"
)

// ClaimNext atomically claims the oldest pending job for workerID and
// marks it processing. The single-statement UPDATE ... RETURNING makes the
// claim safe against concurrent workers: a job can flip from pending to
// processing exactly once. Returns nil when the queue is empty.
func (s *Store) ClaimNext(ctx context.Context, workerID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = ?, worker_id = ?
		WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY id LIMIT 1)
		  AND status = ?
		RETURNING id, type, payload, status, worker_id, error, created_at`,
		model.JobProcessing, workerID, model.JobPending, model.JobPending)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &j, nil
}

// MarkDone completes a claimed job.
func (s *Store) MarkDone(ctx context.Context, jobID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, model.JobDone, jobID)
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

// MarkError records a failure with diagnostic text. Failed jobs are not
// redispatched; recovery is creating a fresh job.
func (s *Store) MarkError(ctx context.Context, jobID int64, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ? WHERE id = ?`, model.JobError, message, jobID)
	if err != nil {
		return fmt.Errorf("mark job error: %w", err)
	}
	return nil
}

// GetJob is used by tests and operator tooling.
func (s *Store) GetJob(ctx context.Context, id int64) (model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, payload, status, worker_id, error, created_at FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	return j, err
}

func scanJob(r rowScanner) (model.Job, error) {
	var j model.Job
	var typ, status, payload string
	if err := r.Scan(&j.ID, &typ, &payload, &status, &j.WorkerID, &j.Error, &j.CreatedAt); err != nil {
		return model.Job{}, err
	}
	j.Type = model.JobType(typ)
	j.Status = model.JobStatus(status)
	j.Payload = []byte(payload)
	return j, nil
}
