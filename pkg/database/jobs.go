package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrJobNotFound is returned when no job has the requested ID.
var ErrJobNotFound = errors.New("research job not found")

// Job is a row of research_jobs.
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Topic     string          `json:"topic"`
	Breadth   int             `json:"breadth"`
	Depth     int             `json:"depth"`
	Status    string          `json:"status"`
	State     json.RawMessage `json:"state,omitempty"`
	Report    *string         `json:"report,omitempty"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LogEntry is a row of research_logs.
type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

const jobColumns = `id, topic, breadth, depth, status, state, report, error, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	job := &Job{}
	var state []byte
	err := row.Scan(&job.ID, &job.Topic, &job.Breadth, &job.Depth, &job.Status,
		&state, &job.Report, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(state) > 0 {
		job.State = state
	}
	return job, nil
}

// CreateJob inserts a pending job.
func (db *PostgresDB) CreateJob(ctx context.Context, topic string, breadth, depth int) (*Job, error) {
	query := `
		INSERT INTO research_jobs (id, topic, breadth, depth, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING ` + jobColumns

	job, err := scanJob(db.Pool.QueryRow(ctx, query, uuid.New(), topic, breadth, depth))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// GetJob returns the job with id, or ErrJobNotFound.
func (db *PostgresDB) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := scanJob(db.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first.
func (db *PostgresDB) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+jobColumns+` FROM research_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// SetJobStatus updates the status of a job.
func (db *PostgresDB) SetJobStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := db.Pool.Exec(ctx, "UPDATE research_jobs SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// SaveJobState stores an intermediate research state.
func (db *PostgresDB) SaveJobState(ctx context.Context, id uuid.UUID, state json.RawMessage) error {
	_, err := db.Pool.Exec(ctx, "UPDATE research_jobs SET state = $2, updated_at = NOW() WHERE id = $1", id, []byte(state))
	if err != nil {
		return fmt.Errorf("failed to save job state: %w", err)
	}
	return nil
}

// CompleteJob stores the final state and report and marks the job completed.
func (db *PostgresDB) CompleteJob(ctx context.Context, id uuid.UUID, state json.RawMessage, report string) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE research_jobs SET status = 'completed', state = $2, report = $3, updated_at = NOW() WHERE id = $1",
		id, []byte(state), report)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// FailJob marks the job failed with reason.
func (db *PostgresDB) FailJob(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE research_jobs SET status = 'failed', error = $2, updated_at = NOW() WHERE id = $1",
		id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// DeleteJob removes a job and, by cascade, its logs.
func (db *PostgresDB) DeleteJob(ctx context.Context, id uuid.UUID) error {
	result, err := db.Pool.Exec(ctx, "DELETE FROM research_jobs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// InsertLog appends a log record to a job.
func (db *PostgresDB) InsertLog(ctx context.Context, jobID uuid.UUID, at time.Time, level, message string, metadata json.RawMessage) error {
	query := `
		INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := db.Pool.Exec(ctx, query, jobID, at, level, message, []byte(metadata))
	return err
}

// GetJobLogs returns the logs of a job in insertion order.
func (db *PostgresDB) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := db.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		var meta []byte
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		if len(meta) > 0 {
			l.Metadata = meta
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
