package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const createDeployJob = `
INSERT INTO deploy_jobs (id, app_id, revision, revert, status, attempts, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
RETURNING id, app_id, revision, revert, status, outcome, attempts, error_message, created_at, updated_at, finished_at
`

type CreateDeployJobParams struct {
	ID        string
	AppID     string
	Revision  pgtype.Text
	Revert    bool
	Status    string
	CreatedAt time.Time
}

func (q *Queries) CreateDeployJob(ctx context.Context, arg CreateDeployJobParams) (DeployJob, error) {
	row := q.db.QueryRow(ctx, createDeployJob,
		arg.ID,
		arg.AppID,
		arg.Revision,
		arg.Revert,
		arg.Status,
		arg.CreatedAt,
	)
	return scanDeployJob(row)
}

const getDeployJobByID = `
SELECT id, app_id, revision, revert, status, outcome, attempts, error_message, created_at, updated_at, finished_at
FROM deploy_jobs
WHERE id = $1
`

func (q *Queries) GetDeployJobByID(ctx context.Context, id string) (DeployJob, error) {
	row := q.db.QueryRow(ctx, getDeployJobByID, id)
	return scanDeployJob(row)
}

const listDeployJobs = `
SELECT id, app_id, revision, revert, status, outcome, attempts, error_message, created_at, updated_at, finished_at
FROM deploy_jobs
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::text IS NULL OR app_id = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`

type ListDeployJobsParams struct {
	Status pgtype.Text
	AppID  pgtype.Text
	Limit  int32
	Offset int32
}

func (q *Queries) ListDeployJobs(ctx context.Context, arg ListDeployJobsParams) ([]DeployJob, error) {
	rows, err := q.db.Query(ctx, listDeployJobs, arg.Status, arg.AppID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []DeployJob
	for rows.Next() {
		job, err := scanDeployJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const countDeployJobs = `
SELECT COUNT(*)
FROM deploy_jobs
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::text IS NULL OR app_id = $2)
`

type CountDeployJobsParams struct {
	Status pgtype.Text
	AppID  pgtype.Text
}

func (q *Queries) CountDeployJobs(ctx context.Context, arg CountDeployJobsParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countDeployJobs, arg.Status, arg.AppID).Scan(&count)
	return count, err
}

const updateDeployJobStatus = `
UPDATE deploy_jobs
SET status = $2, updated_at = NOW()
WHERE id = $1
RETURNING id, app_id, revision, revert, status, outcome, attempts, error_message, created_at, updated_at, finished_at
`

type UpdateDeployJobStatusParams struct {
	ID     string
	Status string
}

func (q *Queries) UpdateDeployJobStatus(ctx context.Context, arg UpdateDeployJobStatusParams) (DeployJob, error) {
	row := q.db.QueryRow(ctx, updateDeployJobStatus, arg.ID, arg.Status)
	return scanDeployJob(row)
}

const finishDeployJob = `
UPDATE deploy_jobs
SET status = $2, outcome = $3, attempts = $4, error_message = $5, finished_at = $6, updated_at = NOW()
WHERE id = $1
RETURNING id, app_id, revision, revert, status, outcome, attempts, error_message, created_at, updated_at, finished_at
`

type FinishDeployJobParams struct {
	ID           string
	Status       string
	Outcome      pgtype.Text
	Attempts     int32
	ErrorMessage pgtype.Text
	FinishedAt   pgtype.Timestamptz
}

func (q *Queries) FinishDeployJob(ctx context.Context, arg FinishDeployJobParams) (DeployJob, error) {
	row := q.db.QueryRow(ctx, finishDeployJob,
		arg.ID,
		arg.Status,
		arg.Outcome,
		arg.Attempts,
		arg.ErrorMessage,
		arg.FinishedAt,
	)
	return scanDeployJob(row)
}

const createDeployLog = `
INSERT INTO deploy_logs (id, job_id, event_type, message, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

type CreateDeployLogParams struct {
	ID        string
	JobID     pgtype.Text
	EventType string
	Message   pgtype.Text
	Details   json.RawMessage
	CreatedAt time.Time
}

func (q *Queries) CreateDeployLog(ctx context.Context, arg CreateDeployLogParams) error {
	_, err := q.db.Exec(ctx, createDeployLog,
		arg.ID,
		arg.JobID,
		arg.EventType,
		arg.Message,
		arg.Details,
		arg.CreatedAt,
	)
	return err
}

const getDeployLogsByJobID = `
SELECT id, job_id, event_type, message, details, created_at
FROM deploy_logs
WHERE job_id = $1
ORDER BY created_at ASC
`

func (q *Queries) GetDeployLogsByJobID(ctx context.Context, jobID pgtype.Text) ([]DeployLog, error) {
	rows, err := q.db.Query(ctx, getDeployLogsByJobID, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []DeployLog
	for rows.Next() {
		var l DeployLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.EventType, &l.Message, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployJob(row rowScanner) (DeployJob, error) {
	var j DeployJob
	err := row.Scan(
		&j.ID,
		&j.AppID,
		&j.Revision,
		&j.Revert,
		&j.Status,
		&j.Outcome,
		&j.Attempts,
		&j.ErrorMessage,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.FinishedAt,
	)
	return j, err
}
