package services

import (
	"context"
	"errors"
	"time"

	"github.com/lexicara/kintone-http-service/common"
	"github.com/lexicara/kintone-http-service/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// DeployJobService defines the interface for deploy job database operations
type DeployJobService interface {
	// Create creates a new deploy job in pending state
	Create(ctx context.Context, params repository.CreateDeployJobParams) (repository.DeployJob, error)

	// GetByID gets a deploy job by ID
	GetByID(ctx context.Context, id string) (repository.DeployJob, error)

	// List returns a page of deploy jobs filtered by status and app
	List(ctx context.Context, status, appID string, limit, offset int) ([]repository.DeployJob, error)

	// Count counts deploy jobs matching the same filters as List
	Count(ctx context.Context, status, appID string) (int64, error)

	// MarkRunning transitions a job to the running state
	MarkRunning(ctx context.Context, id string) error

	// Finish records a job's final state and outcome
	Finish(ctx context.Context, id string, status common.JobStatus, outcome string, attempts int, errorMessage string) error

	// Logs returns the lifecycle events recorded for a job
	Logs(ctx context.Context, jobID string) ([]repository.DeployLog, error)
}

// DeployJobRepository implements DeployJobService over the query layer.
type DeployJobRepository struct {
	queries *repository.Queries
}

func NewDeployJobRepository(queries *repository.Queries) *DeployJobRepository {
	return &DeployJobRepository{queries: queries}
}

func (r *DeployJobRepository) Create(ctx context.Context, params repository.CreateDeployJobParams) (repository.DeployJob, error) {
	return r.queries.CreateDeployJob(ctx, params)
}

func (r *DeployJobRepository) GetByID(ctx context.Context, id string) (repository.DeployJob, error) {
	job, err := r.queries.GetDeployJobByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.DeployJob{}, common.ErrJobNotFound
	}
	return job, err
}

func (r *DeployJobRepository) List(ctx context.Context, status, appID string, limit, offset int) ([]repository.DeployJob, error) {
	params := repository.ListDeployJobsParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}
	if status != "" {
		params.Status = pgtype.Text{String: status, Valid: true}
	}
	if appID != "" {
		params.AppID = pgtype.Text{String: appID, Valid: true}
	}
	return r.queries.ListDeployJobs(ctx, params)
}

func (r *DeployJobRepository) Count(ctx context.Context, status, appID string) (int64, error) {
	params := repository.CountDeployJobsParams{}
	if status != "" {
		params.Status = pgtype.Text{String: status, Valid: true}
	}
	if appID != "" {
		params.AppID = pgtype.Text{String: appID, Valid: true}
	}
	return r.queries.CountDeployJobs(ctx, params)
}

func (r *DeployJobRepository) MarkRunning(ctx context.Context, id string) error {
	_, err := r.queries.UpdateDeployJobStatus(ctx, repository.UpdateDeployJobStatusParams{
		ID:     id,
		Status: string(common.JobStatusRunning),
	})
	return err
}

func (r *DeployJobRepository) Finish(ctx context.Context, id string, status common.JobStatus, outcome string, attempts int, errorMessage string) error {
	params := repository.FinishDeployJobParams{
		ID:         id,
		Status:     string(status),
		Attempts:   int32(attempts),
		FinishedAt: pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	if outcome != "" {
		params.Outcome = pgtype.Text{String: outcome, Valid: true}
	}
	if errorMessage != "" {
		params.ErrorMessage = pgtype.Text{String: errorMessage, Valid: true}
	}
	_, err := r.queries.FinishDeployJob(ctx, params)
	return err
}

func (r *DeployJobRepository) Logs(ctx context.Context, jobID string) ([]repository.DeployLog, error) {
	return r.queries.GetDeployLogsByJobID(ctx, pgtype.Text{String: jobID, Valid: true})
}
