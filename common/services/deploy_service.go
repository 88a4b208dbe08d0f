package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lexicara/kintone-http-service/common"
	"github.com/lexicara/kintone-http-service/common/deploy"
	"github.com/lexicara/kintone-http-service/common/kintone"
	"github.com/lexicara/kintone-http-service/common/messaging"
	"github.com/lexicara/kintone-http-service/common/redis"
	"github.com/lexicara/kintone-http-service/common/work"
	"github.com/lexicara/kintone-http-service/repository"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"
)

const deployLockKeyPrefix = "deploy:lock:"

// DeployClient is the slice of the kintone client the deploy service
// needs: start a deployment and report its status.
type DeployClient interface {
	DeployApp(ctx context.Context, targets []kintone.DeployTarget, revert bool) error
	DeployStatus(ctx context.Context, appID string) (deploy.Status, error)
}

// EventPublisher publishes deploy lifecycle events.
type EventPublisher interface {
	PublishSync(ctx context.Context, subject string, data []byte) error
}

// DeployRequest describes one requested deployment.
type DeployRequest struct {
	AppID    string `json:"app_id"`
	Revision string `json:"revision,omitempty"`
	Revert   bool   `json:"revert,omitempty"`
}

// DeployService starts deployments, waits for them to settle, and tracks
// each run as a job. Persistence, locking, caching and messaging are all
// optional; the service degrades to a bare start-and-wait when a
// dependency is absent.
type DeployService struct {
	client  DeployClient
	jobs    DeployJobService
	redis   *redis.RedisClient
	cache   *redis.SchemaCache
	broker  EventPublisher
	waitCfg deploy.WaitConfig
	pool    *work.Pool[repository.DeployJob]
}

// NewDeployService creates a deploy service around a client and polling
// bounds. The async pool is sized so one task can always cover a full
// polling budget.
func NewDeployService(client DeployClient, waitCfg deploy.WaitConfig) (*DeployService, error) {
	if client == nil {
		return nil, errors.New("deploy service requires a client")
	}
	if waitCfg.MaxAttempts <= 0 {
		waitCfg = deploy.DefaultWaitConfig()
	}

	poolCfg := work.DefaultPoolConfig()
	poolCfg.TaskTimeout = waitBudget(waitCfg) + time.Minute

	pool, err := work.NewWorkerPoolWithConfig[repository.DeployJob](poolCfg)
	if err != nil {
		return nil, err
	}

	return &DeployService{
		client:  client,
		waitCfg: waitCfg,
		pool:    pool,
	}, nil
}

// SetJobs sets the job persistence dependency
func (s *DeployService) SetJobs(jobs DeployJobService) {
	s.jobs = jobs
}

// SetRedis sets the Redis dependency used for per-app deploy locks and
// schema-cache invalidation
func (s *DeployService) SetRedis(client *redis.RedisClient, cache *redis.SchemaCache) {
	s.redis = client
	s.cache = cache
}

// SetBroker sets the event publisher dependency
func (s *DeployService) SetBroker(broker EventPublisher) {
	s.broker = broker
}

// Start launches the async worker pool.
func (s *DeployService) Start(ctx context.Context) {
	s.pool.Start(ctx, "deploy-pool")
	go s.drainResults()
}

// Stop shuts the async worker pool down.
func (s *DeployService) Stop() {
	s.pool.Stop()
}

// PoolStats exposes worker pool counters for the health endpoint.
func (s *DeployService) PoolStats() work.PoolStats {
	return s.pool.Stats()
}

// DeployStatus reports the live deployment status of an app straight
// from the remote API, without touching job state.
func (s *DeployService) DeployStatus(ctx context.Context, appID string) (deploy.Status, error) {
	return s.client.DeployStatus(ctx, appID)
}

// Run starts a deployment and blocks until it settles or the polling
// budget runs out. The returned job carries the final status and
// outcome. A second deploy for the same app while one is running fails
// with common.ErrDeployInProgress.
func (s *DeployService) Run(ctx context.Context, req DeployRequest) (repository.DeployJob, error) {
	if req.AppID == "" {
		return repository.DeployJob{}, errors.New("app id is required")
	}

	release, err := s.acquireLock(ctx, req.AppID)
	if err != nil {
		return repository.DeployJob{}, err
	}
	defer release()

	job, err := s.createJob(ctx, req)
	if err != nil {
		return repository.DeployJob{}, err
	}

	return s.execute(ctx, job, req)
}

// RunAsync starts a deployment in the background and returns the pending
// job immediately. The job's progress is observable through the job API.
func (s *DeployService) RunAsync(ctx context.Context, req DeployRequest) (repository.DeployJob, error) {
	if req.AppID == "" {
		return repository.DeployJob{}, errors.New("app id is required")
	}

	release, err := s.acquireLock(ctx, req.AppID)
	if err != nil {
		return repository.DeployJob{}, err
	}

	job, err := s.createJob(ctx, req)
	if err != nil {
		release()
		return repository.DeployJob{}, err
	}

	task, err := work.NewTask[repository.DeployJob](
		func(taskCtx context.Context) (repository.DeployJob, error) {
			defer release()
			return s.execute(taskCtx, job, req)
		},
		work.WithID[repository.DeployJob](job.ID),
		work.WithErrorHandler[repository.DeployJob](func(err error) {
			log.Error().Err(err).Str("jobID", job.ID).Str("appID", req.AppID).Msg("Async deploy failed")
		}),
	)
	if err != nil {
		release()
		return repository.DeployJob{}, err
	}

	if err := s.pool.AddTaskNonBlocking(task); err != nil {
		release()
		s.finishJob(ctx, &job, common.JobStatusFailed, "", 0, err)
		return job, fmt.Errorf("queueing deploy job: %w", err)
	}

	return job, nil
}

// execute runs one tracked deployment end to end.
func (s *DeployService) execute(ctx context.Context, job repository.DeployJob, req DeployRequest) (repository.DeployJob, error) {
	s.publishStarted(ctx, job)
	s.logEvent(ctx, job.ID, "deploy.started", fmt.Sprintf("deployment of app %s started", req.AppID), req)
	s.markRunning(ctx, &job)

	targets := []kintone.DeployTarget{{App: req.AppID, Revision: req.Revision}}
	if err := s.client.DeployApp(ctx, targets, req.Revert); err != nil {
		s.finishJob(ctx, &job, common.JobStatusFailed, "", 0, err)
		return job, fmt.Errorf("starting deployment: %w", err)
	}

	querier := &countingQuerier{inner: s.client}
	outcome, err := deploy.Wait(ctx, querier, req.AppID, s.waitCfg)
	attempts := querier.count()
	if err != nil {
		s.finishJob(ctx, &job, common.JobStatusFailed, "", attempts, err)
		return job, fmt.Errorf("waiting for deployment: %w", err)
	}

	s.finishJob(ctx, &job, jobStatusForOutcome(outcome), string(outcome.Status), attempts, nil)

	if outcome.Success && s.cache != nil {
		if err := s.cache.Invalidate(ctx, req.AppID); err != nil {
			log.Warn().Err(err).Str("appID", req.AppID).Msg("Failed to invalidate schema cache after deploy")
		}
	}

	return job, nil
}

// acquireLock takes the per-app deploy lock. Without Redis the lock is a
// no-op and concurrent deploy rejection falls to kintone itself.
func (s *DeployService) acquireLock(ctx context.Context, appID string) (func(), error) {
	if s.redis == nil {
		return func() {}, nil
	}

	key := deployLockKeyPrefix + appID
	ttl := waitBudget(s.waitCfg) + time.Minute

	ok, err := s.redis.SetNX(ctx, key, time.Now().Format(time.RFC3339), ttl)
	if err != nil {
		return nil, fmt.Errorf("acquiring deploy lock for app %s: %w", appID, err)
	}
	if !ok {
		return nil, common.ErrDeployInProgress
	}

	return func() {
		// Release outlives the request context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.redis.Delete(releaseCtx, key); err != nil {
			log.Warn().Err(err).Str("appID", appID).Msg("Failed to release deploy lock")
		}
	}, nil
}

func (s *DeployService) createJob(ctx context.Context, req DeployRequest) (repository.DeployJob, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return repository.DeployJob{}, err
	}

	now := time.Now()
	params := repository.CreateDeployJobParams{
		ID:        id.String(),
		AppID:     req.AppID,
		Revert:    req.Revert,
		Status:    string(common.JobStatusPending),
		CreatedAt: now,
	}
	if req.Revision != "" {
		params.Revision = pgtype.Text{String: req.Revision, Valid: true}
	}

	if s.jobs == nil {
		// No persistence; track the job in memory only.
		return repository.DeployJob{
			ID:        params.ID,
			AppID:     params.AppID,
			Revision:  params.Revision,
			Revert:    params.Revert,
			Status:    params.Status,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}

	job, err := s.jobs.Create(ctx, params)
	if err != nil {
		return repository.DeployJob{}, fmt.Errorf("creating deploy job: %w", err)
	}
	return job, nil
}

func (s *DeployService) markRunning(ctx context.Context, job *repository.DeployJob) {
	job.Status = string(common.JobStatusRunning)
	if s.jobs == nil {
		return
	}
	if err := s.jobs.MarkRunning(ctx, job.ID); err != nil {
		log.Warn().Err(err).Str("jobID", job.ID).Msg("Failed to persist running state")
	}
}

func (s *DeployService) finishJob(ctx context.Context, job *repository.DeployJob, status common.JobStatus, outcome string, attempts int, cause error) {
	job.Status = string(status)
	job.Attempts = int32(attempts)
	job.FinishedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	if outcome != "" {
		job.Outcome = pgtype.Text{String: outcome, Valid: true}
	}

	errorMessage := ""
	if cause != nil {
		errorMessage = cause.Error()
		job.ErrorMessage = pgtype.Text{String: errorMessage, Valid: true}
	}

	if s.jobs != nil {
		if err := s.jobs.Finish(ctx, job.ID, status, outcome, attempts, errorMessage); err != nil {
			log.Warn().Err(err).Str("jobID", job.ID).Msg("Failed to persist final job state")
		}
	}

	s.logEvent(ctx, job.ID, "deploy.finished", fmt.Sprintf("deployment of app %s finished as %s", job.AppID, status), map[string]any{
		"status":   status,
		"outcome":  outcome,
		"attempts": attempts,
		"error":    errorMessage,
	})
	s.publishFinished(ctx, *job, errorMessage)
}

func (s *DeployService) publishStarted(ctx context.Context, job repository.DeployJob) {
	if s.broker == nil {
		return
	}
	event := messaging.DeployStartedEvent{
		JobID:     job.ID,
		AppID:     job.AppID,
		StartedAt: time.Now(),
	}
	s.publish(ctx, messaging.SubjectDeployStarted, event)
}

func (s *DeployService) publishFinished(ctx context.Context, job repository.DeployJob, errorMessage string) {
	if s.broker == nil {
		return
	}
	event := messaging.DeployFinishedEvent{
		JobID:      job.ID,
		AppID:      job.AppID,
		Status:     job.Status,
		Success:    common.JobStatus(job.Status) == common.JobStatusSucceeded,
		Error:      errorMessage,
		FinishedAt: time.Now(),
	}
	s.publish(ctx, messaging.SubjectDeployFinished, event)
}

// publish is best effort: a broker outage never fails a deployment.
func (s *DeployService) publish(ctx context.Context, subject string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to encode deploy event")
		return
	}

	publishCtx, cancel := context.WithTimeout(withoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.broker.PublishSync(publishCtx, subject, payload); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish deploy event")
	}
}

func (s *DeployService) logEvent(ctx context.Context, jobID, eventType, message string, details any) {
	if s.jobs == nil {
		return
	}

	repo, ok := s.jobs.(*DeployJobRepository)
	if !ok {
		return
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return
	}

	logParams := repository.CreateDeployLogParams{
		ID:        id.String(),
		JobID:     pgtype.Text{String: jobID, Valid: true},
		EventType: eventType,
		Message:   pgtype.Text{String: message, Valid: message != ""},
		Details:   detailsJSON,
		CreatedAt: time.Now(),
	}
	if err := repo.queries.CreateDeployLog(ctx, logParams); err != nil {
		log.Warn().Err(err).Str("jobID", jobID).Msg("Failed to record deploy log")
	}
}

// drainResults keeps the pool's result channel from filling up; outcomes
// are already persisted by execute.
func (s *DeployService) drainResults() {
	for result := range s.pool.Results() {
		if result.Error != nil {
			log.Debug().Str("taskID", result.TaskID).Err(result.Error).Msg("Deploy task finished with error")
		}
	}
}

func jobStatusForOutcome(outcome deploy.Outcome) common.JobStatus {
	switch outcome.Status {
	case deploy.StatusSuccess:
		return common.JobStatusSucceeded
	case deploy.StatusCancel:
		return common.JobStatusCanceled
	case deploy.StatusTimeout:
		return common.JobStatusTimedOut
	default:
		return common.JobStatusFailed
	}
}

func waitBudget(cfg deploy.WaitConfig) time.Duration {
	interval := cfg.Interval
	if interval <= 0 {
		interval = deploy.DefaultWaitConfig().Interval
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts) * interval
}

// countingQuerier counts status queries so the job record can report how
// many polls a wait consumed.
type countingQuerier struct {
	inner deploy.StatusQuerier
	calls int32
}

func (c *countingQuerier) DeployStatus(ctx context.Context, appID string) (deploy.Status, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.inner.DeployStatus(ctx, appID)
}

func (c *countingQuerier) count() int {
	return int(atomic.LoadInt32(&c.calls))
}

// withoutCancel detaches event publishing from a request context that may
// already be finished, while tolerating a nil context.
func withoutCancel(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
