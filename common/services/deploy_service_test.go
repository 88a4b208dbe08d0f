package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lexicara/kintone-http-service/common"
	"github.com/lexicara/kintone-http-service/common/deploy"
	"github.com/lexicara/kintone-http-service/common/kintone"
	"github.com/lexicara/kintone-http-service/repository"
)

// fakeDeployClient scripts the deploy call and a status sequence.
type fakeDeployClient struct {
	mu          sync.Mutex
	deployErr   error
	deployCalls int
	statuses    []deploy.Status
	statusCalls int
}

func (f *fakeDeployClient) DeployApp(ctx context.Context, targets []kintone.DeployTarget, revert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployCalls++
	return f.deployErr
}

func (f *fakeDeployClient) DeployStatus(ctx context.Context, appID string) (deploy.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	idx := f.statusCalls - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return f.statuses[idx], nil
}

// fakeJobStore records job transitions in memory.
type fakeJobStore struct {
	mu       sync.Mutex
	created  []repository.CreateDeployJobParams
	finished map[string]common.JobStatus
	outcomes map[string]string
	attempts map[string]int
	done     chan string
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		finished: make(map[string]common.JobStatus),
		outcomes: make(map[string]string),
		attempts: make(map[string]int),
		done:     make(chan string, 8),
	}
}

func (f *fakeJobStore) Create(ctx context.Context, params repository.CreateDeployJobParams) (repository.DeployJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, params)
	return repository.DeployJob{
		ID:        params.ID,
		AppID:     params.AppID,
		Status:    params.Status,
		CreatedAt: params.CreatedAt,
	}, nil
}

func (f *fakeJobStore) GetByID(ctx context.Context, id string) (repository.DeployJob, error) {
	return repository.DeployJob{}, common.ErrJobNotFound
}

func (f *fakeJobStore) List(ctx context.Context, status, appID string, limit, offset int) ([]repository.DeployJob, error) {
	return nil, nil
}

func (f *fakeJobStore) Count(ctx context.Context, status, appID string) (int64, error) {
	return 0, nil
}

func (f *fakeJobStore) MarkRunning(ctx context.Context, id string) error {
	return nil
}

func (f *fakeJobStore) Finish(ctx context.Context, id string, status common.JobStatus, outcome string, attempts int, errorMessage string) error {
	f.mu.Lock()
	f.finished[id] = status
	f.outcomes[id] = outcome
	f.attempts[id] = attempts
	f.mu.Unlock()
	f.done <- id
	return nil
}

func (f *fakeJobStore) Logs(ctx context.Context, jobID string) ([]repository.DeployLog, error) {
	return nil, nil
}

func newTestService(t *testing.T, client *fakeDeployClient) *DeployService {
	t.Helper()
	svc, err := NewDeployService(client, deploy.WaitConfig{MaxAttempts: 5, Interval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestRunSuccessfulDeploy(t *testing.T) {
	client := &fakeDeployClient{statuses: []deploy.Status{deploy.StatusProcessing, deploy.StatusSuccess}}
	svc := newTestService(t, client)

	job, err := svc.Run(context.Background(), DeployRequest{AppID: "7"})
	if err != nil {
		t.Fatal(err)
	}

	if job.Status != string(common.JobStatusSucceeded) {
		t.Errorf("Status = %q, want succeeded", job.Status)
	}
	if job.Outcome.String != string(deploy.StatusSuccess) {
		t.Errorf("Outcome = %q, want SUCCESS", job.Outcome.String)
	}
	if job.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", job.Attempts)
	}
	if client.deployCalls != 1 {
		t.Errorf("DeployApp called %d times, want 1", client.deployCalls)
	}
}

func TestRunOutcomeMapping(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []deploy.Status
		wantStatus common.JobStatus
		wantOut    deploy.Status
	}{
		{"fail", []deploy.Status{deploy.StatusFail}, common.JobStatusFailed, deploy.StatusFail},
		{"cancel", []deploy.Status{deploy.StatusCancel}, common.JobStatusCanceled, deploy.StatusCancel},
		{"timeout", []deploy.Status{deploy.StatusProcessing}, common.JobStatusTimedOut, deploy.StatusTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeDeployClient{statuses: tt.statuses}
			svc := newTestService(t, client)

			job, err := svc.Run(context.Background(), DeployRequest{AppID: "7"})
			if err != nil {
				t.Fatal(err)
			}
			if job.Status != string(tt.wantStatus) {
				t.Errorf("Status = %q, want %q", job.Status, tt.wantStatus)
			}
			if job.Outcome.String != string(tt.wantOut) {
				t.Errorf("Outcome = %q, want %q", job.Outcome.String, tt.wantOut)
			}
		})
	}
}

func TestRunDeployStartFailure(t *testing.T) {
	client := &fakeDeployClient{
		deployErr: errors.New("kintone: CB_NO02: insufficient permissions"),
		statuses:  []deploy.Status{deploy.StatusProcessing},
	}
	svc := newTestService(t, client)

	job, err := svc.Run(context.Background(), DeployRequest{AppID: "7"})
	if err == nil {
		t.Fatal("Expected error when DeployApp fails")
	}
	if job.Status != string(common.JobStatusFailed) {
		t.Errorf("Status = %q, want failed", job.Status)
	}
	if client.statusCalls != 0 {
		t.Errorf("No status query should run after a failed start, got %d", client.statusCalls)
	}
}

func TestRunRequiresAppID(t *testing.T) {
	svc := newTestService(t, &fakeDeployClient{statuses: []deploy.Status{deploy.StatusSuccess}})

	if _, err := svc.Run(context.Background(), DeployRequest{}); err == nil {
		t.Error("Expected error for missing app id")
	}
	if _, err := svc.RunAsync(context.Background(), DeployRequest{}); err == nil {
		t.Error("Expected error for missing app id")
	}
}

func TestRunAsyncPersistsOutcome(t *testing.T) {
	client := &fakeDeployClient{statuses: []deploy.Status{deploy.StatusProcessing, deploy.StatusSuccess}}
	svc := newTestService(t, client)

	store := newFakeJobStore()
	svc.SetJobs(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	job, err := svc.RunAsync(ctx, DeployRequest{AppID: "9"})
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != string(common.JobStatusPending) {
		t.Errorf("Initial status = %q, want pending", job.Status)
	}

	select {
	case id := <-store.done:
		if id != job.ID {
			t.Errorf("Finished job ID = %q, want %q", id, job.ID)
		}
		store.mu.Lock()
		defer store.mu.Unlock()
		if store.finished[job.ID] != common.JobStatusSucceeded {
			t.Errorf("Final status = %q, want succeeded", store.finished[job.ID])
		}
		if store.attempts[job.ID] != 2 {
			t.Errorf("Attempts = %d, want 2", store.attempts[job.ID])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timeout waiting for async deploy to finish")
	}
}
