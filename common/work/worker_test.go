package work

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool(t *testing.T) {
	tests := []struct {
		name            string
		numWorkers      int
		taskChannelSize int
		expectError     bool
	}{
		{"valid pool", 5, 10, false},
		{"zero workers", 0, 10, true},
		{"negative workers", -1, 10, true},
		{"negative channel size", 5, -1, true},
		{"zero channel size", 5, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewWorkerPool[string](tt.numWorkers, tt.taskChannelSize)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if pool == nil {
				t.Error("Expected pool but got nil")
			}
		})
	}
}

func TestWorkerPoolBasicOperation(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[string](2, 5)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "test-pool")
	defer pool.Stop()

	var executedCount int64
	task, err := NewTask[string](
		func(ctx context.Context) (string, error) {
			atomic.AddInt64(&executedCount, 1)
			return "test result", nil
		},
		WithErrorHandler[string](func(err error) {
			t.Errorf("Unexpected error: %v", err)
		}),
		WithTimeout[string](5*time.Second),
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.AddTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	select {
	case result := <-pool.Results():
		if !result.IsSuccess() {
			t.Errorf("Task failed: %v", result.Error)
		}
		if result.Result != "test result" {
			t.Errorf("Expected 'test result', got '%s'", result.Result)
		}
		if atomic.LoadInt64(&executedCount) != 1 {
			t.Errorf("Expected 1 execution, got %d", executedCount)
		}
	case <-time.After(3 * time.Second):
		t.Error("Timeout waiting for result")
	}
}

func TestWorkerPoolTaskError(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[struct{}](1, 1)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "error-pool")
	defer pool.Stop()

	taskErr := errors.New("deploy exploded")
	var handlerCalled int64
	task, err := NewTask[struct{}](
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, taskErr
		},
		WithErrorHandler[struct{}](func(err error) {
			atomic.AddInt64(&handlerCalled, 1)
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.AddTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	select {
	case result := <-pool.Results():
		if result.IsSuccess() {
			t.Error("Expected failed result")
		}
		if !errors.Is(result.Error, taskErr) {
			t.Errorf("Error = %v, want %v", result.Error, taskErr)
		}
		if atomic.LoadInt64(&handlerCalled) != 1 {
			t.Errorf("Error handler called %d times, want 1", handlerCalled)
		}
	case <-time.After(3 * time.Second):
		t.Error("Timeout waiting for result")
	}
}

func TestWorkerPoolTaskTimeout(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[struct{}](1, 1)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "timeout-pool")
	defer pool.Stop()

	task, err := NewTask[struct{}](
		func(ctx context.Context) (struct{}, error) {
			select {
			case <-ctx.Done():
				return struct{}{}, ctx.Err()
			case <-time.After(5 * time.Second):
				return struct{}{}, nil
			}
		},
		WithTimeout[struct{}](50*time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.AddTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	select {
	case result := <-pool.Results():
		if !errors.Is(result.Error, ErrTaskTimeout) {
			t.Errorf("Error = %v, want %v", result.Error, ErrTaskTimeout)
		}
	case <-time.After(3 * time.Second):
		t.Error("Timeout waiting for result")
	}
}

func TestWorkerPoolAddAfterStop(t *testing.T) {
	pool, err := NewWorkerPool[struct{}](1, 1)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(context.Background(), "stopped-pool")
	pool.Stop()

	task, err := NewTask[struct{}](func(ctx context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.AddTask(context.Background(), task); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("AddTask after Stop = %v, want %v", err, ErrPoolStopped)
	}
	if err := pool.AddTaskNonBlocking(task); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("AddTaskNonBlocking after Stop = %v, want %v", err, ErrPoolStopped)
	}
}
