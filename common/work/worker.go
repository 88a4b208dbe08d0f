package work

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrInvalidChannelSize = errors.New("invalid channel size")
	ErrPoolStopped        = errors.New("worker pool has been stopped")
	ErrQueueFull          = errors.New("task queue is full")
	ErrTaskTimeout        = errors.New("task execution timeout")
)

// TaskResult represents the result of a task execution with type safety
type TaskResult[T any] struct {
	TaskID    string
	Result    T
	Error     error
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// IsSuccess returns true if the task completed successfully
func (tr *TaskResult[T]) IsSuccess() bool {
	return tr.Error == nil
}

// Executor interface for all tasks
type Executor[T any] interface {
	ExecutorID() string
	Execute(ctx context.Context) (T, error)
	OnError(error)
	Timeout() time.Duration // 0 means use pool default
}

// PoolConfig holds configuration for the worker pool
type PoolConfig struct {
	NumWorkers      int
	TaskChannelSize int
	ResultChanSize  int
	TaskTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultPoolConfig returns a sensible default configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers:      4,
		TaskChannelSize: 64,
		ResultChanSize:  64,
		TaskTimeout:     2 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Pool is a generic worker pool. The gateway runs async deploy jobs
// through it, one task per deployment.
type Pool[T any] struct {
	config   PoolConfig
	tasks    chan Executor[T]
	results  chan TaskResult[T]
	quit     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once

	activeWorkers  int64
	tasksQueued    int64
	tasksCompleted int64

	started bool
	stopped bool
	mu      sync.RWMutex
}

// NewWorkerPool creates a pool with the given worker count and queue size.
func NewWorkerPool[T any](numWorkers int, taskChannelSize int) (*Pool[T], error) {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	config.TaskChannelSize = taskChannelSize
	config.ResultChanSize = numWorkers * 2
	return NewWorkerPoolWithConfig[T](config)
}

// NewWorkerPoolWithConfig creates a pool with custom configuration.
func NewWorkerPoolWithConfig[T any](config PoolConfig) (*Pool[T], error) {
	if config.NumWorkers <= 0 {
		return nil, ErrInvalidWorkerCount
	}

	if config.TaskChannelSize < 0 {
		return nil, ErrInvalidChannelSize
	}

	if config.ResultChanSize < 0 {
		config.ResultChanSize = config.NumWorkers * 2
	}

	if config.TaskTimeout <= 0 {
		config.TaskTimeout = DefaultPoolConfig().TaskTimeout
	}

	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultPoolConfig().ShutdownTimeout
	}

	return &Pool[T]{
		config:  config,
		tasks:   make(chan Executor[T], config.TaskChannelSize),
		results: make(chan TaskResult[T], config.ResultChanSize),
		quit:    make(chan struct{}),
	}, nil
}

// Start starts the worker pool
func (p *Pool[T]) Start(ctx context.Context, workerPoolID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	if p.stopped {
		log.Error().Msg("Cannot start a stopped pool")
		return
	}

	p.once.Do(func() {
		p.started = true
		p.startWorkers(ctx, workerPoolID)
		log.Info().
			Str("workerPoolID", workerPoolID).
			Int("numWorkers", p.config.NumWorkers).
			Msg("Worker pool started")
	})
}

// Stop gracefully stops the worker pool
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		close(p.quit)
		close(p.tasks)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Info().Msg("All workers stopped gracefully")
		case <-time.After(p.config.ShutdownTimeout):
			log.Warn().Dur("timeout", p.config.ShutdownTimeout).Msg("Shutdown timeout exceeded")
		}

		close(p.results)
	})
}

// AddTask adds a task to the pool, blocking while the queue is full.
func (p *Pool[T]) AddTask(ctx context.Context, task Executor[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- task:
		atomic.AddInt64(&p.tasksQueued, 1)
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddTaskNonBlocking adds a task or fails immediately when the queue is full.
func (p *Pool[T]) AddTaskNonBlocking(task Executor[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- task:
		atomic.AddInt64(&p.tasksQueued, 1)
		return nil
	case <-p.quit:
		return ErrPoolStopped
	default:
		return ErrQueueFull
	}
}

// Results returns the results channel
func (p *Pool[T]) Results() <-chan TaskResult[T] {
	return p.results
}

// Stats returns pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		ActiveWorkers:  atomic.LoadInt64(&p.activeWorkers),
		TasksQueued:    atomic.LoadInt64(&p.tasksQueued),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksInQueue:   int64(len(p.tasks)),
	}
}

// PoolStats holds statistics about the pool
type PoolStats struct {
	ActiveWorkers  int64 `json:"active_workers"`
	TasksQueued    int64 `json:"tasks_queued"`
	TasksCompleted int64 `json:"tasks_completed"`
	TasksInQueue   int64 `json:"tasks_in_queue"`
}

// startWorkers starts the worker goroutines
func (p *Pool[T]) startWorkers(ctx context.Context, poolID string) {
	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			atomic.AddInt64(&p.activeWorkers, 1)
			defer atomic.AddInt64(&p.activeWorkers, -1)

			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task, ok := <-p.tasks:
					if !ok {
						return
					}

					p.executeTask(ctx, task, workerID, poolID)
				}
			}
		}(i)
	}
}

// executeTask executes a single task with error handling and timeout
func (p *Pool[T]) executeTask(ctx context.Context, task Executor[T], workerID int, poolID string) {
	taskID := task.ExecutorID()
	startTime := time.Now()

	timeout := p.config.TaskTimeout
	if taskTimeout := task.Timeout(); taskTimeout > 0 {
		timeout = taskTimeout
	}

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := task.Execute(taskCtx)
	endTime := time.Now()
	duration := endTime.Sub(startTime)

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || taskCtx.Err() == context.DeadlineExceeded) {
		err = ErrTaskTimeout
	}

	taskResult := TaskResult[T]{
		TaskID:    taskID,
		Result:    result,
		Error:     err,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  duration,
	}

	if err != nil {
		task.OnError(err)
	}

	select {
	case p.results <- taskResult:
	case <-time.After(1 * time.Second):
		log.Warn().
			Str("taskID", taskID).
			Msg("Result channel full after timeout, dropping result")
	case <-p.quit:
	}

	atomic.AddInt64(&p.tasksCompleted, 1)

	log.Debug().
		Str("workerPoolID", poolID).
		Int("workerID", workerID).
		Str("taskID", taskID).
		Dur("duration", duration).
		Bool("success", err == nil).
		Msg("Task completed")
}
