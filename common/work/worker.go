package work

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrInvalidChannelSize = errors.New("invalid channel size")
	ErrPoolStopped        = errors.New("worker pool has been stopped")
	ErrTaskTimeout        = errors.New("task execution timeout")
	ErrQueueFull          = errors.New("task queue is full")
)

// TaskResult is the outcome of one task.
type TaskResult[T any] struct {
	TaskID    string
	Result    T
	Error     error
	StartTime time.Time
	Duration  time.Duration
}

func (tr *TaskResult[T]) IsSuccess() bool {
	return tr.Error == nil
}

// Executor is a unit of work run by the pool.
type Executor[T any] interface {
	ExecutorID() string
	Execute(ctx context.Context) (T, error)
	OnError(error)
	// Timeout overrides the pool's task timeout when positive.
	Timeout() time.Duration
}

type PoolConfig struct {
	Name            string
	NumWorkers      int
	TaskChannelSize int
	ResultChanSize  int
	// TaskTimeout bounds a task unless it sets its own; zero means unbounded.
	TaskTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          zerolog.Logger
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Name:            "sessions",
		NumWorkers:      2,
		TaskChannelSize: 0,
		ResultChanSize:  4,
		ShutdownTimeout: 30 * time.Second,
		Logger:          log.Logger,
	}
}

// Pool runs tasks on a fixed number of goroutines. A full queue blocks
// AddTask, which is how message consumers get backpressure.
type Pool[T any] struct {
	config   PoolConfig
	logger   zerolog.Logger
	tasks    chan Executor[T]
	results  chan TaskResult[T]
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	activeWorkers  int64
	tasksQueued    int64
	tasksCompleted int64

	started bool
	stopped bool
	mu      sync.RWMutex
}

func NewWorkerPool[T any](numWorkers int, taskChannelSize int) (*Pool[T], error) {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	config.TaskChannelSize = taskChannelSize
	config.ResultChanSize = numWorkers * 2
	return NewWorkerPoolWithConfig[T](config)
}

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
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	return &Pool[T]{
		config:  config,
		logger:  config.Logger.With().Str("workerPoolID", config.Name).Logger(),
		tasks:   make(chan Executor[T], config.TaskChannelSize),
		results: make(chan TaskResult[T], config.ResultChanSize),
		quit:    make(chan struct{}),
	}, nil
}

// Start launches the workers. Tasks run with contexts derived from ctx.
func (p *Pool[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	if p.stopped {
		p.logger.Error().Msg("Cannot start a stopped pool")
		return
	}
	p.started = true
	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info().Int("numWorkers", p.config.NumWorkers).Msg("Worker pool started")
}

// Stop stops accepting tasks and waits for running ones, up to the
// shutdown timeout.
func (p *Pool[T]) Stop() {
	p.stopOnce.Do(func() {
		// quit first so a blocked AddTask releases its read lock.
		close(p.quit)
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.tasks)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Info().Msg("All workers stopped gracefully")
			close(p.results)
		case <-time.After(p.config.ShutdownTimeout):
			p.logger.Warn().Dur("timeout", p.config.ShutdownTimeout).Msg("Shutdown timeout exceeded")
		}
	})
}

// AddTask queues task, blocking while the queue is full.
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

// AddTaskNonBlocking queues task or returns ErrQueueFull.
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
	default:
		return ErrQueueFull
	}
}

// Results delivers task outcomes. Results nobody reads within a second are dropped.
func (p *Pool[T]) Results() <-chan TaskResult[T] {
	return p.results
}

type PoolStats struct {
	ActiveWorkers  int64
	TasksQueued    int64
	TasksCompleted int64
	TasksInQueue   int64
}

func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		ActiveWorkers:  atomic.LoadInt64(&p.activeWorkers),
		TasksQueued:    atomic.LoadInt64(&p.tasksQueued),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksInQueue:   int64(len(p.tasks)),
	}
}

func (p *Pool[T]) run(ctx context.Context, workerID int) {
	defer p.wg.Done()
	atomic.AddInt64(&p.activeWorkers, 1)
	defer atomic.AddInt64(&p.activeWorkers, -1)

	logger := p.logger.With().Int("workerID", workerID).Logger()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Worker stopped due to context cancellation")
			return
		case task, ok := <-p.tasks:
			if !ok {
				logger.Debug().Msg("Worker stopped - task channel closed")
				return
			}
			p.execute(ctx, task, logger)
		}
	}
}

func (p *Pool[T]) execute(ctx context.Context, task Executor[T], logger zerolog.Logger) {
	taskID := task.ExecutorID()
	start := time.Now()

	timeout := p.config.TaskTimeout
	if t := task.Timeout(); t > 0 {
		timeout = t
	}
	taskCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	logger.Debug().Str("taskID", taskID).Dur("timeout", timeout).Msg("Executing task")

	result, err := task.Execute(taskCtx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(taskCtx.Err(), context.DeadlineExceeded)) {
		err = errors.Join(ErrTaskTimeout, err)
	}
	if err != nil {
		task.OnError(err)
	}

	res := TaskResult[T]{
		TaskID:    taskID,
		Result:    result,
		Error:     err,
		StartTime: start,
		Duration:  time.Since(start),
	}
	select {
	case p.results <- res:
	case <-time.After(time.Second):
		logger.Debug().Str("taskID", taskID).Msg("Result channel full, dropping result")
	}

	atomic.AddInt64(&p.tasksCompleted, 1)
	logger.Debug().
		Str("taskID", taskID).
		Dur("duration", res.Duration).
		Bool("success", err == nil).
		Msg("Task completed")
}
