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
		{"unbuffered queue", 5, 0, false},
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
	pool.Start(ctx)
	defer pool.Stop()

	var executed int64
	task, err := NewTask(
		func(ctx context.Context) (string, error) {
			atomic.AddInt64(&executed, 1)
			return "done", nil
		},
		WithID[string]("company_jobs:1"),
		WithErrorHandler[string](func(err error) {
			t.Errorf("Unexpected error: %v", err)
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
		if !result.IsSuccess() {
			t.Errorf("Task failed: %v", result.Error)
		}
		if result.TaskID != "company_jobs:1" {
			t.Errorf("Expected task id company_jobs:1, got %q", result.TaskID)
		}
		if result.Result != "done" {
			t.Errorf("Expected 'done', got %q", result.Result)
		}
		if atomic.LoadInt64(&executed) != 1 {
			t.Errorf("Expected 1 execution, got %d", executed)
		}
	case <-time.After(3 * time.Second):
		t.Error("Timeout waiting for result")
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[struct{}](2, 10)
	if err != nil {
		t.Fatal(err)
	}
	pool.Start(ctx)
	defer pool.Stop()

	const numTasks = 6
	var running, peak int64
	for i := 0; i < numTasks; i++ {
		task, err := SimpleTask(func(ctx context.Context) error {
			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt64(&running, -1)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := pool.AddTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < numTasks; i++ {
		select {
		case result := <-pool.Results():
			if !result.IsSuccess() {
				t.Errorf("Task failed: %v", result.Error)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Timeout waiting for results")
		}
	}
	if p := atomic.LoadInt64(&peak); p > 2 {
		t.Errorf("Expected at most 2 concurrent tasks, got %d", p)
	}
}

func TestWorkerPoolTimeout(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[string](1, 1)
	if err != nil {
		t.Fatal(err)
	}
	pool.Start(ctx)
	defer pool.Stop()

	var handled error
	done := make(chan struct{})
	task, err := NewTask(
		func(ctx context.Context) (string, error) {
			select {
			case <-time.After(2 * time.Second):
				return "should not complete", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
		WithErrorHandler[string](func(err error) {
			handled = err
			close(done)
		}),
		WithTimeout[string](100*time.Millisecond),
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
			t.Errorf("Expected timeout error, got: %v", result.Error)
		}
		if !errors.Is(result.Error, context.DeadlineExceeded) {
			t.Errorf("Expected the deadline error to be kept, got: %v", result.Error)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timeout waiting for result")
	}
	<-done
	if !errors.Is(handled, ErrTaskTimeout) {
		t.Errorf("Expected error handler to see the timeout, got: %v", handled)
	}
}

func TestWorkerPoolGracefulShutdown(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[struct{}](1, 5)
	if err != nil {
		t.Fatal(err)
	}
	pool.Start(ctx)

	var completed int64
	for i := 0; i < 3; i++ {
		task, err := SimpleTask(func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&completed, 1)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := pool.AddTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	go func() {
		for range pool.Results() {
		}
	}()
	pool.Stop()

	if n := atomic.LoadInt64(&completed); n != 3 {
		t.Errorf("Expected queued tasks to finish before stop returns, got %d", n)
	}

	task, err := SimpleTask(func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if err := pool.AddTask(ctx, task); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped, got: %v", err)
	}
}

func TestStopReleasesBlockedAddTask(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[struct{}](1, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Not started: nobody receives, so AddTask blocks.
	errs := make(chan error, 1)
	go func() {
		task, _ := SimpleTask(func(ctx context.Context) error { return nil })
		errs <- pool.AddTask(ctx, task)
	}()
	time.Sleep(20 * time.Millisecond)
	pool.Stop()

	select {
	case err := <-errs:
		if !errors.Is(err, ErrPoolStopped) {
			t.Errorf("Expected ErrPoolStopped, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AddTask still blocked after Stop")
	}
}

func TestAddTaskNonBlocking(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[struct{}](1, 1)
	if err != nil {
		t.Fatal(err)
	}
	pool.Start(ctx)
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	blocker, err := SimpleTask(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := pool.AddTask(ctx, blocker); err != nil {
		t.Fatal(err)
	}
	<-started

	queued, _ := SimpleTask(func(ctx context.Context) error { return nil })
	if err := pool.AddTaskNonBlocking(queued); err != nil {
		t.Fatal(err)
	}
	overflow, _ := SimpleTask(func(ctx context.Context) error { return nil })
	if err := pool.AddTaskNonBlocking(overflow); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got: %v", err)
	}
	close(release)
}
