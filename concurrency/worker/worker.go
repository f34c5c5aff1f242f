// Package worker runs typed tasks on a fixed number of goroutines fed by a
// bounded queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrQueueFull   = errors.New("task queue is full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Config sizes a pool. Non-positive sizes fall back to one; a zero
// TaskTimeout disables the per-task deadline.
type Config struct {
	MaxWorkers  int
	QueueSize   int
	TaskTimeout time.Duration
}

// Handler processes one task. ctx carries the task timeout and is canceled
// when the pool stops.
type Handler[T any] func(ctx context.Context, task T) error

// Stats is a snapshot of pool counters.
type Stats struct {
	Active    int64
	Pending   int64
	Completed int64
	Failed    int64
	Busy      time.Duration
}

// Map returns the counters keyed the way metrics gauges name them.
func (s Stats) Map() map[string]int64 {
	return map[string]int64{
		"active_workers":  s.Active,
		"pending_tasks":   s.Pending,
		"completed_tasks": s.Completed,
		"failed_tasks":    s.Failed,
		"processing_time": s.Busy.Nanoseconds(),
	}
}

// Pool runs tasks of type T
//
//	pool := worker.NewPool(worker.Config{MaxWorkers: 4, QueueSize: 64}, handle)
//	pool.Start()
//	defer pool.Stop(ctx)
//	err := pool.SubmitWait(ctx, task)
type Pool[T any] struct {
	workers int
	timeout time.Duration
	handle  Handler[T]
	onError func(T, error)

	tasks   chan T
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool

	active, pending, completed, failed, busy atomic.Int64
}

// NewPool returns a stopped pool; call Start to launch the workers.
func NewPool[T any](cfg Config, handle Handler[T]) *Pool[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool[T]{
		workers: max(cfg.MaxWorkers, 1),
		timeout: max(cfg.TaskTimeout, 0),
		handle:  handle,
		tasks:   make(chan T, max(cfg.QueueSize, 1)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnError registers a callback for failed or panicking tasks. Call it
// before Start.
func (p *Pool[T]) OnError(fn func(task T, err error)) {
	p.onError = fn
}

// Start launches the workers.
func (p *Pool[T]) Start() {
	for range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				p.run(task)
			}
		}()
	}
}

// Stop stops accepting tasks, lets workers drain the queue and waits for
// them until ctx expires, after which running tasks are canceled.
func (p *Pool[T]) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	p.cancel()
}

// Submit queues task without blocking.
func (p *Pool[T]) Submit(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.tasks <- task:
		p.pending.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait queues task, blocking while the queue is full.
func (p *Pool[T]) SubmitWait(ctx context.Context, task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.tasks <- task:
		p.pending.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

func (p *Pool[T]) run(task T) {
	start := time.Now()
	p.pending.Add(-1)
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.busy.Add(int64(time.Since(start)))
	}()

	ctx, cancel := p.ctx, context.CancelFunc(func() {})
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(p.ctx, p.timeout)
	}
	defer cancel()

	if err := p.call(ctx, task); err != nil {
		p.failed.Add(1)
		if p.onError != nil {
			p.onError(task, err)
		}
		return
	}
	p.completed.Add(1)
}

func (p *Pool[T]) call(ctx context.Context, task T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return p.handle(ctx, task)
}

// Stats returns the current counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Active:    p.active.Load(),
		Pending:   p.pending.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Busy:      time.Duration(p.busy.Load()),
	}
}
