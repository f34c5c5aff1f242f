package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func stop[T any](t *testing.T, p *Pool[T]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Stop(ctx)
}

func TestPoolProcessesTasks(t *testing.T) {
	var sum atomic.Int64
	p := NewPool(Config{MaxWorkers: 3, QueueSize: 10, TaskTimeout: time.Second}, func(_ context.Context, n int) error {
		sum.Add(int64(n))
		return nil
	})
	p.Start()

	for i := 1; i <= 10; i++ {
		if err := p.SubmitWait(context.Background(), i); err != nil {
			t.Fatalf("SubmitWait: %v", err)
		}
	}
	stop(t, p)

	if sum.Load() != 55 {
		t.Errorf("sum = %d, want 55", sum.Load())
	}
	s := p.Stats()
	if s.Completed != 10 || s.Failed != 0 || s.Pending != 0 || s.Active != 0 {
		t.Errorf("stats = %+v", s)
	}
	if m := s.Map(); m["completed_tasks"] != 10 {
		t.Errorf("map = %v", m)
	}
}

func TestPoolReportsFailuresAndPanics(t *testing.T) {
	p := NewPool(Config{MaxWorkers: 1, QueueSize: 5}, func(_ context.Context, task string) error {
		switch task {
		case "fail":
			return errors.New("boom")
		case "panic":
			panic("boom")
		}
		return nil
	})
	var mu sync.Mutex
	var failed []string
	p.OnError(func(task string, err error) {
		mu.Lock()
		failed = append(failed, task)
		mu.Unlock()
	})
	p.Start()
	for _, task := range []string{"ok", "fail", "panic"} {
		if err := p.Submit(task); err != nil {
			t.Fatalf("Submit(%s): %v", task, err)
		}
	}
	stop(t, p)

	s := p.Stats()
	if s.Completed != 1 || s.Failed != 2 {
		t.Errorf("stats = %+v", s)
	}
	if len(failed) != 2 || failed[0] != "fail" || failed[1] != "panic" {
		t.Errorf("failed = %v", failed)
	}
}

func TestPoolTaskTimeout(t *testing.T) {
	done := make(chan error, 1)
	p := NewPool(Config{MaxWorkers: 1, QueueSize: 1, TaskTimeout: 20 * time.Millisecond}, func(ctx context.Context, _ struct{}) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	})
	p.Start()
	defer p.Stop(context.Background())

	_ = p.Submit(struct{}{})
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	case <-time.After(time.Second):
		t.Fatal("task was not timed out")
	}
}

func TestSubmitQueueFullAndStopped(t *testing.T) {
	p := NewPool(Config{}, func(context.Context, int) error { return nil })
	// not started, so the single slot stays occupied
	if err := p.Submit(1); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := p.Submit(2); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second submit = %v, want ErrQueueFull", err)
	}

	p.Start()
	stop(t, p)
	if err := p.Submit(3); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("submit after stop = %v, want ErrPoolStopped", err)
	}
	if err := p.SubmitWait(context.Background(), 4); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("SubmitWait after stop = %v, want ErrPoolStopped", err)
	}
}
