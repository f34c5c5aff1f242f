package repository

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepository(t *testing.T) {
	testRepository(t, NewMemory(time.Hour*24))
}

func TestMemoryRetention(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	repo := newMemory(time.Hour, func() time.Time { return clock })
	ctx := context.Background()

	b, jobs := fixture("r", now, 1)
	if err := repo.CreateBatch(ctx, b, jobs); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetBatch(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	clock = now.Add(2 * time.Hour)
	if _, err := repo.GetBatch(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired batch, got %v", err)
	}
	if _, err := repo.GetJob(ctx, jobs[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired job, got %v", err)
	}
	if err := repo.Untrack(ctx, jobs[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := repo.jobs[jobs[0].ID]; ok {
		t.Error("expired job should be dropped")
	}
}

func TestMemoryEventTTL(t *testing.T) {
	clock := time.Now()
	repo := newMemory(0, func() time.Time { return clock })
	ctx := context.Background()
	if ok, _ := repo.MarkEvent(ctx, "e1", time.Minute); !ok {
		t.Fatal("first mark")
	}
	clock = clock.Add(2 * time.Minute)
	if ok, _ := repo.MarkEvent(ctx, "e1", time.Minute); !ok {
		t.Error("marker should expire after ttl")
	}
}
