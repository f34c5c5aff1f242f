package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/paging"
)

func fixture(prefix string, created time.Time, n int) (*structs.Batch, []*structs.Job) {
	b := &structs.Batch{ID: prefix + "-bat", UserID: prefix + "-user", Cost: int64(n), CreatedAt: created}
	jobs := make([]*structs.Job, n)
	for i := range jobs {
		jobs[i] = &structs.Job{
			ID:        fmt.Sprintf("%s-job-%d", prefix, i),
			BatchID:   b.ID,
			UserID:    b.UserID,
			SourceURL: "https://img.test/a.png",
			Operation: "upscale",
			Status:    structs.StatusQueued,
			Cost:      1,
			CreatedAt: created,
			UpdatedAt: created,
		}
		b.JobIDs = append(b.JobIDs, jobs[i].ID)
	}
	return b, jobs
}

// testRepository exercises the behaviour every Repository must share.
func testRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	run := uuid.NewString()[:8]
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("create and get", func(t *testing.T) {
		b, jobs := fixture(run+"a", now, 3)
		if err := repo.CreateBatch(ctx, b, jobs); err != nil {
			t.Fatal(err)
		}
		got, err := repo.GetBatch(ctx, b.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.UserID != b.UserID || len(got.JobIDs) != 3 {
			t.Errorf("unexpected batch: %+v", got)
		}
		j, err := repo.GetJob(ctx, jobs[1].ID)
		if err != nil {
			t.Fatal(err)
		}
		if j.Status != structs.StatusQueued || j.BatchID != b.ID {
			t.Errorf("unexpected job: %+v", j)
		}
		list, err := repo.GetJobs(ctx, []string{jobs[2].ID, "missing", jobs[0].ID})
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 2 || list[0].ID != jobs[2].ID || list[1].ID != jobs[0].ID {
			t.Errorf("unexpected jobs: %v", list)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := repo.GetBatch(ctx, run+"nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := repo.GetJob(ctx, run+"nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		_, _, err := repo.UpdateJob(ctx, run+"nope", func(j *structs.Job) (*structs.Job, bool, error) { return j, true, nil })
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update", func(t *testing.T) {
		b, jobs := fixture(run+"u", now, 1)
		if err := repo.CreateBatch(ctx, b, jobs); err != nil {
			t.Fatal(err)
		}
		id := jobs[0].ID
		next, changed, err := repo.UpdateJob(ctx, id, func(j *structs.Job) (*structs.Job, bool, error) {
			return structs.Transition(j, &structs.Event{Type: structs.EventStarted, Attempt: 1}, now.Add(time.Second))
		})
		if err != nil || !changed || next.Status != structs.StatusProcessing {
			t.Fatalf("changed=%v err=%v next=%+v", changed, err, next)
		}
		_, changed, err = repo.UpdateJob(ctx, id, func(j *structs.Job) (*structs.Job, bool, error) {
			return structs.Transition(j, &structs.Event{Type: structs.EventStarted, Attempt: 1}, now.Add(2*time.Second))
		})
		if err != nil || changed {
			t.Fatalf("duplicate should not change: changed=%v err=%v", changed, err)
		}
		boom := errors.New("boom")
		if _, _, err := repo.UpdateJob(ctx, id, func(j *structs.Job) (*structs.Job, bool, error) { return nil, false, boom }); !errors.Is(err, boom) {
			t.Errorf("expected callback error, got %v", err)
		}
		stored, _ := repo.GetJob(ctx, id)
		if stored.Status != structs.StatusProcessing || stored.Attempts != 1 {
			t.Errorf("unexpected stored job: %+v", stored)
		}
	})

	t.Run("concurrent updates", func(t *testing.T) {
		b, jobs := fixture(run+"c", now, 1)
		if err := repo.CreateBatch(ctx, b, jobs); err != nil {
			t.Fatal(err)
		}
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := repo.UpdateJob(ctx, jobs[0].ID, func(j *structs.Job) (*structs.Job, bool, error) {
					n := j.Clone()
					n.Attempts++
					return n, true, nil
				})
				if err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()
		got, _ := repo.GetJob(ctx, jobs[0].ID)
		if got.Attempts != 5 {
			t.Errorf("attempts = %d, want 5", got.Attempts)
		}
	})

	t.Run("list batches", func(t *testing.T) {
		user := run + "l-user"
		var ids []string
		for i := 0; i < 3; i++ {
			b, jobs := fixture(fmt.Sprintf("%sl%d", run, i), now.Add(time.Duration(i)*time.Second), 1)
			b.UserID = user
			if err := repo.CreateBatch(ctx, b, jobs); err != nil {
				t.Fatal(err)
			}
			ids = append(ids, b.ID)
		}
		page, total, err := repo.ListBatches(ctx, user, paging.Cursor{}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if total != 3 || len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[1] {
			t.Fatalf("unexpected first page: total=%d %v", total, page)
		}
		rest, _, err := repo.ListBatches(ctx, user, paging.Cursor{At: page[1].CreatedAt, ID: page[1].ID}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(rest) != 1 || rest[0].ID != ids[0] {
			t.Fatalf("unexpected second page: %v", rest)
		}
	})

	t.Run("list batches sharing a timestamp", func(t *testing.T) {
		user := run + "t-user"
		for _, p := range []string{"t1", "t2", "t3", "t4"} {
			b, jobs := fixture(run+p, now, 1)
			b.UserID = user
			if err := repo.CreateBatch(ctx, b, jobs); err != nil {
				t.Fatal(err)
			}
		}
		older, jobs := fixture(run+"t0", now.Add(-time.Second), 1)
		older.UserID = user
		if err := repo.CreateBatch(ctx, older, jobs); err != nil {
			t.Fatal(err)
		}

		var seen []string
		var after paging.Cursor
		for i := 0; i < 5; i++ {
			page, _, err := repo.ListBatches(ctx, user, after, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(page) == 0 {
				break
			}
			for _, b := range page {
				seen = append(seen, b.ID)
			}
			last := page[len(page)-1]
			after = paging.Cursor{At: last.CreatedAt, ID: last.ID}
		}
		want := []string{run + "t4-bat", run + "t3-bat", run + "t2-bat", run + "t1-bat", run + "t0-bat"}
		if fmt.Sprint(seen) != fmt.Sprint(want) {
			t.Errorf("walked %v, want %v", seen, want)
		}
	})

	t.Run("stale jobs", func(t *testing.T) {
		old := now.Add(-time.Hour)
		b, jobs := fixture(run+"s", old, 2)
		if err := repo.CreateBatch(ctx, b, jobs); err != nil {
			t.Fatal(err)
		}
		if _, _, err := repo.UpdateJob(ctx, jobs[1].ID, func(j *structs.Job) (*structs.Job, bool, error) {
			n, ok := structs.Fail(j, "done", old)
			return n, ok, nil
		}); err != nil {
			t.Fatal(err)
		}
		ids, err := repo.StaleJobs(ctx, now.Add(-30*time.Minute), 100)
		if err != nil {
			t.Fatal(err)
		}
		if !contains(ids, jobs[0].ID) || contains(ids, jobs[1].ID) {
			t.Errorf("unexpected stale ids: %v", ids)
		}
	})

	t.Run("pending refunds", func(t *testing.T) {
		old := now.Add(-time.Hour)
		b, jobs := fixture(run+"p", old, 2)
		if err := repo.CreateBatch(ctx, b, jobs); err != nil {
			t.Fatal(err)
		}
		fail := func(j *structs.Job) (*structs.Job, bool, error) {
			n, ok := structs.Fail(j, "broken", old)
			return n, ok, nil
		}
		for _, j := range jobs {
			if _, _, err := repo.UpdateJob(ctx, j.ID, fail); err != nil {
				t.Fatal(err)
			}
		}
		if _, _, err := repo.UpdateJob(ctx, jobs[1].ID, func(j *structs.Job) (*structs.Job, bool, error) {
			n := j.Clone()
			n.Refunded = true
			return n, true, nil
		}); err != nil {
			t.Fatal(err)
		}
		ids, err := repo.PendingRefunds(ctx, now, 100)
		if err != nil {
			t.Fatal(err)
		}
		if !contains(ids, jobs[0].ID) || contains(ids, jobs[1].ID) {
			t.Errorf("unexpected pending refunds: %v", ids)
		}
		if ids, _ = repo.PendingRefunds(ctx, old.Add(-time.Minute), 100); contains(ids, jobs[0].ID) {
			t.Errorf("refund failed after cutoff listed: %v", ids)
		}
		if err := repo.Untrack(ctx, "missing-job"); err != nil {
			t.Errorf("untrack unknown job: %v", err)
		}
	})

	t.Run("markers", func(t *testing.T) {
		ev := run + "-ev"
		first, err := repo.MarkEvent(ctx, ev, time.Minute)
		if err != nil || !first {
			t.Fatalf("first mark: %v %v", first, err)
		}
		if again, _ := repo.MarkEvent(ctx, ev, time.Minute); again {
			t.Error("second mark should report duplicate")
		}

		user := run + "-idem"
		id, ok, err := repo.ClaimIdempotency(ctx, user, "k1", "bat_a")
		if err != nil || !ok || id != "bat_a" {
			t.Fatalf("claim: %s %v %v", id, ok, err)
		}
		id, ok, _ = repo.ClaimIdempotency(ctx, user, "k1", "bat_b")
		if ok || id != "bat_a" {
			t.Errorf("second claim = %s %v", id, ok)
		}
		_ = repo.ReleaseIdempotency(ctx, user, "k1")
		if id, ok, _ = repo.ClaimIdempotency(ctx, user, "k1", "bat_c"); !ok || id != "bat_c" {
			t.Errorf("claim after release = %s %v", id, ok)
		}

		if first, _ := repo.MarkNotified(ctx, run+"-n"); !first {
			t.Error("first notify should be true")
		}
		if again, _ := repo.MarkNotified(ctx, run+"-n"); again {
			t.Error("second notify should be false")
		}
	})
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestNew(t *testing.T) {
	if _, err := New(&config.Batch{Storage: "memory"}, nil); err != nil {
		t.Errorf("memory: %v", err)
	}
	if _, err := New(&config.Batch{Storage: "redis"}, nil); err == nil {
		t.Error("redis without client should fail")
	}
	if _, err := New(&config.Batch{Storage: "etcd"}, nil); err == nil {
		t.Error("unknown storage should fail")
	}
}
