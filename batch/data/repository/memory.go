package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/paging"
)

type expiring struct {
	value   string
	expires time.Time
}

type memoryRepository struct {
	mu        sync.Mutex
	retention time.Duration
	now       func() time.Time

	batches  map[string]*structs.Batch
	jobs     map[string]*structs.Job
	byUser   map[string][]string
	markers  map[string]expiring
	notified map[string]bool
}

// NewMemory returns a process-local repository
func NewMemory(retention time.Duration) Repository {
	return newMemory(retention, time.Now)
}

func newMemory(retention time.Duration, now func() time.Time) *memoryRepository {
	return &memoryRepository{
		retention: retention,
		now:       now,
		batches:   make(map[string]*structs.Batch),
		jobs:      make(map[string]*structs.Job),
		byUser:    make(map[string][]string),
		markers:   make(map[string]expiring),
		notified:  make(map[string]bool),
	}
}

func cloneBatch(b *structs.Batch) *structs.Batch {
	c := *b
	c.JobIDs = append([]string(nil), b.JobIDs...)
	return &c
}

func (m *memoryRepository) CreateBatch(_ context.Context, b *structs.Batch, jobs []*structs.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[b.ID]; ok {
		return fmt.Errorf("batch %s already exists", b.ID)
	}
	m.batches[b.ID] = cloneBatch(b)
	for _, j := range jobs {
		m.jobs[j.ID] = j.Clone()
	}
	m.byUser[b.UserID] = append(m.byUser[b.UserID], b.ID)
	return nil
}

func (m *memoryRepository) GetBatch(_ context.Context, id string) (*structs.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok || m.expired(b.CreatedAt) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, batchKey(id))
	}
	return cloneBatch(b), nil
}

func (m *memoryRepository) GetJob(_ context.Context, id string) (*structs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || m.expired(j.CreatedAt) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobKey(id))
	}
	return j.Clone(), nil
}

func (m *memoryRepository) GetJobs(_ context.Context, ids []string) ([]*structs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]*structs.Job, 0, len(ids))
	for _, id := range ids {
		if j, ok := m.jobs[id]; ok && !m.expired(j.CreatedAt) {
			jobs = append(jobs, j.Clone())
		}
	}
	return jobs, nil
}

func (m *memoryRepository) UpdateJob(_ context.Context, id string, fn UpdateFunc) (*structs.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || m.expired(j.CreatedAt) {
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, jobKey(id))
	}
	next, changed, err := fn(j.Clone())
	if err != nil {
		return nil, false, err
	}
	if changed {
		m.jobs[id] = next.Clone()
	}
	return next, changed, nil
}

func (m *memoryRepository) ListBatches(_ context.Context, userID string, after paging.Cursor, limit int) ([]*structs.Batch, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*structs.Batch, 0, len(m.byUser[userID]))
	for _, id := range m.byUser[userID] {
		if b, ok := m.batches[id]; ok && !m.expired(b.CreatedAt) {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, k int) bool {
		if all[i].CreatedAt.Equal(all[k].CreatedAt) {
			return all[i].ID > all[k].ID
		}
		return all[i].CreatedAt.After(all[k].CreatedAt)
	})

	out := make([]*structs.Batch, 0, limit)
	for _, b := range all {
		if len(out) >= limit {
			break
		}
		if after.Admits(b.CreatedAt, b.ID) {
			out = append(out, cloneBatch(b))
		}
	}
	return out, len(all), nil
}

func (m *memoryRepository) StaleJobs(_ context.Context, before time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanJobs(before, limit, func(j *structs.Job) bool { return !j.Status.Terminal() }), nil
}

func (m *memoryRepository) PendingRefunds(_ context.Context, before time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanJobs(before, limit, (*structs.Job).NeedsRefund), nil
}

// scanJobs returns live jobs matching keep, oldest update first.
func (m *memoryRepository) scanJobs(before time.Time, limit int, keep func(*structs.Job) bool) []string {
	var found []*structs.Job
	for _, j := range m.jobs {
		if keep(j) && !j.UpdatedAt.After(before) && !m.expired(j.CreatedAt) {
			found = append(found, j)
		}
	}
	sort.Slice(found, func(i, k int) bool { return found[i].UpdatedAt.Before(found[k].UpdatedAt) })
	ids := make([]string, 0, min(limit, len(found)))
	for _, j := range found {
		if len(ids) >= limit {
			break
		}
		ids = append(ids, j.ID)
	}
	return ids
}

// Untrack drops an expired job. Live jobs are indexed by their status and stay.
func (m *memoryRepository) Untrack(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok && m.expired(j.CreatedAt) {
		delete(m.jobs, jobID)
	}
	return nil
}

// setNX stores value under key unless a live marker exists; it returns the live value otherwise.
func (m *memoryRepository) setNX(key, value string, ttl time.Duration) (string, bool) {
	now := m.now()
	if cur, ok := m.markers[key]; ok && (cur.expires.IsZero() || now.Before(cur.expires)) {
		return cur.value, false
	}
	e := expiring{value: value}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.markers[key] = e
	return value, true
}

func (m *memoryRepository) MarkEvent(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.setNX(eventKey(eventID), "1", ttl)
	return ok, nil
}

func (m *memoryRepository) ClaimIdempotency(_ context.Context, userID, key, batchID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.setNX(idemKey(userID, key), batchID, m.retention)
	return v, ok, nil
}

func (m *memoryRepository) ReleaseIdempotency(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markers, idemKey(userID, key))
	return nil
}

func (m *memoryRepository) MarkNotified(_ context.Context, batchID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notified[batchID] {
		return false, nil
	}
	m.notified[batchID] = true
	return true, nil
}

func (m *memoryRepository) Ping(context.Context) error { return nil }

func (m *memoryRepository) expired(created time.Time) bool {
	return m.retention > 0 && m.now().Sub(created) > m.retention
}
