// Package repository persists batches and jobs in a key-value store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/paging"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an optimistic update keeps losing the race.
	ErrConflict = errors.New("concurrent update conflict")
)

// UpdateFunc receives the stored job and returns the next state.
// Returning changed=false leaves the record untouched.
type UpdateFunc func(job *structs.Job) (next *structs.Job, changed bool, err error)

// Repository stores batch and job state
type Repository interface {
	// CreateBatch stores b and its jobs atomically
	CreateBatch(ctx context.Context, b *structs.Batch, jobs []*structs.Job) error
	GetBatch(ctx context.Context, id string) (*structs.Batch, error)
	GetJob(ctx context.Context, id string) (*structs.Job, error)
	// GetJobs returns the jobs found among ids, in order, skipping missing ones
	GetJobs(ctx context.Context, ids []string) ([]*structs.Job, error)
	// UpdateJob applies fn atomically to the stored job
	UpdateJob(ctx context.Context, id string, fn UpdateFunc) (*structs.Job, bool, error)
	// ListBatches returns a user's batches that come after the cursor,
	// newest first with ties broken by descending id
	ListBatches(ctx context.Context, userID string, after paging.Cursor, limit int) ([]*structs.Batch, int, error)
	// StaleJobs returns ids of non-terminal jobs not updated since before
	StaleJobs(ctx context.Context, before time.Time, limit int) ([]string, error)
	// PendingRefunds returns ids of failed jobs, failed at or before before,
	// whose cost has not been returned
	PendingRefunds(ctx context.Context, before time.Time, limit int) ([]string, error)
	// Untrack drops a job id from the active and refund indexes
	Untrack(ctx context.Context, jobID string) error
	// MarkEvent records a delivery id; false means it was seen within ttl
	MarkEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	// ClaimIdempotency binds key to batchID for userID; on an existing claim it
	// returns the batch id already bound and false
	ClaimIdempotency(ctx context.Context, userID, key, batchID string) (string, bool, error)
	ReleaseIdempotency(ctx context.Context, userID, key string) error
	// MarkNotified returns true only for the first call per batch
	MarkNotified(ctx context.Context, batchID string) (bool, error)
	Ping(ctx context.Context) error
}

const (
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// New returns the repository selected by cfg.Storage
func New(cfg *config.Batch, rc *redis.Client) (Repository, error) {
	switch cfg.Storage {
	case StorageRedis:
		if rc == nil {
			return nil, errors.New("redis storage selected but no redis client configured")
		}
		return NewRedis(rc, cfg.Retention), nil
	case StorageMemory, "":
		return NewMemory(cfg.Retention), nil
	default:
		return nil, fmt.Errorf("unknown batch storage %q", cfg.Storage)
	}
}

// Key layout
const (
	activeJobsKey = "jobs:active"
	refundJobsKey = "jobs:refund"
)

func jobKey(id string) string { return "job:" + id }
func batchKey(id string) string { return "batch:" + id }
func userBatchesKey(userID string) string { return "user:" + userID + ":batches" }
func eventKey(id string) string { return "event:" + id }
func idemKey(userID, key string) string { return "idem:" + userID + ":" + key }
func notifiedKey(batchID string) string { return "batch:" + batchID + ":notified" }
func score(t time.Time) float64 { return float64(t.UnixMicro()) }
func exclusiveMax(t time.Time) string { return fmt.Sprintf("(%d", t.UnixMicro()) }
func scoreArg(t time.Time) string     { return fmt.Sprintf("%d", t.UnixMicro()) }
