package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/paging"
)

const maxTxRetries = 8

type redisRepository struct {
	rc        *redis.Client
	retention time.Duration
}

// NewRedis returns a Redis backed repository. Records expire after retention.
func NewRedis(rc *redis.Client, retention time.Duration) Repository {
	return &redisRepository{rc: rc, retention: retention}
}

func (r *redisRepository) CreateBatch(ctx context.Context, b *structs.Batch, jobs []*structs.Job) error {
	batchData, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	payloads := make([][]byte, len(jobs))
	for i, j := range jobs {
		if payloads[i], err = json.Marshal(j); err != nil {
			return fmt.Errorf("marshal job %s: %w", j.ID, err)
		}
	}

	_, err = r.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, batchKey(b.ID), batchData, r.retention)
		for i, j := range jobs {
			pipe.Set(ctx, jobKey(j.ID), payloads[i], r.retention)
			if !j.Status.Terminal() {
				pipe.ZAdd(ctx, activeJobsKey, redis.Z{Score: score(j.UpdatedAt), Member: j.ID})
			}
		}
		userKey := userBatchesKey(b.UserID)
		pipe.ZAdd(ctx, userKey, redis.Z{Score: score(b.CreatedAt), Member: b.ID})
		if r.retention > 0 {
			pipe.ZRemRangeByScore(ctx, userKey, "-inf", exclusiveMax(b.CreatedAt.Add(-r.retention)))
			pipe.Expire(ctx, userKey, r.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create batch %s: %w", b.ID, err)
	}
	return nil
}

func (r *redisRepository) GetBatch(ctx context.Context, id string) (*structs.Batch, error) {
	var b structs.Batch
	if err := r.get(ctx, batchKey(id), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *redisRepository) GetJob(ctx context.Context, id string) (*structs.Job, error) {
	var j structs.Job
	if err := r.get(ctx, jobKey(id), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *redisRepository) get(ctx context.Context, key string, v any) error {
	raw, err := r.rc.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (r *redisRepository) GetJobs(ctx context.Context, ids []string) ([]*structs.Job, error) {
	if len(ids) == 0 {
		return []*structs.Job{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	vals, err := r.rc.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget jobs: %w", err)
	}
	jobs := make([]*structs.Job, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var j structs.Job
		if err := json.Unmarshal([]byte(s), &j); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, nil
}

// UpdateJob runs fn inside WATCH/MULTI and retries when another client
// modified the job between read and write.
func (r *redisRepository) UpdateJob(ctx context.Context, id string, fn UpdateFunc) (*structs.Job, bool, error) {
	key := jobKey(id)
	var (
		result  *structs.Job
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return err
		}
		var current structs.Job
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		next, ok, err := fn(&current)
		if err != nil {
			return err
		}
		result, changed = next, ok
		if !ok {
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			if next.Status.Terminal() {
				pipe.ZRem(ctx, activeJobsKey, id)
			} else {
				pipe.ZAdd(ctx, activeJobsKey, redis.Z{Score: score(next.UpdatedAt), Member: id})
			}
			if next.NeedsRefund() {
				pipe.ZAdd(ctx, refundJobsKey, redis.Z{Score: score(next.UpdatedAt), Member: id})
			} else {
				pipe.ZRem(ctx, refundJobsKey, id)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rc.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return result, changed, nil
	}
	return nil, false, fmt.Errorf("%w: %s", ErrConflict, key)
}

func (r *redisRepository) ListBatches(ctx context.Context, userID string, after paging.Cursor, limit int) ([]*structs.Batch, int, error) {
	userKey := userBatchesKey(userID)
	var ids []string
	maxScore := "+inf"
	if !after.IsZero() {
		// members sharing a score come back in descending lexical order
		tied, err := r.rc.ZRevRangeByScore(ctx, userKey, &redis.ZRangeBy{
			Min: scoreArg(after.At),
			Max: scoreArg(after.At),
		}).Result()
		if err != nil {
			return nil, 0, fmt.Errorf("list batches: %w", err)
		}
		for _, id := range tied {
			if len(ids) < limit && after.Admits(after.At, id) {
				ids = append(ids, id)
			}
		}
		maxScore = exclusiveMax(after.At)
	}
	if len(ids) < limit {
		older, err := r.rc.ZRevRangeByScore(ctx, userKey, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   maxScore,
			Count: int64(limit - len(ids)),
		}).Result()
		if err != nil {
			return nil, 0, fmt.Errorf("list batches: %w", err)
		}
		ids = append(ids, older...)
	}
	total, err := r.rc.ZCard(ctx, userKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	if len(ids) == 0 {
		return []*structs.Batch{}, int(total), nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = batchKey(id)
	}
	vals, err := r.rc.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("mget batches: %w", err)
	}
	batches := make([]*structs.Batch, 0, len(vals))
	var expired []any
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var b structs.Batch
		if err := json.Unmarshal([]byte(s), &b); err != nil {
			return nil, 0, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		batches = append(batches, &b)
	}
	if len(expired) > 0 {
		r.rc.ZRem(ctx, userKey, expired...)
		total -= int64(len(expired))
	}
	return batches, int(total), nil
}

func (r *redisRepository) StaleJobs(ctx context.Context, before time.Time, limit int) ([]string, error) {
	ids, err := r.rc.ZRangeByScore(ctx, activeJobsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   scoreArg(before),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("stale jobs: %w", err)
	}
	return ids, nil
}

func (r *redisRepository) PendingRefunds(ctx context.Context, before time.Time, limit int) ([]string, error) {
	ids, err := r.rc.ZRangeByScore(ctx, refundJobsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   scoreArg(before),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("pending refunds: %w", err)
	}
	return ids, nil
}

func (r *redisRepository) Untrack(ctx context.Context, jobID string) error {
	_, err := r.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, activeJobsKey, jobID)
		pipe.ZRem(ctx, refundJobsKey, jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("untrack job %s: %w", jobID, err)
	}
	return nil
}

func (r *redisRepository) MarkEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := r.rc.SetNX(ctx, eventKey(eventID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark event %s: %w", eventID, err)
	}
	return ok, nil
}

func (r *redisRepository) ClaimIdempotency(ctx context.Context, userID, key, batchID string) (string, bool, error) {
	k := idemKey(userID, key)
	ok, err := r.rc.SetNX(ctx, k, batchID, r.retention).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim %s: %w", k, err)
	}
	if ok {
		return batchID, true, nil
	}
	existing, err := r.rc.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// released between SETNX and GET
		return r.ClaimIdempotency(ctx, userID, key, batchID)
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", k, err)
	}
	return existing, false, nil
}

func (r *redisRepository) ReleaseIdempotency(ctx context.Context, userID, key string) error {
	return r.rc.Del(ctx, idemKey(userID, key)).Err()
}

func (r *redisRepository) MarkNotified(ctx context.Context, batchID string) (bool, error) {
	return r.rc.SetNX(ctx, notifiedKey(batchID), 1, r.retention).Result()
}

func (r *redisRepository) Ping(ctx context.Context) error {
	return r.rc.Ping(ctx).Err()
}
