// Package processor is a reference worker that consumes dispatched jobs,
// runs them on the model gateway and reports progress as events. It stands
// in for the hosted worker in development.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/concurrency/worker"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/dispatch"
	"github.com/studio233/batchd/gateway"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/logging/observes"
	"github.com/studio233/batchd/oss"
)

var (
	ErrOutputTooLarge = errors.New("output exceeds size limit")
	ErrNotImage       = errors.New("output is not an image")
)

const publishAttempts = 3

// Processor runs dispatched jobs on a bounded worker pool
type Processor struct {
	cfg    *config.Worker
	runner gateway.Runner
	store  oss.Interface
	events dispatch.EventPublisher
	pool   *worker.Pool[*structs.DispatchMessage]
	client *http.Client
	now    func() time.Time
	newID  func() string
}

// New returns a processor. Call Start before handing it jobs.
func New(cfg *config.Worker, runner gateway.Runner, store oss.Interface, events dispatch.EventPublisher) *Processor {
	p := &Processor{
		cfg:    cfg,
		runner: runner,
		store:  store,
		events: events,
		client: &http.Client{Timeout: 2 * time.Minute},
		now:    time.Now,
		newID:  uuid.NewString,
	}
	p.pool = worker.NewPool(worker.Config{
		MaxWorkers:  cfg.MaxWorkers,
		QueueSize:   cfg.QueueSize,
		TaskTimeout: cfg.TaskTimeout,
	}, p.Run)
	p.pool.OnError(func(msg *structs.DispatchMessage, err error) {
		logger.Warn(context.Background(), "job run aborted", "job_id", msg.JobID, "error", err)
	})
	return p
}

// Start launches the pool workers
func (p *Processor) Start() { p.pool.Start() }

// Stop drains queued jobs until ctx expires
func (p *Processor) Stop(ctx context.Context) { p.pool.Stop(ctx) }

// Stats exposes pool counters
func (p *Processor) Stats() map[string]int64 { return p.pool.Stats().Map() }

// Handle queues msg on the pool, blocking while the pool is saturated.
// The delivery is acknowledged once queued; jobs lost to a crash are
// failed later by the stale job sweeper.
func (p *Processor) Handle(ctx context.Context, msg *structs.DispatchMessage) error {
	return p.pool.SubmitWait(ctx, msg)
}

// Run executes msg with retries, emitting an event for every state change
func (p *Processor) Run(ctx context.Context, msg *structs.DispatchMessage) error {
	ctx, span := observes.StartSpan(ctx, "processor.run")
	var runErr error
	defer func() { observes.EndSpan(span, runErr) }()

	maxAttempts := max(msg.MaxAttempts, 1)
	attempt := 1
	for ; ; attempt++ {
		if err := p.emit(ctx, msg.JobID, structs.EventStarted, attempt, "", ""); err != nil {
			return err
		}
		url, err := p.attempt(ctx, msg, attempt)
		if err == nil {
			return p.emit(ctx, msg.JobID, structs.EventCompleted, attempt, url, "")
		}
		runErr = err
		logger.Warn(ctx, "job attempt failed", "job_id", msg.JobID, "attempt", attempt, "error", err)
		if attempt >= maxAttempts || permanent(err) || ctx.Err() != nil {
			break
		}
		if err := sleep(ctx, p.cfg.RetryDelay*time.Duration(attempt)); err != nil {
			break
		}
	}
	// the attempt context may be exhausted; report the failure regardless
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return p.emit(reportCtx, msg.JobID, structs.EventFailed, attempt, "", runErr.Error())
}

func (p *Processor) attempt(ctx context.Context, msg *structs.DispatchMessage, attempt int) (string, error) {
	output, err := p.runner.Run(ctx, msg.Operation, msg.SourceURL, msg.Params)
	if err != nil {
		return "", err
	}
	if err := p.emit(ctx, msg.JobID, structs.EventVerifying, attempt, "", ""); err != nil {
		return "", err
	}
	return p.persist(ctx, msg, attempt, output)
}

// persist downloads the model output, checks it is a bounded image and
// copies it into blob storage
func (p *Processor) persist(ctx context.Context, msg *structs.DispatchMessage, attempt int, output string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, output, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch output: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch output: status %d", resp.StatusCode)
	}
	if p.cfg.MaxOutputBytes > 0 && resp.ContentLength > p.cfg.MaxOutputBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrOutputTooLarge, resp.ContentLength)
	}

	limit := p.cfg.MaxOutputBytes
	if limit <= 0 {
		limit = 25 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", fmt.Errorf("read output: %w", err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: more than %d bytes", ErrOutputTooLarge, limit)
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	ext, ok := oss.ImageExtension(contentType)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}

	path := fmt.Sprintf("results/%s/%s-%d%s", msg.BatchID, msg.JobID, attempt, ext)
	obj, err := p.store.Put(ctx, path, bytes.NewReader(data), contentType)
	if err != nil {
		return "", fmt.Errorf("store output: %w", err)
	}
	if obj.URL != "" {
		return obj.URL, nil
	}
	return p.store.GetURL(ctx, path)
}

func (p *Processor) emit(ctx context.Context, jobID string, typ structs.EventType, attempt int, resultURL, reason string) error {
	ev := &structs.Event{
		ID:         p.newID(),
		JobID:      jobID,
		Type:       typ,
		Attempt:    attempt,
		ResultURL:  resultURL,
		Error:      reason,
		OccurredAt: p.now().UTC(),
	}
	var err error
	for i := 0; i < publishAttempts; i++ {
		if err = p.events.PublishEvent(ctx, ev); err == nil {
			return nil
		}
		logger.Warn(ctx, "publish event failed", "job_id", jobID, "type", typ, "error", err)
		if sleep(ctx, time.Duration(i+1)*100*time.Millisecond) != nil {
			break
		}
	}
	return fmt.Errorf("publish %s event for %s: %w", typ, jobID, err)
}

func permanent(err error) bool {
	return errors.Is(err, gateway.ErrUnknownOperation) ||
		errors.Is(err, ErrNotImage) ||
		errors.Is(err, ErrOutputTooLarge)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
