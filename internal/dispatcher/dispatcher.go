// Package dispatcher implements the Job Dispatcher (C8): a pool of worker goroutines that
// dequeue BackgroundJobs, run their registered handler under a per-job cancellable
// context, and apply the retry/backoff policy — grounded on the teacher's
// internal/orchestrator/workers.go goroutine-per-unit-of-work pattern
// (monitorWorker/handleWorkerExit) generalized from "supervise a worker container" to
// "supervise one job attempt".
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencopilot/agentcore/internal/clock"
	"github.com/opencopilot/agentcore/internal/dedup"
	"github.com/opencopilot/agentcore/internal/jobstatus"
	"github.com/opencopilot/agentcore/internal/queue"
	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// MetadataTaskIDKey is the BackgroundJob.Metadata key producers (the Plan/Execute job
// handlers' callers) must set so the dispatcher can compute a dedup fingerprint that
// includes the task id (spec §4.6).
const MetadataTaskIDKey = "taskId"

type jobEntry struct {
	ctx         context.Context
	cancel      context.CancelFunc
	fingerprint string
	attempt     int
}

// Dispatcher owns the worker pool and the per-job cancellation registry. Construct with
// New, register handlers with RegisterHandler, then call Start to begin processing.
type Dispatcher struct {
	queue     *queue.Queue
	dedup     dedup.Service
	jobStatus jobstatus.Store
	clock     clock.Clock

	maxConcurrency int
	dedupTTL       time.Duration

	mu       sync.Mutex
	handlers map[agentmodel.JobType]Handler
	registry map[string]*jobEntry

	wg sync.WaitGroup

	// backoffFunc computes the retry delay for a given attempt count; defaults to
	// computeBackoff. Tests in this package override it directly to avoid waiting out
	// real backoff delays.
	backoffFunc func(attempt int) time.Duration
}

// New constructs a Dispatcher. dedupTTL bounds how long a fingerprint claim survives
// without being refreshed — it should comfortably exceed the slowest expected job runtime
// (e.g. the configured job timeout) so a live job's claim never lapses mid-run.
func New(q *queue.Queue, dedupSvc dedup.Service, jobStatusStore jobstatus.Store, clk clock.Clock, maxConcurrency int, dedupTTL time.Duration) *Dispatcher {
	return &Dispatcher{
		queue:          q,
		dedup:          dedupSvc,
		jobStatus:      jobStatusStore,
		clock:          clk,
		maxConcurrency: maxConcurrency,
		dedupTTL:       dedupTTL,
		handlers:       make(map[agentmodel.JobType]Handler),
		registry:       make(map[string]*jobEntry),
		backoffFunc:    computeBackoff,
	}
}

// RegisterHandler binds handler to jobType. Must be called before Start.
func (d *Dispatcher) RegisterHandler(jobType agentmodel.JobType, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = handler
}

// Dispatch computes job's fingerprint, attempts to register it with the deduplication
// service, and enqueues it on success. Returns false (never an error for a routine dedup
// conflict) when the job is not accepted — per spec §4.8, a conflict is recorded as
// status Queued with a deduped marker, not as a dispatch error.
func (d *Dispatcher) Dispatch(ctx context.Context, job agentmodel.BackgroundJob) (bool, error) {
	fp := dedup.Fingerprint(string(job.Type), job.Metadata[MetadataTaskIDKey])

	claimed, err := d.dedup.TryRegister(ctx, fp, job.ID, d.dedupTTL)
	if err != nil {
		return false, fmt.Errorf("dispatcher: dedup registration failed for %s: %w", job.ID, err)
	}
	if !claimed {
		d.setStatus(ctx, job, agentmodel.JobQueued, 0, dedupedMetadata(job.Metadata), "")
		return false, nil
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	entry := &jobEntry{ctx: jobCtx, cancel: cancel, fingerprint: fp}

	d.mu.Lock()
	d.registry[job.ID] = entry
	d.mu.Unlock()

	d.setStatus(ctx, job, agentmodel.JobQueued, 0, job.Metadata, "")

	accepted, err := d.queue.Enqueue(ctx, job)
	if err != nil || !accepted {
		d.releaseEntry(ctx, job.ID, fp)
		return false, nil
	}
	return true, nil
}

// CancelJob trips the cancellation token for jobId if it is currently Queued or Running.
// Returns false for an unknown, already-terminal, or never-dispatched job id.
func (d *Dispatcher) CancelJob(ctx context.Context, jobID string) bool {
	d.mu.Lock()
	entry, ok := d.registry[jobID]
	d.mu.Unlock()
	if !ok {
		return false
	}

	info, found, err := d.jobStatus.Get(ctx, jobID)
	if err != nil || !found {
		return false
	}
	if info.Status != agentmodel.JobQueued && info.Status != agentmodel.JobRunning {
		return false
	}

	entry.cancel()
	return true
}

// Start launches maxConcurrency worker goroutines that dequeue and process jobs until ctx
// is cancelled or the queue reports shutdown. Call Wait to block until all workers exit.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.maxConcurrency; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Wait blocks until every worker goroutine (and any in-flight retry timers) has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		job, ok := d.queue.Dequeue(ctx)
		if !ok {
			return
		}
		d.process(ctx, job)
	}
}

func (d *Dispatcher) process(ctx context.Context, job agentmodel.BackgroundJob) {
	d.mu.Lock()
	entry, ok := d.registry[job.ID]
	if ok {
		entry.attempt++
	}
	d.mu.Unlock()
	if !ok {
		// Defensive: every enqueued job is registered at Dispatch time. A missing entry
		// means the job can't be cancelled or have its dedup claim released correctly, so
		// treat it as a single, non-retryable attempt under a fresh context.
		entry = &jobEntry{ctx: context.Background(), cancel: func() {}, attempt: 1}
	}

	attempt := entry.attempt
	d.setStatus(ctx, job, agentmodel.JobRunning, attempt, job.Metadata, "")

	d.mu.Lock()
	handler, registered := d.handlers[job.Type]
	d.mu.Unlock()

	var result agentmodel.JobResult
	if !registered {
		result = agentmodel.JobResult{Success: false, Error: fmt.Sprintf("no handler registered for job type %q", job.Type)}
	} else {
		result = handler(entry.ctx, job)
	}

	if entry.ctx.Err() == context.Canceled {
		d.finalize(job, entry, agentmodel.JobCancelled, result, attempt)
		return
	}
	if result.Success {
		d.finalize(job, entry, agentmodel.JobCompleted, result, attempt)
		return
	}
	// job.MaxRetries counts retries, not total attempts: attempt 1 is the initial try, so
	// up to MaxRetries further attempts are permitted (total attempts = MaxRetries + 1).
	if result.ShouldRetry && attempt <= job.MaxRetries {
		d.scheduleRetry(ctx, job, entry, attempt)
		return
	}
	d.finalize(job, entry, agentmodel.JobFailed, result, attempt)
}

func (d *Dispatcher) scheduleRetry(ctx context.Context, job agentmodel.BackgroundJob, entry *jobEntry, attempt int) {
	delay := d.backoffFunc(attempt)
	d.setStatus(context.Background(), job, agentmodel.JobQueued, attempt, job.Metadata, "")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case <-time.After(delay):
			if _, err := d.queue.Enqueue(context.Background(), job); err != nil {
				d.finalize(job, entry, agentmodel.JobFailed, agentmodel.JobResult{Error: "failed to re-enqueue after retry backoff: " + err.Error()}, attempt)
			}
		case <-entry.ctx.Done():
			d.finalize(job, entry, agentmodel.JobCancelled, agentmodel.JobResult{}, attempt)
		case <-ctx.Done():
			// Dispatcher shutting down mid-backoff: leave the dedup claim to expire on its
			// own TTL rather than racing a finalize against process exit.
		}
	}()
}

func (d *Dispatcher) finalize(job agentmodel.BackgroundJob, entry *jobEntry, status agentmodel.BackgroundJobStatus, result agentmodel.JobResult, attempt int) {
	d.setStatus(context.Background(), job, status, attempt, job.Metadata, result.Error)
	d.finalizeResultData(job.ID, result.ResultData)
	d.releaseEntry(context.Background(), job.ID, entry.fingerprint)
}

func (d *Dispatcher) finalizeResultData(jobID string, resultData []byte) {
	if len(resultData) == 0 {
		return
	}
	info, found, err := d.jobStatus.Get(context.Background(), jobID)
	if err != nil || !found {
		return
	}
	info.ResultData = resultData
	_ = d.jobStatus.Set(context.Background(), info)
}

func (d *Dispatcher) releaseEntry(ctx context.Context, jobID, fingerprint string) {
	_ = d.dedup.Release(ctx, fingerprint)
	d.mu.Lock()
	delete(d.registry, jobID)
	d.mu.Unlock()
}

func (d *Dispatcher) setStatus(ctx context.Context, job agentmodel.BackgroundJob, status agentmodel.BackgroundJobStatus, attempt int, metadata map[string]string, lastError string) {
	now := d.clock.Now()
	info := agentmodel.BackgroundJobStatusInfo{
		JobID:     job.ID,
		Type:      job.Type,
		Status:    status,
		CreatedAt: now, // overridden by the store's CreatedAt-preservation on every update after the first
		Attempt:   attempt,
		LastError: lastError,
		Metadata:  metadata,
	}
	if status == agentmodel.JobRunning {
		info.StartedAt = &now
	}
	if status.IsTerminal() {
		info.CompletedAt = &now
	}
	_ = d.jobStatus.Set(ctx, info)
}

func dedupedMetadata(original map[string]string) map[string]string {
	m := make(map[string]string, len(original)+1)
	for k, v := range original {
		m[k] = v
	}
	m["deduped"] = "true"
	return m
}
