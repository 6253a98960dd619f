// Package queue implements the Job Queue (spec §4.7): a bounded, single-producer-many-
// consumer FIFO with advisory priority overtaking, grounded on the teacher's plain-channel
// work-queue style (internal/cub/engine.go's Start/claimWatcher/workExecutor).
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// ErrClosed is returned by Enqueue once the queue has been shut down.
var ErrClosed = errors.New("queue: closed")

// Queue is a bounded FIFO with two priority levels. Jobs with Priority > 0 overtake jobs
// with Priority <= 0, but ordering within each level is strict FIFO — priority is advisory
// (spec §4.7), not a full priority heap, matching the teacher's preference for plain
// channels over generic containers.
type Queue struct {
	high chan agentmodel.BackgroundJob
	low  chan agentmodel.BackgroundJob

	closeOnce sync.Once
	done      chan struct{}
}

// NewQueue returns a Queue whose high and low priority levels each hold up to capacity
// buffered jobs.
func NewQueue(capacity int) *Queue {
	return &Queue{
		high: make(chan agentmodel.BackgroundJob, capacity),
		low:  make(chan agentmodel.BackgroundJob, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue blocks until job is accepted, ctx is cancelled, or the queue is shut down.
func (q *Queue) Enqueue(ctx context.Context, job agentmodel.BackgroundJob) (bool, error) {
	ch := q.low
	if job.Priority > 0 {
		ch = q.high
	}

	select {
	case ch <- job:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-q.done:
		return false, ErrClosed
	}
}

// Dequeue blocks until a job is available or the context is cancelled or the queue is shut
// down. High-priority jobs are always preferred when both levels have ready items; a
// shutdown still lets already-enqueued jobs drain before Dequeue starts returning false.
func (q *Queue) Dequeue(ctx context.Context) (agentmodel.BackgroundJob, bool) {
	select {
	case job := <-q.high:
		return job, true
	default:
	}

	select {
	case job := <-q.high:
		return job, true
	case job := <-q.low:
		return job, true
	case <-ctx.Done():
		return agentmodel.BackgroundJob{}, false
	case <-q.done:
		return q.drainOne()
	}
}

func (q *Queue) drainOne() (agentmodel.BackgroundJob, bool) {
	select {
	case job := <-q.high:
		return job, true
	case job := <-q.low:
		return job, true
	default:
		return agentmodel.BackgroundJob{}, false
	}
}

// Shutdown stops accepting new work and unblocks any waiting Dequeue/Enqueue calls. Safe
// to call more than once.
func (q *Queue) Shutdown() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Len reports the number of jobs currently buffered across both priority levels, for
// status reporting — not safe to rely on for synchronization.
func (q *Queue) Len() int {
	return len(q.high) + len(q.low)
}
