package agentmodel

import "time"

// JobType tags a BackgroundJob's handler. The dispatcher looks up a registered handler
// by this value (see internal/dispatcher).
type JobType string

const (
	JobTypePlan    JobType = "plan"
	JobTypeExecute JobType = "execute"
)

// BackgroundJob is immutable once enqueued (spec §3). Payload is opaque to the queue and
// dispatcher — only the handler registered for Type knows how to decode it.
type BackgroundJob struct {
	ID         string
	Type       JobType
	Payload    []byte
	Metadata   map[string]string
	MaxRetries int
	Priority   int
}

// BackgroundJobStatus is the lifecycle state of a dispatched job.
type BackgroundJobStatus string

const (
	JobQueued    BackgroundJobStatus = "Queued"
	JobRunning   BackgroundJobStatus = "Running"
	JobCompleted BackgroundJobStatus = "Completed"
	JobFailed    BackgroundJobStatus = "Failed"
	JobCancelled BackgroundJobStatus = "Cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s BackgroundJobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// BackgroundJobStatusInfo is the durable, advisory record of a job's observable state.
// Job correctness never depends on this being persisted (spec §4.5) — it exists for
// operator visibility (agentctl status/cancel) and for audit correlation.
type BackgroundJobStatusInfo struct {
	JobID       string
	Type        JobType
	Status      BackgroundJobStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Attempt     int
	LastError   string
	ResultData  []byte
	Metadata    map[string]string
}

// JobResult is what a handler returns to the dispatcher's worker loop.
type JobResult struct {
	Success      bool
	Error        string
	ShouldRetry  bool
	Exception    []byte
	ResultData   []byte
}
