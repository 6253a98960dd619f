// Package executehandler implements the Execute job handler (spec §4.10): drives a
// planned AgentTask through its sandbox-backed steps to a pushed, finalized pull request.
// Grounded on the same internal/cub/executor.go executeWork shape as internal/planhandler,
// with the terminal-always sandbox teardown modeled on
// internal/orchestrator/workers.go's deferred cleanupWorker.
package executehandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/opencopilot/agentcore/internal/audit"
	"github.com/opencopilot/agentcore/internal/clock"
	"github.com/opencopilot/agentcore/internal/fileeditor"
	"github.com/opencopilot/agentcore/internal/forge"
	"github.com/opencopilot/agentcore/internal/jobpayload"
	"github.com/opencopilot/agentcore/internal/progress"
	"github.com/opencopilot/agentcore/internal/sandbox"
	"github.com/opencopilot/agentcore/internal/task"
	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// cleanupTimeout bounds sandbox teardown under a detached context so cancellation of the
// job itself never leaks a container (spec §5: "Sandbox cleanup still runs under a
// detached short-lived context").
const cleanupTimeout = 30 * time.Second

// maxEditAttempts bounds the fix/recheck loop per step (SPEC_FULL.md §12's resolution of
// spec §9's Open Question): the editor runs once, and at most once more if it reports
// EditResult.NeedsRecheck, to avoid an unbounded fix-lint-fix cycle.
const maxEditAttempts = 2

// ErrPlanMissing is fatal (non-retryable): the Plan job handler must run to completion
// before Execute can start.
var ErrPlanMissing = errors.New("executehandler: task has no plan")

// SandboxCreateFailedError wraps a sandbox.Manager.Create failure; retryable.
type SandboxCreateFailedError struct{ Cause error }

func (e *SandboxCreateFailedError) Error() string {
	return fmt.Sprintf("executehandler: sandbox create failed: %v", e.Cause)
}
func (e *SandboxCreateFailedError) Unwrap() error { return e.Cause }

// StepFailedError identifies which plan step aborted the loop; retryable up to the job's
// max attempts.
type StepFailedError struct {
	StepID string
	Cause  error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("executehandler: step %s failed: %v", e.StepID, e.Cause)
}
func (e *StepFailedError) Unwrap() error { return e.Cause }

// Sandbox is the subset of *sandbox.Manager this handler depends on, narrowed so tests
// can fake it without a ContainerDriver.
type Sandbox interface {
	Create(ctx context.Context, owner, repo, token, branch string, imageType sandbox.ImageType) (string, error)
	CommitAndPush(ctx context.Context, containerID, message, owner, repo, branch, token string) (committed bool, err error)
	Cleanup(ctx context.Context, containerID string) error
}

// Handler wires every collaborator the Execute job needs.
type Handler struct {
	Forge      forge.Forge
	Sandbox    Sandbox
	FileEditor fileeditor.FileEditor
	Tasks      task.Store
	Audit      audit.Store
	Progress   progress.Reporter
	Clock      clock.Clock
}

// NewHandler constructs a Handler from its collaborators.
func NewHandler(f forge.Forge, sb Sandbox, editor fileeditor.FileEditor, tasks task.Store, auditStore audit.Store, reporter progress.Reporter, clk clock.Clock) *Handler {
	return &Handler{
		Forge:      f,
		Sandbox:    sb,
		FileEditor: editor,
		Tasks:      tasks,
		Audit:      auditStore,
		Progress:   reporter,
		Clock:      clk,
	}
}

// Handle implements dispatcher.Handler for agentmodel.JobTypeExecute, running spec
// §4.10's algorithm. As with planhandler, cancellation is caught at suspension points and
// returned immediately; the dispatcher recognizes ctx.Err() == context.Canceled and
// finalizes job status Cancelled rather than retrying or marking the task Failed.
func (h *Handler) Handle(ctx context.Context, job agentmodel.BackgroundJob) agentmodel.JobResult {
	var payload jobpayload.ExecuteJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return agentmodel.JobResult{Success: false, ShouldRetry: true, Error: fmt.Sprintf("executehandler: invalid payload: %v", err)}
	}

	t, err := h.Tasks.Get(ctx, payload.TaskID)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return agentmodel.JobResult{Success: false, ShouldRetry: false, Error: fmt.Sprintf("executehandler: task %s not found", payload.TaskID)}
		}
		return h.retryable("load task", err)
	}

	if t.Plan == nil {
		return agentmodel.JobResult{Success: false, ShouldRetry: false, Error: ErrPlanMissing.Error()}
	}

	if err := t.Transition(agentmodel.TaskExecuting, h.Clock.Now()); err != nil {
		return agentmodel.JobResult{Success: false, ShouldRetry: false, Error: err.Error()}
	}
	if err := h.Tasks.Update(ctx, t); err != nil {
		return h.retryable("persist executing transition", err)
	}

	if err := ctx.Err(); err != nil {
		h.cancelTask(t)
		return agentmodel.JobResult{Success: false, Error: err.Error()}
	}

	token, err := h.Forge.AcquireInstallationToken(ctx, t.InstallationID)
	if err != nil {
		return h.failAndRetry(ctx, &t, "acquire installation token", err)
	}

	containerID, err := h.Sandbox.Create(ctx, t.Owner, t.Repo, token, t.BranchName, sandbox.ImageType(t.ImageType))
	if err != nil {
		wrapped := &SandboxCreateFailedError{Cause: err}
		return h.failAndRetry(ctx, &t, "create sandbox", wrapped)
	}
	h.recordAudit(ctx, t.ID, agentmodel.EventSandboxCreated, agentmodel.ResultSuccess, "")
	defer h.cleanupSandbox(t.ID, containerID)

	for i := range t.Plan.Steps {
		if err := ctx.Err(); err != nil {
			h.cancelTask(t)
			return agentmodel.JobResult{Success: false, Error: err.Error()}
		}

		step := t.Plan.Steps[i]
		if step.Done {
			continue
		}

		if err := h.editStepWithRecheck(ctx, containerID, step, t); err != nil {
			h.recordAudit(ctx, t.ID, agentmodel.EventStepExecuted, agentmodel.ResultFailure, err.Error())
			wrapped := &StepFailedError{StepID: step.ID, Cause: err}
			return h.failAndRetry(ctx, &t, "execute step "+step.ID, wrapped)
		}

		t.Plan.Steps[i].Done = true
		if err := h.Tasks.Update(ctx, t); err != nil {
			return h.failAndRetry(ctx, &t, "persist step completion", err)
		}
		h.recordAudit(ctx, t.ID, agentmodel.EventStepExecuted, agentmodel.ResultSuccess, "")

		if h.Progress != nil {
			if err := h.Progress.PostStepProgress(ctx, t, t.Plan.Steps[i]); err != nil {
				log.Printf("[WARN] executehandler: progress update failed for task %s step %s: %v", t.ID, step.ID, err)
			}
		}
	}

	message := fmt.Sprintf("agentcore: complete plan for %s", t.ID)
	committed, err := h.Sandbox.CommitAndPush(ctx, containerID, message, t.Owner, t.Repo, t.BranchName, token)
	if err != nil {
		return h.failAndRetry(ctx, &t, "commit and push", err)
	}
	commitResult := agentmodel.ResultSuccess
	if !committed {
		commitResult = agentmodel.ResultSkipped
	}
	h.recordAudit(ctx, t.ID, agentmodel.EventCommitPushed, commitResult, "")

	if h.Progress != nil {
		if err := h.Progress.FinalizePullRequest(ctx, t); err != nil {
			log.Printf("[WARN] executehandler: finalize pull request failed for task %s: %v", t.ID, err)
		}
	}

	if err := t.Transition(agentmodel.TaskCompleted, h.Clock.Now()); err != nil {
		return agentmodel.JobResult{Success: false, ShouldRetry: false, Error: err.Error()}
	}
	if err := h.Tasks.Update(ctx, t); err != nil {
		return h.retryable("persist completed transition", err)
	}

	return agentmodel.JobResult{Success: true}
}

// editStepWithRecheck runs the FileEditor for one step, re-invoking it at most
// maxEditAttempts times total when the editor reports NeedsRecheck (e.g. it auto-fixed a
// linter finding and wants its own fix re-verified). A second NeedsRecheck is accepted as
// final rather than looping further, per the bounded-loop Open Question decision.
func (h *Handler) editStepWithRecheck(ctx context.Context, containerID string, step agentmodel.PlanStep, t agentmodel.AgentTask) error {
	stepCtx := fileeditor.StepContext{
		TaskID:            t.ID,
		ProblemSummary:    t.Plan.ProblemSummary,
		Constraints:       t.Plan.Constraints,
		RepositorySummary: "",
	}

	var result fileeditor.EditResult
	var err error
	for attempt := 1; attempt <= maxEditAttempts; attempt++ {
		result, err = h.FileEditor.Edit(ctx, containerID, step, stepCtx)
		if err != nil {
			return err
		}
		if !result.NeedsRecheck {
			return nil
		}
		log.Printf("[INFO] executehandler: step %s requested recheck attempt=%d", step.ID, attempt)
	}
	return nil
}

// retryable wraps a collaborator error as a retryable JobResult without touching task
// status — used before the task has reached Executing, or when only the job (not the
// task) needs to retry (e.g. a transient store write).
func (h *Handler) retryable(step string, err error) agentmodel.JobResult {
	return agentmodel.JobResult{Success: false, ShouldRetry: true, Error: fmt.Sprintf("executehandler: %s: %v", step, err)}
}

// failAndRetry marks t Failed with err's message (best-effort persist; a persist failure
// is only logged, since the job-level retry is already the more important signal) and
// returns a retryable JobResult, matching spec §4.10's failure taxonomy: every listed
// failure kind drives Executing -> Failed, never Completed. If ctx is already cancelled,
// the failure is treated as a cancellation instead: t goes to Cancelled via cancelTask.
func (h *Handler) failAndRetry(ctx context.Context, t *agentmodel.AgentTask, step string, cause error) agentmodel.JobResult {
	if err := ctx.Err(); err != nil {
		h.cancelTask(*t)
		return agentmodel.JobResult{Success: false, Error: err.Error()}
	}
	msg := fmt.Sprintf("%s: %v", step, cause)
	t.LastError = msg
	if err := t.Transition(agentmodel.TaskFailed, h.Clock.Now()); err != nil {
		log.Printf("[WARN] executehandler: could not transition task %s to Failed: %v", t.ID, err)
	} else if err := h.Tasks.Update(ctx, *t); err != nil {
		log.Printf("[WARN] executehandler: could not persist Failed status for task %s: %v", t.ID, err)
	}
	return agentmodel.JobResult{Success: false, ShouldRetry: true, Error: msg}
}

// cancelTask best-effort transitions t to Cancelled and persists it, per spec §5's
// "converts a cancellation exit into job status Cancelled and task status Cancelled (if
// the task was Executing)". A persist failure is only logged.
func (h *Handler) cancelTask(t agentmodel.AgentTask) {
	if err := t.Transition(agentmodel.TaskCancelled, h.Clock.Now()); err != nil {
		return
	}
	if err := h.Tasks.Update(context.Background(), t); err != nil {
		log.Printf("[WARN] executehandler: failed to persist Cancelled status for task %s: %v", t.ID, err)
	}
}

// cleanupSandbox runs sandbox teardown under a detached context regardless of the job
// context's state (spec §5), logging but never surfacing failure as job failure (spec
// §4.10 step 9).
func (h *Handler) cleanupSandbox(taskID, containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	result := agentmodel.ResultSuccess
	errMsg := ""
	if err := h.Sandbox.Cleanup(ctx, containerID); err != nil {
		log.Printf("[WARN] executehandler: sandbox cleanup failed for task %s container %s: %v", taskID, containerID, err)
		result = agentmodel.ResultFailure
		errMsg = err.Error()
	}
	h.recordAudit(ctx, taskID, agentmodel.EventSandboxCleanedUp, result, errMsg)
}

func (h *Handler) recordAudit(ctx context.Context, taskID string, eventType agentmodel.AuditEventType, result agentmodel.AuditResult, errMsg string) {
	if h.Audit == nil {
		return
	}
	entry := agentmodel.AuditLog{
		ID:            uuid.NewString(),
		EventType:     eventType,
		Timestamp:     h.Clock.Now(),
		CorrelationID: taskID,
		Initiator:     "executehandler",
		Target:        taskID,
		Result:        result,
		Error:         errMsg,
	}
	if err := h.Audit.Store(ctx, entry); err != nil {
		log.Printf("[WARN] executehandler: failed to record audit entry for task %s: %v", taskID, err)
	}
}
