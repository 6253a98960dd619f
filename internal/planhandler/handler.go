// Package planhandler implements the Plan job handler (spec §4.9): drives an AgentTask
// from PendingPlanning to Planned, opening the working branch and draft PR, gathering
// best-effort repository context, calling the planner, and handing off to the Execute
// job. Grounded on internal/cub/executor.go's executeWork shape — a straight-line,
// step-numbered sequence that never panics on a collaborator error, instead translating
// it into a JobResult the dispatcher can act on.
package planhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencopilot/agentcore/internal/audit"
	"github.com/opencopilot/agentcore/internal/clock"
	"github.com/opencopilot/agentcore/internal/forge"
	"github.com/opencopilot/agentcore/internal/instructions"
	"github.com/opencopilot/agentcore/internal/jobpayload"
	"github.com/opencopilot/agentcore/internal/lm"
	"github.com/opencopilot/agentcore/internal/repoanalyzer"
	"github.com/opencopilot/agentcore/internal/task"
	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// wipPrefix marks a pull request description as still in progress (spec §4.9 step 10).
const wipPrefix = "[WIP] "

// JobDispatcher is the subset of *dispatcher.Dispatcher the Plan handler needs: enough to
// enqueue the Execute job once a plan exists. A narrow interface (rather than depending on
// *dispatcher.Dispatcher directly) keeps this package's tests free of queue/dedup/job
// status wiring.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job agentmodel.BackgroundJob) (bool, error)
}

// Handler wires every collaborator the Plan job needs.
type Handler struct {
	Forge        forge.Forge
	Planner      lm.Planner
	Analyzer     repoanalyzer.Analyzer
	Instructions *instructions.Loader
	Tasks        task.Store
	Audit        audit.Store
	Dispatcher   JobDispatcher
	Clock        clock.Clock
}

// NewHandler constructs a Handler from its collaborators.
func NewHandler(f forge.Forge, planner lm.Planner, analyzer repoanalyzer.Analyzer, instr *instructions.Loader, tasks task.Store, auditStore audit.Store, dispatcher JobDispatcher, clk clock.Clock) *Handler {
	return &Handler{
		Forge:        f,
		Planner:      planner,
		Analyzer:     analyzer,
		Instructions: instr,
		Tasks:        tasks,
		Audit:        auditStore,
		Dispatcher:   dispatcher,
		Clock:        clk,
	}
}

// Handle implements dispatcher.Handler for agentmodel.JobTypePlan, running spec §4.9's
// twelve-step algorithm. A context cancelled mid-flight is caught at the next suspension
// point and returned immediately; the dispatcher (not this handler) is responsible for
// recognizing ctx.Err() == context.Canceled and finalizing job status Cancelled rather
// than retrying.
func (h *Handler) Handle(ctx context.Context, job agentmodel.BackgroundJob) agentmodel.JobResult {
	var payload jobpayload.PlanJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return agentmodel.JobResult{Success: false, ShouldRetry: true, Error: fmt.Sprintf("planhandler: invalid payload: %v", err)}
	}

	if err := ctx.Err(); err != nil {
		return agentmodel.JobResult{Success: false, Error: err.Error()}
	}

	branch, err := h.Forge.CreateWorkingBranch(ctx, payload.Owner, payload.Repo, payload.IssueNumber)
	if err != nil {
		return h.retryable("create working branch", err)
	}

	prNumber, err := h.Forge.CreateDraftPullRequest(ctx, payload.Owner, payload.Repo, branch, payload.IssueNumber, payload.IssueTitle, payload.IssueBody)
	if err != nil {
		return h.retryable("create draft pull request", err)
	}

	repositorySummary, imageType := h.analyzeRepository(ctx, payload.Owner, payload.Repo)
	instructionsMarkdown := h.loadInstructions(ctx, payload.Owner, payload.Repo, payload.IssueNumber)

	t, err := h.Tasks.Get(ctx, payload.TaskID)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return agentmodel.JobResult{Success: false, ShouldRetry: false, Error: fmt.Sprintf("planhandler: task %s not found", payload.TaskID)}
		}
		return h.retryable("load task", err)
	}

	now := h.Clock.Now()
	if err := t.Transition(agentmodel.TaskPlanning, now); err != nil {
		return agentmodel.JobResult{Success: false, ShouldRetry: false, Error: err.Error()}
	}
	t.BranchName = branch
	t.PullRequestNumber = prNumber
	t.ImageType = imageType
	if err := h.Tasks.Update(ctx, t); err != nil {
		return h.retryable("persist planning transition", err)
	}

	if err := ctx.Err(); err != nil {
		h.cancelTask(t)
		return agentmodel.JobResult{Success: false, Error: err.Error()}
	}

	planStarted := h.Clock.Now()
	plan, err := h.Planner.CreatePlan(ctx, lm.PlanContext{
		TaskID:               payload.TaskID,
		Owner:                payload.Owner,
		Repo:                 payload.Repo,
		IssueNumber:          payload.IssueNumber,
		IssueTitle:           payload.IssueTitle,
		IssueBody:            payload.IssueBody,
		RepositorySummary:    repositorySummary,
		InstructionsMarkdown: instructionsMarkdown,
	})
	h.recordPlanGeneration(ctx, payload.TaskID, planStarted, err)
	if err != nil {
		return h.retryable("create plan", err)
	}
	if err := plan.Validate(); err != nil {
		return agentmodel.JobResult{Success: false, ShouldRetry: false, Error: fmt.Sprintf("planhandler: planner returned invalid plan: %v", err)}
	}

	t.Plan = plan
	if err := t.Transition(agentmodel.TaskPlanned, h.Clock.Now()); err != nil {
		return agentmodel.JobResult{Success: false, ShouldRetry: false, Error: err.Error()}
	}
	if err := h.Tasks.Update(ctx, t); err != nil {
		return h.retryable("persist planned transition", err)
	}

	description := renderPlanMarkdown(payload.IssueTitle, plan)
	if err := h.Forge.UpdatePullRequestDescription(ctx, payload.Owner, payload.Repo, prNumber, description); err != nil {
		return h.retryable("update pull request description", err)
	}

	executePayload, err := json.Marshal(jobpayload.ExecuteJob{TaskID: payload.TaskID})
	if err != nil {
		return h.retryable("marshal execute payload", err)
	}
	accepted, err := h.Dispatcher.Dispatch(ctx, agentmodel.BackgroundJob{
		ID:         uuid.NewString(),
		Type:       agentmodel.JobTypeExecute,
		Payload:    executePayload,
		Metadata:   map[string]string{"taskId": payload.TaskID},
		MaxRetries: job.MaxRetries,
	})
	if err != nil || !accepted {
		log.Printf("[WARN] planhandler: enqueueing execute job for task %s failed or was rejected: accepted=%v err=%v", payload.TaskID, accepted, err)
	}

	return agentmodel.JobResult{Success: true}
}

// retryable wraps a collaborator error as a retryable JobResult, logging the step name for
// operator visibility.
func (h *Handler) retryable(step string, err error) agentmodel.JobResult {
	return agentmodel.JobResult{Success: false, ShouldRetry: true, Error: fmt.Sprintf("planhandler: %s: %v", step, err)}
}

// cancelTask best-effort transitions t to Cancelled and persists it, per spec §5: "the
// worker converts a cancellation exit into job status Cancelled and task status Cancelled
// (if the task was Executing)" — generalized here to any non-terminal planning status.
// A persist failure is only logged: the job's own Cancelled status (set by the dispatcher
// from ctx.Err()) is the authoritative signal either way.
func (h *Handler) cancelTask(t agentmodel.AgentTask) {
	if err := t.Transition(agentmodel.TaskCancelled, h.Clock.Now()); err != nil {
		return
	}
	if err := h.Tasks.Update(context.Background(), t); err != nil {
		log.Printf("[WARN] planhandler: failed to persist Cancelled status for task %s: %v", t.ID, err)
	}
}

// analyzeRepository runs the best-effort repository analysis (spec §4.9 step 4; also
// feeds the Execute handler's image choice, spec §4.10 step 4): any error, including a
// nil Analyzer, degrades to an empty summary and empty image type (the Execute handler
// then falls back to sandbox.DefaultImageType) rather than failing the job.
func (h *Handler) analyzeRepository(ctx context.Context, owner, repo string) (summary, imageType string) {
	if h.Analyzer == nil {
		return "", ""
	}
	analysis, err := h.Analyzer.Analyze(ctx, owner, repo)
	if err != nil {
		log.Printf("[WARN] planhandler: repo analysis failed for %s/%s: %v", owner, repo, err)
		return "", ""
	}
	if analysis == nil {
		return "", ""
	}
	return analysis.Summary, string(analysis.ImageType)
}

// loadInstructions runs the best-effort instructions lookup (spec §4.9 step 5).
func (h *Handler) loadInstructions(ctx context.Context, owner, repo string, issue int) string {
	if h.Instructions == nil {
		return ""
	}
	content, err := h.Instructions.Load(ctx, owner, repo, issue)
	if err != nil {
		log.Printf("[WARN] planhandler: instructions load failed for %s/%s#%d: %v", owner, repo, issue, err)
		return ""
	}
	return content
}

// recordPlanGeneration appends a PlanGeneration audit entry regardless of outcome, per the
// scenario in spec §8 that expects exactly one such entry per plan attempt.
func (h *Handler) recordPlanGeneration(ctx context.Context, taskID string, startedAt time.Time, planErr error) {
	if h.Audit == nil {
		return
	}
	result := agentmodel.ResultSuccess
	errMsg := ""
	if planErr != nil {
		result = agentmodel.ResultFailure
		errMsg = planErr.Error()
	}
	entry := agentmodel.AuditLog{
		ID:            uuid.NewString(),
		EventType:     agentmodel.EventPlanGeneration,
		Timestamp:     h.Clock.Now(),
		CorrelationID: taskID,
		Initiator:     "planhandler",
		Target:        taskID,
		Description:   "plan generation",
		Result:        result,
		DurationMs:    h.Clock.Now().Sub(startedAt).Milliseconds(),
		Error:         errMsg,
	}
	if err := h.Audit.Store(ctx, entry); err != nil {
		log.Printf("[WARN] planhandler: failed to record audit entry for task %s: %v", taskID, err)
	}
}

// renderPlanMarkdown composes the PR body per spec §4.9 step 10: the title carries the
// WIP prefix, the body renders the plan's problem summary, checklist, and steps.
func renderPlanMarkdown(issueTitle string, plan *agentmodel.AgentPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n\n", wipPrefix, issueTitle)
	if plan.ProblemSummary != "" {
		fmt.Fprintf(&b, "%s\n\n", plan.ProblemSummary)
	}
	if len(plan.Checklist) > 0 {
		b.WriteString("## Checklist\n")
		for _, item := range plan.Checklist {
			fmt.Fprintf(&b, "- [ ] %s\n", item)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Plan\n")
	for _, step := range plan.Steps {
		marker := " "
		if step.Done {
			marker = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", marker, step.Title, step.Details)
	}
	return b.String()
}
