// Package agentmodel holds the domain types shared across the dispatcher, the job
// handlers, and the stores: AgentTask/AgentPlan, BackgroundJob/BackgroundJobStatusInfo,
// AuditLog, and JobResult. Keeping them in one importable package (rather than scattered
// across internal/task, internal/jobstatus, internal/audit) mirrors the teacher's
// pkg/blackboard, which plays the same "shared wire/storage types" role for the cub,
// orchestrator, and pup binaries.
package agentmodel

import (
	"fmt"
	"time"
)

// AgentTaskStatus is the lifecycle state of an AgentTask. See ValidTaskTransition for the
// legal transition table.
type AgentTaskStatus string

const (
	TaskPendingPlanning AgentTaskStatus = "PendingPlanning"
	TaskPlanning        AgentTaskStatus = "Planning"
	TaskPlanned         AgentTaskStatus = "Planned"
	TaskExecuting       AgentTaskStatus = "Executing"
	TaskCompleted       AgentTaskStatus = "Completed"
	TaskFailed          AgentTaskStatus = "Failed"
	TaskCancelled       AgentTaskStatus = "Cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s AgentTaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// legalTaskTransitions enumerates every (prev, next) pair allowed by spec §3. A task
// never regresses to an earlier status; any non-terminal status may go to Cancelled or
// Failed from anywhere in the pipeline (e.g. a Planning task can fail if the LM call
// errors out before a plan is even produced).
var legalTaskTransitions = map[AgentTaskStatus]map[AgentTaskStatus]bool{
	TaskPendingPlanning: {TaskPlanning: true, TaskFailed: true, TaskCancelled: true},
	TaskPlanning:        {TaskPlanned: true, TaskFailed: true, TaskCancelled: true},
	TaskPlanned:         {TaskExecuting: true, TaskFailed: true, TaskCancelled: true},
	TaskExecuting:       {TaskCompleted: true, TaskFailed: true, TaskCancelled: true},
}

// ValidTaskTransition reports whether moving from prev to next is legal per spec §3.
func ValidTaskTransition(prev, next AgentTaskStatus) bool {
	if prev == next {
		return false
	}
	next2, ok := legalTaskTransitions[prev]
	if !ok {
		return false
	}
	return next2[next]
}

// PlanStep is a single modification described in prose, executed in the sandbox.
type PlanStep struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Details string `json:"details"`
	Done    bool   `json:"done"`
}

// AgentPlan is an ordered sequence of PlanSteps the agent intends to perform, owned by
// an AgentTask. Step ids must be unique within a plan and step order is stable (it is
// never sorted or re-ordered after CreatePlan returns it).
type AgentPlan struct {
	ProblemSummary string     `json:"problem_summary"`
	Steps          []PlanStep `json:"steps"`
	Checklist      []string   `json:"checklist"`
	Constraints    []string   `json:"constraints"`
}

// Validate checks the unique-step-id invariant from spec §3.
func (p *AgentPlan) Validate() error {
	if p == nil {
		return nil
	}
	seen := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("plan step has empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate plan step id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// AllStepsDone reports whether every step in the plan is marked done.
func (p *AgentPlan) AllStepsDone() bool {
	if p == nil {
		return true
	}
	for _, s := range p.Steps {
		if !s.Done {
			return false
		}
	}
	return true
}

// AgentTask is one per (owner, repo, issue). Identity is TaskID(owner, repo, issue).
type AgentTask struct {
	ID               string
	Owner            string
	Repo             string
	IssueNumber      int
	InstallationID   int64
	Status           AgentTaskStatus
	Plan             *AgentPlan
	PullRequestNumber int
	BranchName       string
	// ImageType is the sandbox image suggested by repository analysis during planning
	// (spec §4.10 step 4); empty means the Execute handler falls back to
	// sandbox.DefaultImageType. Stored as a plain string rather than sandbox.ImageType so
	// this package stays independent of the sandbox package.
	ImageType        string
	LastError        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// TaskID computes the canonical identity string for a task: "{owner}/{repo}/issues/{issue}".
func TaskID(owner, repo string, issue int) string {
	return fmt.Sprintf("%s/%s/issues/%d", owner, repo, issue)
}

// Transition mutates t.Status to next if the move is legal, updating UpdatedAt (and
// CompletedAt, when entering a terminal state) in the same call. Returns an error
// without mutating the task if the transition is illegal.
func (t *AgentTask) Transition(next AgentTaskStatus, now time.Time) error {
	if !ValidTaskTransition(t.Status, next) {
		return fmt.Errorf("illegal task transition %s -> %s", t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = now
	if next.IsTerminal() {
		t.CompletedAt = &now
	}
	return nil
}
