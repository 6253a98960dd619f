// Package progress implements the Progress Reporter (spec §4.11): idempotent projection
// of plan-step progress onto pull request comments and the final PR body. Grounded on
// pkg/blackboard/client.go's PublishWorkflowEvent, whose in-memory map from a workflow run
// to its most recent published state is the model for this reporter's per-task
// comment-id cache — "idempotent projection of internal state to an external observable".
package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/opencopilot/agentcore/internal/forge"
	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// Reporter projects an AgentTask's progress onto its pull request.
type Reporter interface {
	// PostStepProgress posts or updates the task's progress comment to reflect step having
	// just completed. Idempotent: repeated calls for the same task update one comment in
	// place rather than appending a new one.
	PostStepProgress(ctx context.Context, task agentmodel.AgentTask, step agentmodel.PlanStep) error
	// FinalizePullRequest drops the WIP marker and renders the final plan/summary into the
	// PR body.
	FinalizePullRequest(ctx context.Context, task agentmodel.AgentTask) error
}

// ForgeReporter is the Reporter backed by a Forge. Persistence of the comment-id cache
// across restarts is optional per spec §4.11; this implementation keeps it in memory only
// — a restart simply starts a fresh progress comment on the next step, which is
// acceptable since comments are purely observational.
type ForgeReporter struct {
	forge forge.Forge

	mu        sync.Mutex
	commentID map[string]string // taskID -> forge comment id
}

// NewForgeReporter constructs a ForgeReporter backed by f.
func NewForgeReporter(f forge.Forge) *ForgeReporter {
	return &ForgeReporter{forge: f, commentID: make(map[string]string)}
}

func (r *ForgeReporter) PostStepProgress(ctx context.Context, task agentmodel.AgentTask, step agentmodel.PlanStep) error {
	body := renderProgressComment(task, step)

	r.mu.Lock()
	existing, ok := r.commentID[task.ID]
	r.mu.Unlock()

	if ok {
		if err := r.forge.UpdatePullRequestComment(ctx, task.Owner, task.Repo, existing, body); err != nil {
			return fmt.Errorf("progress: update comment: %w", err)
		}
		return nil
	}

	id, err := r.forge.PostPullRequestComment(ctx, task.Owner, task.Repo, task.PullRequestNumber, body)
	if err != nil {
		return fmt.Errorf("progress: post comment: %w", err)
	}
	r.mu.Lock()
	r.commentID[task.ID] = id
	r.mu.Unlock()
	return nil
}

func (r *ForgeReporter) FinalizePullRequest(ctx context.Context, task agentmodel.AgentTask) error {
	body := renderFinalDescription(task)
	if err := r.forge.UpdatePullRequestDescription(ctx, task.Owner, task.Repo, task.PullRequestNumber, body); err != nil {
		return fmt.Errorf("progress: finalize description: %w", err)
	}
	return nil
}

func renderProgressComment(task agentmodel.AgentTask, justCompleted agentmodel.PlanStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Progress\n\nJust completed: **%s**\n\n", justCompleted.Title)
	if task.Plan != nil {
		for _, s := range task.Plan.Steps {
			marker := " "
			if s.Done {
				marker = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", marker, s.Title)
		}
	}
	return b.String()
}

func renderFinalDescription(task agentmodel.AgentTask) string {
	var b strings.Builder
	title := task.ID
	if task.Plan != nil && task.Plan.ProblemSummary != "" {
		title = task.Plan.ProblemSummary
	}
	fmt.Fprintf(&b, "%s\n\n", title)
	if task.Plan != nil {
		b.WriteString("## Summary\n")
		for _, s := range task.Plan.Steps {
			fmt.Fprintf(&b, "- %s: %s\n", s.Title, s.Details)
		}
	}
	return b.String()
}
