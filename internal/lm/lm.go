// Package lm declares the contract for the language-model collaborators. Out of scope for
// this module (spec §1, §6): no concrete OpenAI/Azure client ships here, only the
// interfaces the Plan and Execute job handlers depend on.
package lm

import (
	"context"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// PlanContext is everything the planner needs to produce an AgentPlan (spec §4.9 step 8).
type PlanContext struct {
	TaskID              string
	Owner               string
	Repo                string
	IssueNumber         int
	IssueTitle          string
	IssueBody           string
	RepositorySummary   string // empty when repo analysis was unavailable or failed
	InstructionsMarkdown string // empty when no instructions file was found
}

// Planner produces an AgentPlan from an issue and its surrounding context.
type Planner interface {
	CreatePlan(ctx context.Context, pc PlanContext) (*agentmodel.AgentPlan, error)
}

// CodeChangeRequest is everything the executor needs to generate code for one plan step.
type CodeChangeRequest struct {
	TaskID      string
	Step        agentmodel.PlanStep
	Constraints []string
	FilePath    string
}

// Executor generates code for one step, given the existing content of the file being
// changed (empty when the file is new).
type Executor interface {
	GenerateCode(ctx context.Context, request CodeChangeRequest, existingCode string) (string, error)
}
