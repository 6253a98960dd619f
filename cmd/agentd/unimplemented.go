package main

import (
	"context"
	"errors"

	"github.com/opencopilot/agentcore/internal/fileeditor"
	"github.com/opencopilot/agentcore/internal/forge"
	"github.com/opencopilot/agentcore/internal/lm"
	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// errAdapterNotConfigured is returned by every method of the stand-ins below. The forge,
// LM, and file-editor adapters are explicitly out of scope for this module (spec §1: "the
// LM client itself", "the forge...client adapters" are named collaborators with interfaces
// only) — a real deployment supplies concrete implementations of forge.Forge, lm.Planner,
// lm.Executor, and fileeditor.FileEditor at this exact composition point. These stand-ins
// exist only so `agentd` links and starts; every call fails loudly rather than
// silently fabricating GitHub or LM behavior.
var errAdapterNotConfigured = errors.New("agentd: no concrete adapter configured for this out-of-scope collaborator (see cmd/agentd/unimplemented.go)")

type unconfiguredForge struct{}

func (unconfiguredForge) AcquireInstallationToken(context.Context, int64) (string, error) {
	return "", errAdapterNotConfigured
}
func (unconfiguredForge) CreateWorkingBranch(context.Context, string, string, int) (string, error) {
	return "", errAdapterNotConfigured
}
func (unconfiguredForge) CreateDraftPullRequest(context.Context, string, string, string, int, string, string) (int, error) {
	return 0, errAdapterNotConfigured
}
func (unconfiguredForge) UpdatePullRequestDescription(context.Context, string, string, int, string) error {
	return errAdapterNotConfigured
}
func (unconfiguredForge) GetPullRequestNumberForBranch(context.Context, string, string, string) (int, error) {
	return 0, errAdapterNotConfigured
}
func (unconfiguredForge) PostPullRequestComment(context.Context, string, string, int, string) (string, error) {
	return "", errAdapterNotConfigured
}
func (unconfiguredForge) UpdatePullRequestComment(context.Context, string, string, string, string) error {
	return errAdapterNotConfigured
}
func (unconfiguredForge) GetPullRequest(context.Context, string, string, int) (forge.PullRequest, error) {
	return forge.PullRequest{}, errAdapterNotConfigured
}
func (unconfiguredForge) RepositoryContents(context.Context, string, string, string) ([]byte, error) {
	return nil, errAdapterNotConfigured
}

type unconfiguredPlanner struct{}

func (unconfiguredPlanner) CreatePlan(context.Context, lm.PlanContext) (*agentmodel.AgentPlan, error) {
	return nil, errAdapterNotConfigured
}

type unconfiguredExecutor struct{}

func (unconfiguredExecutor) GenerateCode(context.Context, lm.CodeChangeRequest, string) (string, error) {
	return "", errAdapterNotConfigured
}

type unconfiguredFileEditor struct{}

func (unconfiguredFileEditor) Edit(context.Context, string, agentmodel.PlanStep, fileeditor.StepContext) (fileeditor.EditResult, error) {
	return fileeditor.EditResult{}, errAdapterNotConfigured
}
