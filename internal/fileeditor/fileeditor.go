// Package fileeditor declares the contract for the LM-driven code-editing collaborator
// invoked by the Execute job handler (spec §4.10 step 5a): "out-of-scope contract; it
// takes (containerId, step, context) and either writes files inside the sandbox via C2 or
// raises." The concrete editing strategy (how a plan step maps to file paths and prompts
// sent to the Executor LM) is left to the implementation; this module only fixes the
// boundary the Execute handler calls through.
package fileeditor

import (
	"context"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// StepContext carries the surrounding plan/task information a FileEditor implementation
// may need to decide what to change and how, mirroring contract.go's ToolInput shape
// (target-of-work plus ancestor context) generalized from "artefact + context chain" to
// "plan step + task context".
type StepContext struct {
	TaskID            string
	ProblemSummary    string
	Constraints       []string
	RepositorySummary string
}

// EditResult is what a FileEditor reports back for one Edit call. NeedsRecheck signals
// that the editor applied a quality-tool-driven fix (e.g. a linter auto-fix) during this
// pass and wants its own output re-verified before the step is marked done — spec §9's
// Open Question on whether auto-fixed issues re-trigger linting, resolved by SPEC_FULL.md
// §12 as a bounded fix/recheck loop owned by the Execute handler rather than the editor
// looping internally.
type EditResult struct {
	NeedsRecheck bool
}

// FileEditor applies one plan step's changes inside an already-provisioned sandbox
// container. Implementations must write through the Sandbox Manager (C2) so every file
// mutation goes through the same path-jailing and shell-injection-safe transfer the rest
// of this module relies on.
type FileEditor interface {
	Edit(ctx context.Context, containerID string, step agentmodel.PlanStep, stepContext StepContext) (EditResult, error)
}
