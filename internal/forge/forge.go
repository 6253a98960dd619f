// Package forge declares the contract for the code-hosting collaborator. It is out of
// scope for this module (spec §1, §6): no concrete GitHub/GitLab/etc. client ships here,
// only the interface the job handlers (C9/C10) and progress reporter (C11) depend on, so a
// real adapter can be wired in without touching orchestration code.
package forge

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetPullRequest, GetPullRequestNumberForBranch, and
// RepositoryContents when the requested resource does not exist — distinct from a
// transport/network error, per spec §6's "raises a distinct 'not found' error vs transport
// error".
var ErrNotFound = errors.New("forge: not found")

// PullRequest is the subset of pull request state this module reads.
type PullRequest struct {
	Number int
	Title  string
	Body   string
	State  string
}

// Forge is the contract every job handler and the progress reporter depend on.
// Implementations must honor ctx cancellation on every call (spec §5: "every forge call"
// is a suspension point).
type Forge interface {
	// AcquireInstallationToken returns a short-lived token scoped to installationID,
	// used to authenticate the sandbox's git clone/push (spec §4.10 step 3).
	AcquireInstallationToken(ctx context.Context, installationID int64) (string, error)

	// CreateWorkingBranch creates (or returns the existing) branch for issue, defaulting
	// to "open-copilot/issue-{issue}" when the implementation has no stronger preference.
	CreateWorkingBranch(ctx context.Context, owner, repo string, issue int) (branchName string, err error)

	CreateDraftPullRequest(ctx context.Context, owner, repo, branch string, issue int, title, body string) (prNumber int, err error)

	UpdatePullRequestDescription(ctx context.Context, owner, repo string, prNumber int, body string) error

	// GetPullRequestNumberForBranch returns ErrNotFound if branch has no open pull request.
	GetPullRequestNumberForBranch(ctx context.Context, owner, repo, branch string) (prNumber int, err error)

	PostPullRequestComment(ctx context.Context, owner, repo string, prNumber int, body string) (commentID string, err error)

	// UpdatePullRequestComment overwrites the body of an existing comment, used by the
	// progress reporter (C11) to update a progress comment in place rather than append one
	// per step.
	UpdatePullRequestComment(ctx context.Context, owner, repo, commentID, body string) error

	// GetPullRequest returns ErrNotFound if prNumber does not exist.
	GetPullRequest(ctx context.Context, owner, repo string, prNumber int) (PullRequest, error)

	// RepositoryContents fetches file content at path. Returns ErrNotFound if path does
	// not exist in the repository; any other error is a transport failure.
	RepositoryContents(ctx context.Context, owner, repo, path string) ([]byte, error)
}
