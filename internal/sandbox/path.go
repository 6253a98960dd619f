// Package sandbox implements the Sandbox (Container) Manager (spec §4.2): lifecycle of an
// ephemeral container per task, with workspace-jailed file/VCS operations. path.go holds
// the path normalization and jailing invariants from spec §4.2's numbered list — done once,
// explicitly, at this boundary, per spec §9's design note on host-aware path separators.
package sandbox

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// WorkspaceRoot is the single constant directory under which all sandbox paths live.
const WorkspaceRoot = "/workspace"

// ErrEmptyPath is returned for empty or whitespace-only input paths.
var ErrEmptyPath = errors.New("sandbox: path is null or empty")

// PathEscapeError is returned when a resolved path would land outside WorkspaceRoot.
// It's typed (not a bare sentinel) because callers want the offending path in the message
// (spec §8: the error message must contain "outside the workspace directory").
type PathEscapeError struct {
	Input    string
	Resolved string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("sandbox: path %q resolves to %q, outside the workspace directory", e.Input, e.Resolved)
}

// IsPathEscape reports whether err is (or wraps) a PathEscapeError.
func IsPathEscape(err error) bool {
	var pe *PathEscapeError
	return errors.As(err, &pe)
}

// NormalizeAndJail implements spec §4.2's path invariants in order:
//  1. backslashes -> forward slashes (host may be Windows)
//  2. reject empty/whitespace-only input
//  3. strip leading slashes, join under WorkspaceRoot
//  4. lexically resolve . / .. and confirm the result starts with WorkspaceRoot
//     (equal to WorkspaceRoot itself is permitted)
//
// The returned string is always forward-slash, rooted at WorkspaceRoot, and safe to
// interpolate into a shell command run inside the sandbox.
func NormalizeAndJail(input string) (string, error) {
	slashed := strings.ReplaceAll(input, `\`, "/")

	if strings.TrimSpace(slashed) == "" {
		return "", ErrEmptyPath
	}

	trimmed := strings.TrimLeft(slashed, "/")
	joined := path.Join(WorkspaceRoot, trimmed)

	// path.Join already lexically cleans (resolves "." and "..") the joined result.
	resolved := path.Clean(joined)

	if resolved != WorkspaceRoot && !strings.HasPrefix(resolved, WorkspaceRoot+"/") {
		return "", &PathEscapeError{Input: input, Resolved: resolved}
	}

	return resolved, nil
}
