// Package instructions implements the probing instructions-file loader used by the Plan
// job handler (spec §4.9 step 5): a best-effort lookup of repository-supplied guidance for
// the agent, tolerant of missing files and of transport errors on any individual probe.
package instructions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/opencopilot/agentcore/internal/forge"
)

// Loader probes, in order, ".github/open-copilot/{issue}.md",
// ".github/open-copilot/instructions.md", and ".github/open-copilot/README.md", returning
// the content of the first that exists and is non-empty.
type Loader struct {
	forge forge.Forge
}

// NewLoader constructs a Loader backed by f.
func NewLoader(f forge.Forge) *Loader {
	return &Loader{forge: f}
}

// Load returns the first non-empty instructions file found, or "" if none exist. A
// non-not-found transport error on one probe is logged and does not abort the remaining
// probes (spec §4.9 step 5); only context cancellation propagates as an error.
func (l *Loader) Load(ctx context.Context, owner, repo string, issue int) (string, error) {
	for _, path := range probePaths(issue) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		content, err := l.forge.RepositoryContents(ctx, owner, repo, path)
		if err != nil {
			if errors.Is(err, forge.ErrNotFound) {
				continue
			}
			log.Printf("[WARN] instructions: probe %s/%s/%s failed: %v", owner, repo, path, err)
			continue
		}

		if len(bytes.TrimSpace(content)) == 0 {
			continue
		}
		return string(content), nil
	}
	return "", nil
}

func probePaths(issue int) []string {
	return []string{
		fmt.Sprintf(".github/open-copilot/%d.md", issue),
		".github/open-copilot/instructions.md",
		".github/open-copilot/README.md",
	}
}
