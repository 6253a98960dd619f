// Package repoanalyzer implements the best-effort repository analysis the Plan job
// handler consults before calling the planner (spec §4.9 step 4) and the Execute handler
// consults when choosing a sandbox image (spec §4.10 step 4): "on error, log and continue
// with null summary." The detection strategy here — probing for a handful of well-known
// manifest files — mirrors internal/instructions's probe-in-order idiom.
package repoanalyzer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/opencopilot/agentcore/internal/forge"
	"github.com/opencopilot/agentcore/internal/sandbox"
)

// Analysis is the best-effort summary produced for one repository.
type Analysis struct {
	Summary   string
	ImageType sandbox.ImageType
}

// Analyzer inspects a repository and reports a summary and a recommended sandbox image
// type. A nil Analysis with a nil error means no signal was found; callers proceed with a
// null summary and the default image type.
type Analyzer interface {
	Analyze(ctx context.Context, owner, repo string) (*Analysis, error)
}

type marker struct {
	path      string
	imageType sandbox.ImageType
	label     string
}

// markers is checked in order; the first manifest file found in the repository wins.
var markers = []marker{
	{"go.mod", sandbox.ImageGo, "Go module"},
	{"package.json", sandbox.ImageJavaScript, "Node.js/JavaScript project"},
	{"Cargo.toml", sandbox.ImageRust, "Rust crate"},
	{"pom.xml", sandbox.ImageJava, "Java (Maven) project"},
	{"build.gradle", sandbox.ImageJava, "Java (Gradle) project"},
}

// SimpleAnalyzer is a manifest-file-probing Analyzer backed by the forge's repository
// contents API.
type SimpleAnalyzer struct {
	forge forge.Forge
}

// NewSimpleAnalyzer constructs a SimpleAnalyzer backed by f.
func NewSimpleAnalyzer(f forge.Forge) *SimpleAnalyzer {
	return &SimpleAnalyzer{forge: f}
}

func (a *SimpleAnalyzer) Analyze(ctx context.Context, owner, repo string) (*Analysis, error) {
	for _, m := range markers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if _, err := a.forge.RepositoryContents(ctx, owner, repo, m.path); err != nil {
			if !errors.Is(err, forge.ErrNotFound) {
				log.Printf("[WARN] repoanalyzer: probe %s/%s/%s failed: %v", owner, repo, m.path, err)
			}
			continue
		}

		return &Analysis{
			Summary:   fmt.Sprintf("Detected %s (found %s).", m.label, m.path),
			ImageType: m.imageType,
		}, nil
	}
	return nil, nil
}
