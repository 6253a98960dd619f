// Package cmdrunner implements the Command Runner (spec §4.1): it spawns an external
// process with an explicit argv in a working directory, captures bounded stdout/stderr,
// and honors cancellation. It does not interpret argv — callers (the sandbox manager's
// CLI-based container driver, most notably) are responsible for building the right
// command line.
//
// Grounded on internal/cub/executor.go's executeToolSubprocess: a context-scoped
// exec.CommandContext, a stdin pipe closed after writing, and bounded output buffers so a
// runaway process can never exhaust memory.
package cmdrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"

	"github.com/docker/go-units"
)

// maxOutputBytes bounds how much of stdout/stderr is retained per stream. Matches the
// teacher's 10MB tool-output ceiling.
const maxOutputBytes = 10 * 1024 * 1024

// ErrNotLaunchable is returned when the program could not be started at all (not found,
// not executable, etc.) — distinct from "ran and exited non-zero".
var ErrNotLaunchable = errors.New("cmdrunner: program not launchable")

// ErrCancelled is returned when the context was cancelled before or during execution —
// distinct from both ErrNotLaunchable and a non-zero exit.
var ErrCancelled = errors.New("cmdrunner: execution cancelled")

// Result is the outcome of a completed process invocation. ExitCode is populated even on
// a non-zero exit; Execute does not treat a non-zero exit as an error.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner spawns external processes. The zero value is ready to use.
type Runner struct{}

// New returns a ready-to-use Runner.
func New() *Runner {
	return &Runner{}
}

// Execute runs program with argv in workingDir. Input, if non-empty, is written to the
// process's stdin and the pipe is then closed. Execute does not return an error for a
// non-zero exit code — check Result.ExitCode. It returns ErrNotLaunchable if the program
// could not be started, and ErrCancelled if ctx was done before the process exited.
func (r *Runner) Execute(ctx context.Context, workingDir, program string, argv []string, input string) (Result, error) {
	cmd := exec.CommandContext(ctx, program, argv...)
	cmd.Dir = workingDir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, limit: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxOutputBytes}

	var stdinPipe io.WriteCloser
	if input != "" {
		var err error
		stdinPipe, err = cmd.StdinPipe()
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrNotLaunchable, err)
		}
	}

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		return Result{}, fmt.Errorf("%w: %v", ErrNotLaunchable, err)
	}

	if stdinPipe != nil {
		go func() {
			defer stdinPipe.Close()
			io.WriteString(stdinPipe, input)
		}()
	}

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, fmt.Errorf("%w: %v", ErrNotLaunchable, waitErr)
		}
	}

	return Result{
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
	}, nil
}

// limitedWriter discards writes past limit but always reports the full length written,
// satisfying io.Writer while keeping memory bounded (mirrors cub/executor.go). It logs
// once, in human-readable units, the first time a stream is truncated — useful signal for
// an operator chasing a runaway step or clone without re-printing the warning on every
// subsequent write.
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int

	truncateOnce sync.Once
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.written
	if len(p) > remaining {
		lw.truncateOnce.Do(func() {
			log.Printf("[WARN] cmdrunner: output truncated at limit=%s", units.BytesSize(float64(lw.limit)))
		})
	}
	if remaining <= 0 {
		return len(p), nil
	}
	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
	}
	n, err := lw.w.Write(toWrite)
	lw.written += n
	return len(p), err
}
