package sandbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/opencopilot/agentcore/internal/cmdrunner"
)

// ForgeHost is the git host used to build clone/push URLs. A future multi-forge build
// would make this configurable per task; every forge this module currently targets is
// github.com, so it's a package-level default rather than plumbed through every call.
const ForgeHost = "github.com"

// botUserName and botUserEmail identify commits this module makes on the user's behalf.
const (
	botUserName  = "RG.OpenCopilot[bot]"
	botUserEmail = "open-copilot-bot@users.noreply.github.com"
)

// buildToolProbes are the toolchains spec §4.2 requires Create to check for, never fail
// on. Order doesn't matter; all are probed independently.
var buildToolProbes = []string{"dotnet", "npm", "gradle", "mvn", "go", "cargo"}

// ExecResult is the outcome of a command run inside a sandbox.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Entry is one line of a directory listing from ListContents.
type Entry struct {
	Name  string
	IsDir bool
}

// GitStatusFailedError, GitCommitFailedError, and GitPushFailedError are CommitAndPush's
// distinct failure kinds (spec §4.2: "commit failure and push failure are distinct error
// kinds").
type GitStatusFailedError struct{ Detail string }

func (e *GitStatusFailedError) Error() string {
	return fmt.Sprintf("sandbox: git status failed: %s", e.Detail)
}

type GitCommitFailedError struct{ Detail string }

func (e *GitCommitFailedError) Error() string {
	return fmt.Sprintf("sandbox: git commit failed: %s", e.Detail)
}

type GitPushFailedError struct{ Detail string }

func (e *GitPushFailedError) Error() string {
	return fmt.Sprintf("sandbox: git push failed: %s", e.Detail)
}

// Manager is the Sandbox (Container) Manager (spec §4.2). It is a thin, stateless-per-call
// layer over a ContainerDriver: every public operation takes the containerId a prior
// Create returned, jails any path argument under the workspace root, and builds
// injection-safe shell scripts for file and git operations. The only state it keeps is a
// best-effort toolchain-availability record per container, recorded during Create.
//
// Grounded on internal/orchestrator/workers.go's WorkerManager, whose
// LaunchWorker/monitorWorker/cleanupWorker lifecycle this generalizes from "one worker
// container per orchestrator run" to "one sandbox container per agent task", and on
// internal/docker/labels.go for the container naming/labeling convention.
type Manager struct {
	driver ContainerDriver

	mu     sync.Mutex
	tools  map[string]map[string]bool
}

// NewManager returns a Manager backed by driver.
func NewManager(driver ContainerDriver) *Manager {
	return &Manager{
		driver: driver,
		tools:  make(map[string]map[string]bool),
	}
}

// Create launches a new sandbox container for (owner, repo), selecting imageType's image
// (DefaultImageType when imageType is the zero value), ensures git is present (installing
// it via apt if missing), records build-tool availability, and clones
// https://{token}@github.com/{owner}/{repo} at branch into the workspace root. On any
// failure after the container is up, the container is torn down before the error is
// returned.
func (m *Manager) Create(ctx context.Context, owner, repo, token, branch string, imageType ImageType) (containerID string, err error) {
	if imageType == "" {
		imageType = DefaultImageType
	}
	image, err := ResolveImage(imageType)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("agentcore-%s-%s-%s", owner, repo, uuid.NewString()[:8])
	containerID, err = m.driver.Run(ctx, RunSpec{
		Image: image,
		Name:  name,
		Labels: map[string]string{
			"com.opencopilot.owner":   owner,
			"com.opencopilot.repo":    repo,
			"com.opencopilot.managed": "true",
		},
	})
	if err != nil {
		return "", err
	}

	if err := m.ensureGit(ctx, containerID); err != nil {
		_ = m.Cleanup(ctx, containerID)
		return "", err
	}

	m.recordBuildTools(ctx, containerID)

	if err := m.cloneRepo(ctx, containerID, owner, repo, token, branch); err != nil {
		_ = m.Cleanup(ctx, containerID)
		return "", err
	}

	return containerID, nil
}

// ensureGit probes for a git binary and installs it via apt if absent. Every image in
// imageMap is Debian/bookworm-based, so apt-get is the one package manager this needs.
func (m *Manager) ensureGit(ctx context.Context, containerID string) error {
	probe, err := m.driver.Exec(ctx, containerID, "which", []string{"git"}, "")
	if err != nil {
		return fmt.Errorf("sandbox: operation failed: %w", err)
	}
	if probe.ExitCode == 0 {
		return nil
	}

	res, err := m.driver.Exec(ctx, containerID, "sh",
		[]string{"-c", "apt-get update && apt-get install -y git"}, "")
	if err != nil {
		return fmt.Errorf("sandbox: operation failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: operation failed: git install exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// recordBuildTools probes every entry in buildToolProbes and records its availability.
// Never fails container creation — probe errors are logged and recorded as unavailable.
func (m *Manager) recordBuildTools(ctx context.Context, containerID string) {
	avail := make(map[string]bool, len(buildToolProbes))
	for _, tool := range buildToolProbes {
		res, err := m.driver.Exec(ctx, containerID, "which", []string{tool}, "")
		if err != nil {
			log.Printf("sandbox: warning: failed to probe for %s: %v", tool, err)
			avail[tool] = false
			continue
		}
		avail[tool] = res.ExitCode == 0
	}

	m.mu.Lock()
	m.tools[containerID] = avail
	m.mu.Unlock()
}

// BuildTools returns the toolchain-availability record Create made for containerID, or nil
// if none exists (e.g. containerID was never returned by this Manager's Create).
func (m *Manager) BuildTools(containerID string) map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	avail := m.tools[containerID]
	if avail == nil {
		return nil
	}
	out := make(map[string]bool, len(avail))
	for k, v := range avail {
		out[k] = v
	}
	return out
}

func (m *Manager) cloneRepo(ctx context.Context, containerID, owner, repo, token, branch string) error {
	url := fmt.Sprintf("https://%s@%s/%s/%s", token, ForgeHost, owner, repo)
	script := fmt.Sprintf("git clone --branch %s %s %s", shQuote(branch), shQuote(url), shQuote(WorkspaceRoot))
	res, err := m.shellScript(ctx, containerID, script)
	if err != nil {
		return fmt.Errorf("sandbox: operation failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: operation failed: git clone exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// Execute runs program with argv inside containerID, rooted at the workspace directory.
// Does not error on a nonzero exit — check ExecResult.ExitCode.
func (m *Manager) Execute(ctx context.Context, containerID, program string, argv []string) (ExecResult, error) {
	res, err := m.driver.Exec(ctx, containerID, program, argv, "")
	if err != nil {
		return ExecResult{}, fmt.Errorf("sandbox: operation failed: %w", err)
	}
	return ExecResult{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}, nil
}

// shellScript runs an arbitrary shell script inside containerID via `sh -c`. Only this
// package's own operations build scripts to pass here, and each builds them from jailed
// paths plus shell-quoted literals — never from raw caller-provided strings.
func (m *Manager) shellScript(ctx context.Context, containerID, script string) (cmdrunner.Result, error) {
	return m.driver.Exec(ctx, containerID, "sh", []string{"-c", script}, "")
}

// shQuote wraps s in single quotes, escaping any embedded single quote as the four-char
// sequence '\'' (spec §4.2), so that s is safe to interpolate as one shell word regardless
// of its content.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ReadFile returns the contents of the file at relPath (jailed under the workspace root)
// inside containerID. Throws (returns an error) on nonzero exit.
func (m *Manager) ReadFile(ctx context.Context, containerID, relPath string) (string, error) {
	jailed, err := NormalizeAndJail(relPath)
	if err != nil {
		return "", err
	}
	res, err := m.shellScript(ctx, containerID, fmt.Sprintf("cat %s", shQuote(jailed)))
	if err != nil {
		return "", fmt.Errorf("sandbox: operation failed: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("sandbox: operation failed: read %s exited %d: %s", jailed, res.ExitCode, res.Stderr)
	}
	return res.Stdout, nil
}

// WriteFile writes content to relPath (jailed under the workspace root) inside
// containerID, creating parent directories as needed. Content is shipped base64-encoded
// over argv so arbitrary bytes (including embedded quotes and control characters)
// round-trip exactly — the injection-safe transfer spec §4.2 requires.
func (m *Manager) WriteFile(ctx context.Context, containerID, relPath, content string) error {
	jailed, err := NormalizeAndJail(relPath)
	if err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	script := fmt.Sprintf("mkdir -p %s && printf %%s %s | base64 -d > %s",
		shQuote(parentDir(jailed)), shQuote(encoded), shQuote(jailed))
	res, err := m.shellScript(ctx, containerID, script)
	if err != nil {
		return fmt.Errorf("sandbox: operation failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: operation failed: write %s exited %d: %s", jailed, res.ExitCode, res.Stderr)
	}
	return nil
}

// CreateDirectory creates relPath (jailed) and any missing parents inside containerID.
func (m *Manager) CreateDirectory(ctx context.Context, containerID, relPath string) error {
	jailed, err := NormalizeAndJail(relPath)
	if err != nil {
		return err
	}
	res, err := m.shellScript(ctx, containerID, fmt.Sprintf("mkdir -p %s", shQuote(jailed)))
	if err != nil {
		return fmt.Errorf("sandbox: operation failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: operation failed: mkdir %s exited %d: %s", jailed, res.ExitCode, res.Stderr)
	}
	return nil
}

// DirectoryExists reports whether relPath (jailed) is a directory inside containerID.
func (m *Manager) DirectoryExists(ctx context.Context, containerID, relPath string) (bool, error) {
	jailed, err := NormalizeAndJail(relPath)
	if err != nil {
		return false, err
	}
	res, err := m.shellScript(ctx, containerID, fmt.Sprintf("test -d %s", shQuote(jailed)))
	if err != nil {
		return false, fmt.Errorf("sandbox: operation failed: %w", err)
	}
	return res.ExitCode == 0, nil
}

// Move renames/moves src to dst (both jailed) inside containerID.
func (m *Manager) Move(ctx context.Context, containerID, src, dst string) error {
	return m.twoPathOp(ctx, containerID, "mv", src, dst)
}

// Copy copies src to dst (both jailed, recursively) inside containerID.
func (m *Manager) Copy(ctx context.Context, containerID, src, dst string) error {
	return m.twoPathOp(ctx, containerID, "cp -r", src, dst)
}

func (m *Manager) twoPathOp(ctx context.Context, containerID, verb, src, dst string) error {
	jailedSrc, err := NormalizeAndJail(src)
	if err != nil {
		return err
	}
	jailedDst, err := NormalizeAndJail(dst)
	if err != nil {
		return err
	}
	script := fmt.Sprintf("mkdir -p %s && %s %s %s", shQuote(parentDir(jailedDst)), verb, shQuote(jailedSrc), shQuote(jailedDst))
	res, err := m.shellScript(ctx, containerID, script)
	if err != nil {
		return fmt.Errorf("sandbox: operation failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: operation failed: %s %s -> %s exited %d: %s", verb, jailedSrc, jailedDst, res.ExitCode, res.Stderr)
	}
	return nil
}

// Delete removes relPath (jailed) inside containerID. recursive selects `rm -rf` over
// `rm -f`.
func (m *Manager) Delete(ctx context.Context, containerID, relPath string, recursive bool) error {
	jailed, err := NormalizeAndJail(relPath)
	if err != nil {
		return err
	}
	verb := "rm -f"
	if recursive {
		verb = "rm -rf"
	}
	res, err := m.shellScript(ctx, containerID, fmt.Sprintf("%s %s", verb, shQuote(jailed)))
	if err != nil {
		return fmt.Errorf("sandbox: operation failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: operation failed: rm %s exited %d: %s", jailed, res.ExitCode, res.Stderr)
	}
	return nil
}

// ListContents lists the immediate children of relPath (jailed) inside containerID.
func (m *Manager) ListContents(ctx context.Context, containerID, relPath string) ([]Entry, error) {
	jailed, err := NormalizeAndJail(relPath)
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf(`for f in %s/*; do if [ -d "$f" ]; then echo "d:$(basename "$f")"; else echo "f:$(basename "$f")"; fi; done`, shQuote(jailed))
	res, err := m.shellScript(ctx, containerID, script)
	if err != nil {
		return nil, fmt.Errorf("sandbox: operation failed: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("sandbox: operation failed: list %s exited %d: %s", jailed, res.ExitCode, res.Stderr)
	}
	return parseListing(res.Stdout), nil
}

func parseListing(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		isDir := strings.HasPrefix(line, "d:")
		name := strings.TrimPrefix(strings.TrimPrefix(line, "d:"), "f:")
		entries = append(entries, Entry{Name: name, IsDir: isDir})
	}
	return entries
}

// CommitAndPush configures a bot commit identity, rewrites origin to embed token, stages
// every change, and — only if `git status --porcelain` is non-empty — commits with
// message and pushes HEAD:branch. Returns whether a commit was made. GitStatusFailedError,
// GitCommitFailedError, and GitPushFailedError are distinct failure kinds per spec §4.2.
func (m *Manager) CommitAndPush(ctx context.Context, containerID, message, owner, repo, branch, token string) (committed bool, err error) {
	configure := fmt.Sprintf(
		"cd %s && git config user.name %s && git config user.email %s && git remote set-url origin %s && git add -A",
		shQuote(WorkspaceRoot), shQuote(botUserName), shQuote(botUserEmail),
		shQuote(fmt.Sprintf("https://%s@%s/%s/%s", token, ForgeHost, owner, repo)),
	)
	if res, err := m.shellScript(ctx, containerID, configure); err != nil {
		return false, &GitStatusFailedError{Detail: err.Error()}
	} else if res.ExitCode != 0 {
		return false, &GitStatusFailedError{Detail: res.Stderr}
	}

	status, err := m.shellScript(ctx, containerID, fmt.Sprintf("cd %s && git status --porcelain", shQuote(WorkspaceRoot)))
	if err != nil {
		return false, &GitStatusFailedError{Detail: err.Error()}
	}
	if status.ExitCode != 0 {
		return false, &GitStatusFailedError{Detail: status.Stderr}
	}
	if strings.TrimSpace(status.Stdout) == "" {
		return false, nil
	}

	commit, err := m.shellScript(ctx, containerID, fmt.Sprintf("cd %s && git commit -m %s", shQuote(WorkspaceRoot), shQuote(message)))
	if err != nil {
		return false, &GitCommitFailedError{Detail: err.Error()}
	}
	if commit.ExitCode != 0 {
		return false, &GitCommitFailedError{Detail: commit.Stderr}
	}

	push, err := m.shellScript(ctx, containerID, fmt.Sprintf("cd %s && git push origin HEAD:%s", shQuote(WorkspaceRoot), shQuote(branch)))
	if err != nil {
		return false, &GitPushFailedError{Detail: err.Error()}
	}
	if push.ExitCode != 0 {
		return false, &GitPushFailedError{Detail: push.Stderr}
	}

	return true, nil
}

// Cleanup stops then removes containerID, tolerating and logging partial failure but
// always attempting both (spec §4.2). Also drops any recorded build-tool availability.
func (m *Manager) Cleanup(ctx context.Context, containerID string) error {
	m.mu.Lock()
	delete(m.tools, containerID)
	m.mu.Unlock()

	var errs []string
	if err := m.driver.Stop(ctx, containerID); err != nil {
		log.Printf("sandbox: warning: stop failed for %s: %v", containerID, err)
		errs = append(errs, err.Error())
	}
	if err := m.driver.Remove(ctx, containerID); err != nil {
		log.Printf("sandbox: warning: remove failed for %s: %v", containerID, err)
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("sandbox: cleanup had %d failure(s): %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func parentDir(jailedPath string) string {
	idx := strings.LastIndex(jailedPath, "/")
	if idx <= 0 {
		return WorkspaceRoot
	}
	return jailedPath[:idx]
}
