package sandbox

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencopilot/agentcore/internal/cmdrunner"
)

// execCall records one Exec invocation made against the fake driver.
type execCall struct {
	ContainerID string
	Program     string
	Argv        []string
	Input       string
}

// fakeDriver is an in-memory ContainerDriver used to verify the exact commands Manager
// builds without ever shelling out to a real docker binary.
type fakeDriver struct {
	mu sync.Mutex

	runSpecs  []RunSpec
	execCalls []execCall
	stopped   []string
	removed   []string

	runErr error
	// execFn, when set, decides each Exec's result. It is called while holding no lock,
	// so test handlers may safely track their own call counters.
	execFn func(call execCall) (cmdrunner.Result, error)
}

func (f *fakeDriver) Run(ctx context.Context, spec RunSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runSpecs = append(f.runSpecs, spec)
	if f.runErr != nil {
		return "", f.runErr
	}
	return "fake-container-id", nil
}

func (f *fakeDriver) Exec(ctx context.Context, containerID, program string, argv []string, input string) (cmdrunner.Result, error) {
	call := execCall{ContainerID: containerID, Program: program, Argv: append([]string(nil), argv...), Input: input}
	f.mu.Lock()
	f.execCalls = append(f.execCalls, call)
	fn := f.execFn
	f.mu.Unlock()

	if fn != nil {
		return fn(call)
	}
	return cmdrunner.Result{ExitCode: 0}, nil
}

func (f *fakeDriver) Stop(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, containerID)
	return nil
}

func (f *fakeDriver) Remove(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, containerID)
	return nil
}

func (f *fakeDriver) lastScript() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	last := f.execCalls[len(f.execCalls)-1]
	if last.Program != "sh" || len(last.Argv) < 2 {
		return ""
	}
	return last.Argv[1]
}

// alwaysOK reports git and every build tool as present, so Create's provisioning steps
// (ensureGit probe, build-tool probes, clone) all succeed without special-casing.
func alwaysOK(call execCall) (cmdrunner.Result, error) {
	return cmdrunner.Result{ExitCode: 0}, nil
}

func TestManager_Create_UsesResolvedImageAndLabels(t *testing.T) {
	f := &fakeDriver{execFn: alwaysOK}
	m := NewManager(f)

	id, err := m.Create(context.Background(), "acme", "widgets", "tok", "feature/x", ImageGo)
	require.NoError(t, err)
	assert.Equal(t, "fake-container-id", id)
	require.Len(t, f.runSpecs, 1)
	assert.Equal(t, "golang:1.22-bookworm", f.runSpecs[0].Image)
	assert.Equal(t, "acme", f.runSpecs[0].Labels["com.opencopilot.owner"])
	assert.Equal(t, "widgets", f.runSpecs[0].Labels["com.opencopilot.repo"])
}

func TestManager_Create_DefaultImageType(t *testing.T) {
	f := &fakeDriver{execFn: alwaysOK}
	m := NewManager(f)

	_, err := m.Create(context.Background(), "acme", "widgets", "tok", "main", "")
	require.NoError(t, err)
	assert.Equal(t, "mcr.microsoft.com/dotnet/sdk:10.0", f.runSpecs[0].Image)
}

func TestManager_Create_UnknownImageType(t *testing.T) {
	f := &fakeDriver{execFn: alwaysOK}
	m := NewManager(f)

	_, err := m.Create(context.Background(), "acme", "widgets", "tok", "main", ImageType("Cobol"))
	require.Error(t, err)
	var target *ErrUnknownImageType
	assert.ErrorAs(t, err, &target)
	assert.Empty(t, f.runSpecs, "container must never be launched for a rejected image type")
}

func TestManager_Create_InstallsGitWhenAbsent(t *testing.T) {
	f := &fakeDriver{execFn: func(call execCall) (cmdrunner.Result, error) {
		if call.Program == "which" && len(call.Argv) > 0 && call.Argv[0] == "git" {
			return cmdrunner.Result{ExitCode: 1}, nil
		}
		return cmdrunner.Result{ExitCode: 0}, nil
	}}
	m := NewManager(f)

	_, err := m.Create(context.Background(), "acme", "widgets", "tok", "main", ImageGo)
	require.NoError(t, err)

	var sawInstall bool
	for _, c := range f.execCalls {
		if c.Program == "sh" && len(c.Argv) > 1 && strings.Contains(c.Argv[1], "apt-get install -y git") {
			sawInstall = true
		}
	}
	assert.True(t, sawInstall, "missing git must trigger an apt-get install")
}

func TestManager_Create_SkipsGitInstallWhenPresent(t *testing.T) {
	f := &fakeDriver{execFn: alwaysOK}
	m := NewManager(f)

	_, err := m.Create(context.Background(), "acme", "widgets", "tok", "main", ImageGo)
	require.NoError(t, err)

	for _, c := range f.execCalls {
		assert.False(t, c.Program == "sh" && len(c.Argv) > 1 && strings.Contains(c.Argv[1], "apt-get"))
	}
}

func TestManager_Create_RecordsBuildToolAvailability(t *testing.T) {
	f := &fakeDriver{execFn: func(call execCall) (cmdrunner.Result, error) {
		if call.Program == "which" && len(call.Argv) > 0 && call.Argv[0] == "cargo" {
			return cmdrunner.Result{ExitCode: 1}, nil
		}
		return cmdrunner.Result{ExitCode: 0}, nil
	}}
	m := NewManager(f)

	id, err := m.Create(context.Background(), "acme", "widgets", "tok", "main", ImageGo)
	require.NoError(t, err)

	tools := m.BuildTools(id)
	require.NotNil(t, tools)
	assert.True(t, tools["go"])
	assert.False(t, tools["cargo"])
}

func TestManager_Create_ClonesRepoAtBranch(t *testing.T) {
	f := &fakeDriver{execFn: alwaysOK}
	m := NewManager(f)

	_, err := m.Create(context.Background(), "acme", "widgets", "sekrit-token", "release/9", ImageGo)
	require.NoError(t, err)

	var cloneScript string
	for _, c := range f.execCalls {
		if c.Program == "sh" && len(c.Argv) > 1 && strings.Contains(c.Argv[1], "git clone") {
			cloneScript = c.Argv[1]
		}
	}
	require.NotEmpty(t, cloneScript)
	assert.Contains(t, cloneScript, "sekrit-token@github.com/acme/widgets")
	assert.Contains(t, cloneScript, "release/9")
}

func TestManager_Create_TearsDownContainerOnCloneFailure(t *testing.T) {
	f := &fakeDriver{execFn: func(call execCall) (cmdrunner.Result, error) {
		if call.Program == "sh" && len(call.Argv) > 1 && strings.Contains(call.Argv[1], "git clone") {
			return cmdrunner.Result{ExitCode: 128, Stderr: "repository not found"}, nil
		}
		return cmdrunner.Result{ExitCode: 0}, nil
	}}
	m := NewManager(f)

	_, err := m.Create(context.Background(), "acme", "widgets", "tok", "main", ImageGo)
	require.Error(t, err)
	assert.Len(t, f.stopped, 1)
	assert.Len(t, f.removed, 1)
}

func TestManager_ReadFile_PathJailed(t *testing.T) {
	f := &fakeDriver{execFn: alwaysOK}
	m := NewManager(f)

	_, err := m.ReadFile(context.Background(), "container-1", "../../etc/passwd")
	require.Error(t, err)
	assert.True(t, IsPathEscape(err))
}

func TestManager_WriteFile_BuildsSafeShellScript(t *testing.T) {
	f := &fakeDriver{execFn: alwaysOK}
	m := NewManager(f)

	err := m.WriteFile(context.Background(), "container-1", "src/f.txt", "it's a 'quoted' value\nwith a newline")
	require.NoError(t, err)

	script := f.lastScript()
	assert.Contains(t, script, "/workspace/src")
	assert.Contains(t, script, "base64 -d")
	assert.NotContains(t, script, "it's a 'quoted'", "raw content must never appear unescaped in the script")
}

func TestManager_ListContents_ParsesEntries(t *testing.T) {
	f := &fakeDriver{execFn: func(call execCall) (cmdrunner.Result, error) {
		return cmdrunner.Result{ExitCode: 0, Stdout: "d:sub\nf:file.txt\n"}, nil
	}}
	m := NewManager(f)

	entries, err := m.ListContents(context.Background(), "container-1", "src")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Name: "sub", IsDir: true}, entries[0])
	assert.Equal(t, Entry{Name: "file.txt", IsDir: false}, entries[1])
}

func TestManager_Delete_RecursiveFlagSelectsVerb(t *testing.T) {
	f := &fakeDriver{execFn: alwaysOK}
	m := NewManager(f)

	require.NoError(t, m.Delete(context.Background(), "container-1", "build", true))
	assert.Contains(t, f.lastScript(), "rm -rf")

	require.NoError(t, m.Delete(context.Background(), "container-1", "f.txt", false))
	assert.Contains(t, f.lastScript(), "rm -f ")
	assert.NotContains(t, f.lastScript(), "rm -rf")
}

func TestManager_CommitAndPush_NoOpWhenClean(t *testing.T) {
	f := &fakeDriver{execFn: func(call execCall) (cmdrunner.Result, error) {
		if len(call.Argv) > 1 && strings.Contains(call.Argv[1], "git status") {
			return cmdrunner.Result{ExitCode: 0, Stdout: ""}, nil
		}
		return cmdrunner.Result{ExitCode: 0}, nil
	}}
	m := NewManager(f)

	committed, err := m.CommitAndPush(context.Background(), "container-1", "message", "acme", "widgets", "feature/x", "tok")
	require.NoError(t, err)
	assert.False(t, committed)

	for _, c := range f.execCalls {
		assert.NotContains(t, strings.Join(c.Argv, " "), "git commit")
		assert.NotContains(t, strings.Join(c.Argv, " "), "git push")
	}
}

func TestManager_CommitAndPush_CommitsAndPushesWhenDirty(t *testing.T) {
	f := &fakeDriver{execFn: func(call execCall) (cmdrunner.Result, error) {
		if len(call.Argv) > 1 && strings.Contains(call.Argv[1], "git status") {
			return cmdrunner.Result{ExitCode: 0, Stdout: " M file.txt\n"}, nil
		}
		return cmdrunner.Result{ExitCode: 0}, nil
	}}
	m := NewManager(f)

	committed, err := m.CommitAndPush(context.Background(), "container-1", "fix: things", "acme", "widgets", "feature/x", "sekrit")
	require.NoError(t, err)
	assert.True(t, committed)

	var sawCommit, sawPush, sawRemoteRewrite bool
	for _, c := range f.execCalls {
		if len(c.Argv) < 2 {
			continue
		}
		if strings.Contains(c.Argv[1], "git commit -m 'fix: things'") {
			sawCommit = true
		}
		if strings.Contains(c.Argv[1], "git push origin HEAD:'feature/x'") {
			sawPush = true
		}
		if strings.Contains(c.Argv[1], "sekrit@github.com/acme/widgets") {
			sawRemoteRewrite = true
		}
	}
	assert.True(t, sawCommit)
	assert.True(t, sawPush)
	assert.True(t, sawRemoteRewrite)
}

func TestManager_CommitAndPush_DistinctErrorKinds(t *testing.T) {
	statusFails := &fakeDriver{execFn: func(call execCall) (cmdrunner.Result, error) {
		if len(call.Argv) > 1 && strings.Contains(call.Argv[1], "git status") {
			return cmdrunner.Result{ExitCode: 1, Stderr: "not a git repo"}, nil
		}
		return cmdrunner.Result{ExitCode: 0}, nil
	}}
	_, err := NewManager(statusFails).CommitAndPush(context.Background(), "c1", "m", "o", "r", "b", "t")
	var statusErr *GitStatusFailedError
	assert.ErrorAs(t, err, &statusErr)

	commitFails := &fakeDriver{execFn: func(call execCall) (cmdrunner.Result, error) {
		switch {
		case len(call.Argv) > 1 && strings.Contains(call.Argv[1], "git status"):
			return cmdrunner.Result{ExitCode: 0, Stdout: "M f\n"}, nil
		case len(call.Argv) > 1 && strings.Contains(call.Argv[1], "git commit"):
			return cmdrunner.Result{ExitCode: 1, Stderr: "nothing to commit"}, nil
		default:
			return cmdrunner.Result{ExitCode: 0}, nil
		}
	}}
	_, err = NewManager(commitFails).CommitAndPush(context.Background(), "c1", "m", "o", "r", "b", "t")
	var commitErr *GitCommitFailedError
	assert.ErrorAs(t, err, &commitErr)

	pushFails := &fakeDriver{execFn: func(call execCall) (cmdrunner.Result, error) {
		switch {
		case len(call.Argv) > 1 && strings.Contains(call.Argv[1], "git status"):
			return cmdrunner.Result{ExitCode: 0, Stdout: "M f\n"}, nil
		case len(call.Argv) > 1 && strings.Contains(call.Argv[1], "git push"):
			return cmdrunner.Result{ExitCode: 1, Stderr: "remote rejected"}, nil
		default:
			return cmdrunner.Result{ExitCode: 0}, nil
		}
	}}
	_, err = NewManager(pushFails).CommitAndPush(context.Background(), "c1", "m", "o", "r", "b", "t")
	var pushErr *GitPushFailedError
	assert.ErrorAs(t, err, &pushErr)
}

func TestManager_Cleanup_StopsAndRemoves(t *testing.T) {
	f := &fakeDriver{execFn: alwaysOK}
	m := NewManager(f)

	require.NoError(t, m.Cleanup(context.Background(), "container-1"))
	assert.Equal(t, []string{"container-1"}, f.stopped)
	assert.Equal(t, []string{"container-1"}, f.removed)
}
