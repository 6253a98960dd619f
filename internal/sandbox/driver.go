package sandbox

import (
	"context"
	"fmt"
	"sort"

	"github.com/opencopilot/agentcore/internal/cmdrunner"
)

// RunSpec describes a container to start. It intentionally mirrors only the fields this
// module needs (image, name, labels, env) — not a general container-spec type.
type RunSpec struct {
	Image string
	Name  string
	Env   []string
	Labels map[string]string
}

// ContainerDriver is the spec §6 "sandbox driver...command-line driver with run, exec,
// stop, rm verbs" contract. It is deliberately out of scope for this spec beyond this
// interface; the concrete image-pull layer belongs to whatever backs the driver.
type ContainerDriver interface {
	// Run starts a detached, long-lived container from spec and returns its id.
	Run(ctx context.Context, spec RunSpec) (containerID string, err error)
	// Exec runs program with argv inside containerID's workdir, optionally feeding input
	// to stdin. Does not error on non-zero exit — see cmdrunner.Result.
	Exec(ctx context.Context, containerID, program string, argv []string, input string) (cmdrunner.Result, error)
	// Stop stops the container (SIGTERM then SIGKILL per the driver's own timeout).
	Stop(ctx context.Context, containerID string) error
	// Remove deletes the (stopped) container.
	Remove(ctx context.Context, containerID string) error
}

// CLIDriver implements ContainerDriver by shelling out to the `docker` binary via
// cmdrunner, so that every testable property in spec §8 phrased as "the command contains
// X" is checking literal argv this driver built — not an opaque SDK call. Grounded on the
// "sandbox driver" contract boundary in spec §6 and on the teacher's CLI-flavored
// process-invocation style throughout internal/cub and internal/git.
type CLIDriver struct {
	runner *cmdrunner.Runner
	binary string // defaults to "docker"; overridable for nerdctl/podman-compatible drivers
}

// NewCLIDriver returns a CLIDriver that shells out to binary (use "" for the default,
// "docker").
func NewCLIDriver(runner *cmdrunner.Runner, binary string) *CLIDriver {
	if binary == "" {
		binary = "docker"
	}
	return &CLIDriver{runner: runner, binary: binary}
}

func (d *CLIDriver) Run(ctx context.Context, spec RunSpec) (string, error) {
	argv := []string{"run", "-d", "--workdir", WorkspaceRoot}
	if spec.Name != "" {
		argv = append(argv, "--name", spec.Name)
	}
	for _, kv := range sortedLabelArgs(spec.Labels) {
		argv = append(argv, "--label", kv)
	}
	for _, e := range spec.Env {
		argv = append(argv, "--env", e)
	}
	argv = append(argv, spec.Image, "sleep", "infinity")

	res, err := d.runner.Execute(ctx, "", d.binary, argv, "")
	if err != nil {
		return "", fmt.Errorf("sandbox: failed to launch container: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("sandbox: operation failed: docker run exited %d: %s", res.ExitCode, res.Stderr)
	}
	return firstLine(res.Stdout), nil
}

func (d *CLIDriver) Exec(ctx context.Context, containerID, program string, argv []string, input string) (cmdrunner.Result, error) {
	full := append([]string{"exec"}, execFlags(input)...)
	full = append(full, containerID, program)
	full = append(full, argv...)
	return d.runner.Execute(ctx, "", d.binary, full, input)
}

func (d *CLIDriver) Stop(ctx context.Context, containerID string) error {
	res, err := d.runner.Execute(ctx, "", d.binary, []string{"stop", containerID}, "")
	if err != nil {
		return fmt.Errorf("sandbox: operation failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: operation failed: docker stop exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

func (d *CLIDriver) Remove(ctx context.Context, containerID string) error {
	res, err := d.runner.Execute(ctx, "", d.binary, []string{"rm", "-f", containerID}, "")
	if err != nil {
		return fmt.Errorf("sandbox: operation failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: operation failed: docker rm exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

func execFlags(input string) []string {
	if input != "" {
		return []string{"-i"}
	}
	return nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

func sortedLabelArgs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, labels[k]))
	}
	return out
}
