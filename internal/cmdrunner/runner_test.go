package cmdrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Execute_CapturesStdoutAndExitCode(t *testing.T) {
	r := New()
	res, err := r.Execute(context.Background(), t.TempDir(), "sh", []string{"-c", "echo hello; exit 3"}, "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
}

func TestRunner_Execute_DoesNotErrorOnNonZeroExit(t *testing.T) {
	r := New()
	res, err := r.Execute(context.Background(), t.TempDir(), "false", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestRunner_Execute_NotLaunchable(t *testing.T) {
	r := New()
	_, err := r.Execute(context.Background(), t.TempDir(), "this-binary-does-not-exist-xyz", nil, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotLaunchable))
}

func TestRunner_Execute_WritesStdin(t *testing.T) {
	r := New()
	res, err := r.Execute(context.Background(), t.TempDir(), "cat", nil, "payload-data")
	require.NoError(t, err)
	assert.Equal(t, "payload-data", res.Stdout)
}

func TestRunner_Execute_Cancellation(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Execute(ctx, t.TempDir(), "sleep", []string{"5"}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
}

func TestRunner_Execute_BoundsOutput(t *testing.T) {
	r := New()
	// write far more than maxOutputBytes and confirm we don't blow up; we only assert
	// the captured length is capped, not its exact content.
	res, err := r.Execute(context.Background(), t.TempDir(), "sh", []string{"-c", "yes x | head -c 12000000"}, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Stdout), maxOutputBytes)
}
