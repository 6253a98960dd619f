package instructions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencopilot/agentcore/internal/forge"
)

type fakeForge struct {
	forge.Forge
	contents map[string]string
	errs     map[string]error
	calls    []string
}

func (f *fakeForge) RepositoryContents(ctx context.Context, owner, repo, path string) ([]byte, error) {
	f.calls = append(f.calls, path)
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	if c, ok := f.contents[path]; ok {
		return []byte(c), nil
	}
	return nil, forge.ErrNotFound
}

func TestLoader_ReturnsIssueSpecificFileWhenPresent(t *testing.T) {
	fake := &fakeForge{contents: map[string]string{
		".github/open-copilot/42.md": "do the thing carefully",
	}}
	l := NewLoader(fake)

	got, err := l.Load(context.Background(), "o", "r", 42)
	require.NoError(t, err)
	assert.Equal(t, "do the thing carefully", got)
	assert.Equal(t, []string{".github/open-copilot/42.md"}, fake.calls)
}

func TestLoader_FallsBackThroughProbeOrder(t *testing.T) {
	fake := &fakeForge{contents: map[string]string{
		".github/open-copilot/README.md": "general guidance",
	}}
	l := NewLoader(fake)

	got, err := l.Load(context.Background(), "o", "r", 42)
	require.NoError(t, err)
	assert.Equal(t, "general guidance", got)
	assert.Equal(t, []string{
		".github/open-copilot/42.md",
		".github/open-copilot/instructions.md",
		".github/open-copilot/README.md",
	}, fake.calls)
}

func TestLoader_ReturnsEmptyWhenNoneExist(t *testing.T) {
	fake := &fakeForge{contents: map[string]string{}}
	l := NewLoader(fake)

	got, err := l.Load(context.Background(), "o", "r", 42)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoader_SkipsEmptyFileAndContinuesProbing(t *testing.T) {
	fake := &fakeForge{contents: map[string]string{
		".github/open-copilot/42.md":     "   \n",
		".github/open-copilot/README.md": "fallback content",
	}}
	l := NewLoader(fake)

	got, err := l.Load(context.Background(), "o", "r", 42)
	require.NoError(t, err)
	assert.Equal(t, "fallback content", got)
}

func TestLoader_TransportErrorDoesNotAbortProbing(t *testing.T) {
	fake := &fakeForge{
		errs: map[string]error{
			".github/open-copilot/42.md": errors.New("connection reset"),
		},
		contents: map[string]string{
			".github/open-copilot/instructions.md": "from instructions.md",
		},
	}
	l := NewLoader(fake)

	got, err := l.Load(context.Background(), "o", "r", 42)
	require.NoError(t, err)
	assert.Equal(t, "from instructions.md", got)
}

func TestLoader_RespectsContextCancellation(t *testing.T) {
	fake := &fakeForge{contents: map[string]string{}}
	l := NewLoader(fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Load(ctx, "o", "r", 42)
	assert.ErrorIs(t, err, context.Canceled)
}
