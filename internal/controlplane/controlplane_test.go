package controlplane

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencopilot/agentcore/internal/audit"
	"github.com/opencopilot/agentcore/internal/clock"
	"github.com/opencopilot/agentcore/internal/config"
	"github.com/opencopilot/agentcore/internal/jobstatus"
	"github.com/opencopilot/agentcore/internal/task"
	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

type fakeDispatcher struct {
	cancelled []string
	result    bool
}

func (f *fakeDispatcher) CancelJob(ctx context.Context, jobID string) bool {
	f.cancelled = append(f.cancelled, jobID)
	return f.result
}

func newTestControlPlane(d Dispatcher) *ControlPlane {
	clk := clock.Real{}
	return New(d, task.NewMemoryStore(), jobstatus.NewMemoryStore(), audit.NewMemoryStore(clk))
}

func TestControlPlane_CancelJobWithNoDispatcherReturnsFalse(t *testing.T) {
	cp := newTestControlPlane(nil)
	assert.False(t, cp.CancelJob(context.Background(), "job-1"))
}

func TestControlPlane_CancelJobDelegatesToDispatcher(t *testing.T) {
	fake := &fakeDispatcher{result: true}
	cp := newTestControlPlane(fake)

	ok := cp.CancelJob(context.Background(), "job-1")

	assert.True(t, ok)
	assert.Equal(t, []string{"job-1"}, fake.cancelled)
}

func TestControlPlane_JobStatusOfReportsNotFound(t *testing.T) {
	cp := newTestControlPlane(nil)
	_, found, err := cp.JobStatusOf(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestControlPlane_TasksForInstallationReflectsStore(t *testing.T) {
	cp := newTestControlPlane(nil)
	now := time.Now().UTC()
	task1 := agentmodel.AgentTask{
		ID:             agentmodel.TaskID("acme", "widgets", 1),
		Owner:          "acme",
		Repo:           "widgets",
		IssueNumber:    1,
		InstallationID: 42,
		Status:         agentmodel.TaskPendingPlanning,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, cp.Tasks.Create(context.Background(), task1))

	got, err := cp.TasksForInstallation(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, task1.ID, got[0].ID)
}

func TestControlPlane_QueryAuditReflectsStore(t *testing.T) {
	cp := newTestControlPlane(nil)
	entry := agentmodel.AuditLog{
		ID:        "audit-1",
		EventType: agentmodel.EventTaskTransitioned,
		Timestamp: time.Now().UTC(),
		Result:    agentmodel.ResultSuccess,
	}
	require.NoError(t, cp.Audit.Store(context.Background(), entry))

	got, err := cp.QueryAudit(context.Background(), audit.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entry.ID, got[0].ID)
}

func TestControlPlane_RunRetentionSweepDeletesOldEntries(t *testing.T) {
	cp := newTestControlPlane(nil)
	old := agentmodel.AuditLog{
		ID:        "old",
		EventType: agentmodel.EventOrphanCleanup,
		Timestamp: time.Now().UTC().Add(-48 * time.Hour),
		Result:    agentmodel.ResultSuccess,
	}
	require.NoError(t, cp.Audit.Store(context.Background(), old))

	removed, err := cp.RunRetentionSweep(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestOpenFromConfig_InMemoryWhenNoDatabaseConnection(t *testing.T) {
	cp, closeFn, err := OpenFromConfig(&config.Config{})
	require.NoError(t, err)
	defer closeFn()

	assert.Nil(t, cp.Dispatcher)
	assert.False(t, cp.CancelJob(context.Background(), "job-1"))
}
