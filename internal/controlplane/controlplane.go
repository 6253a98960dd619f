// Package controlplane bundles the stores and dispatcher a running daemon exposes to its
// own operator tooling — spec.md places an HTTP/webhook receiver out of scope (§1), so
// SPEC_FULL.md's agentctl talks to this struct as a direct library call rather than over a
// loopback listener: a plain shared pointer when it shares agentd's process (as in
// tests), and store handles opened by OpenFromConfig when cmd/agentctl runs as its own
// binary. Grounded on the teacher's own in-process coupling between
// cmd/sett and cmd/holt's commands and the orchestrator state they inspect directly
// (internal/orchestrator/health.go's status queries), generalized from "inspect one
// orchestrator" to "inspect one agentcore daemon."
package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/opencopilot/agentcore/internal/audit"
	"github.com/opencopilot/agentcore/internal/clock"
	"github.com/opencopilot/agentcore/internal/config"
	"github.com/opencopilot/agentcore/internal/jobstatus"
	"github.com/opencopilot/agentcore/internal/task"
	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// Dispatcher is the subset of *dispatcher.Dispatcher the control plane needs, narrowed so
// tests can fake it without standing up a queue.
type Dispatcher interface {
	CancelJob(ctx context.Context, jobID string) bool
}

// ControlPlane is the read/cancel surface agentctl drives. It owns none of the state it
// reports on — every field is a reference to the same store/dispatcher instance agentd
// wired into its job handlers, so a status query always reflects the daemon's live state.
type ControlPlane struct {
	Dispatcher Dispatcher
	Tasks      task.Store
	JobStatus  jobstatus.Store
	Audit      audit.Store
}

// New constructs a ControlPlane over the given collaborators.
func New(d Dispatcher, tasks task.Store, jobStatus jobstatus.Store, auditStore audit.Store) *ControlPlane {
	return &ControlPlane{Dispatcher: d, Tasks: tasks, JobStatus: jobStatus, Audit: auditStore}
}

// JobStatusOf returns the advisory status record for jobID.
func (c *ControlPlane) JobStatusOf(ctx context.Context, jobID string) (agentmodel.BackgroundJobStatusInfo, bool, error) {
	return c.JobStatus.Get(ctx, jobID)
}

// CancelJob trips jobID's cancellation token if it is still Queued or Running. Reports
// false with no effect when this ControlPlane has no live Dispatcher attached — true for
// every agentctl invocation running as a separate OS process from agentd, since the
// per-job cancellation registry (internal/dispatcher's jobEntry map) is in-process state
// that spec §1 never asks this module to make remotely reachable (the HTTP/webhook
// surface that could carry a cancel request is explicitly out of scope).
func (c *ControlPlane) CancelJob(ctx context.Context, jobID string) bool {
	if c.Dispatcher == nil {
		return false
	}
	return c.Dispatcher.CancelJob(ctx, jobID)
}

// Task returns the task record for id.
func (c *ControlPlane) Task(ctx context.Context, id string) (agentmodel.AgentTask, error) {
	return c.Tasks.Get(ctx, id)
}

// TasksForInstallation lists every task known for installationID.
func (c *ControlPlane) TasksForInstallation(ctx context.Context, installationID int64) ([]agentmodel.AgentTask, error) {
	return c.Tasks.ListByInstallation(ctx, installationID)
}

// QueryAudit runs filter against the audit log store.
func (c *ControlPlane) QueryAudit(ctx context.Context, filter audit.QueryFilter) ([]agentmodel.AuditLog, error) {
	return c.Audit.Query(ctx, filter)
}

// RunRetentionSweep runs one audit-retention pass immediately, returning the count
// removed. It makes the same DeleteOlderThan call as cmd/agentd's background retention
// ticker, which calls the audit store directly rather than going through this method.
func (c *ControlPlane) RunRetentionSweep(ctx context.Context, retention time.Duration) (int, error) {
	return c.Audit.DeleteOlderThan(ctx, retention)
}

// closer is satisfied by the SQLite-backed stores (task/jobstatus/audit all expose
// Close() error); the in-memory stores don't need one.
type closer interface {
	Close() error
}

// OpenFromConfig opens a ControlPlane directly against cfg's configured stores, with no
// live Dispatcher attached (see CancelJob) — this is how agentctl, run as a standalone OS
// process, observes a daemon it doesn't share memory with. A non-empty
// cfg.DatabaseConnection is required for this to see any of agentd's actual state: the
// in-memory backings are only useful when agentctl and agentd share one process (spec
// §6's "without a connection string the system runs entirely in-memory" applies per
// process, not per daemon).
func OpenFromConfig(cfg *config.Config) (*ControlPlane, func() error, error) {
	if !cfg.UsesDurableStorage() {
		clk := clock.Real{}
		cp := New(nil, task.NewMemoryStore(), jobstatus.NewMemoryStore(), audit.NewMemoryStore(clk))
		return cp, func() error { return nil }, nil
	}

	taskStore, err := task.OpenSQLiteStore(cfg.DatabaseConnection)
	if err != nil {
		return nil, nil, fmt.Errorf("controlplane: opening task store: %w", err)
	}
	jobStatusStore, err := jobstatus.OpenSQLiteStore(cfg.DatabaseConnection)
	if err != nil {
		return nil, nil, fmt.Errorf("controlplane: opening job status store: %w", err)
	}
	auditStore, err := audit.OpenSQLiteStore(cfg.DatabaseConnection)
	if err != nil {
		return nil, nil, fmt.Errorf("controlplane: opening audit store: %w", err)
	}

	cp := New(nil, taskStore, jobStatusStore, auditStore)
	closeAll := func() error {
		var firstErr error
		for _, c := range []closer{taskStore, jobStatusStore, auditStore} {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return cp, closeAll, nil
}
