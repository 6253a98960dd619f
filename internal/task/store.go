// Package task implements the Task Store (spec §4.4): durable CRUD of AgentTask records
// and their embedded plans, with two selectable backings (in-memory, durable SQLite)
// sharing identical semantics.
package task

import (
	"context"
	"errors"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// ErrNotFound is returned by Get when no task exists for the given id.
var ErrNotFound = errors.New("task: not found")

// Store is the Task Store contract. Update is last-writer-wins: because the dispatcher
// serializes mutations per task id via the deduplication service (spec §4.6), no explicit
// optimistic concurrency is required here.
type Store interface {
	Create(ctx context.Context, t agentmodel.AgentTask) error
	Get(ctx context.Context, id string) (agentmodel.AgentTask, error)
	Update(ctx context.Context, t agentmodel.AgentTask) error
	ListByInstallation(ctx context.Context, installationID int64) ([]agentmodel.AgentTask, error)
}
