// Package jobstatus implements the Job Status Store (spec §4.5): an advisory, durable
// record of each dispatched job's observable lifecycle state. Job correctness never
// depends on this store's durability — it exists for operator visibility (agentctl
// status/cancel) and audit correlation, mirroring the Task Store's two-backing shape.
package jobstatus

import (
	"context"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// Store is the Job Status Store contract. Set is an upsert that must preserve the
// original CreatedAt across repeated calls for the same JobID (spec §4.5).
type Store interface {
	Set(ctx context.Context, status agentmodel.BackgroundJobStatusInfo) error
	Get(ctx context.Context, jobID string) (agentmodel.BackgroundJobStatusInfo, bool, error)
}
