package dispatcher

import (
	"context"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// Handler processes one BackgroundJob and reports the outcome. Handlers must treat all
// shared resources (sandbox, stores) as safe for concurrent calls with differing ids
// (spec §4.8) — the dispatcher guarantees no two concurrently-running jobs share a
// fingerprint, never that a handler's own internals are single-threaded.
type Handler func(ctx context.Context, job agentmodel.BackgroundJob) agentmodel.JobResult
