package sandbox

import (
	"context"
	"fmt"
	"log"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// managedLabel is set on every container this package's Manager starts (see manager.go's
// Create), so the janitor can scope its scan to containers it's actually responsible for.
const managedLabel = "com.opencopilot.managed=true"

// Janitor sweeps for and removes sandbox containers left behind by a daemon crash or
// restart — containers that carry this package's management label but aren't tracked by
// any live Manager. It uses the docker/docker SDK client rather than the CLI driver
// because it runs once at startup, off the request hot path that spec §8's testable
// properties inspect, and ContainerList's structured label filters are a better fit for a
// "scan everything" sweep than parsing `docker ps` text.
//
// Grounded on internal/orchestrator/workers.go's CleanupOrphanedWorkers, generalized from
// "orphans of one orchestrator instance" to "orphans of one agentcore daemon".
type Janitor struct {
	docker *client.Client
}

// NewJanitor returns a Janitor backed by an already-pinged docker/docker SDK client (see
// internal/docker.NewClient for the connect-and-validate pattern this assumes).
func NewJanitor(docker *client.Client) *Janitor {
	return &Janitor{docker: docker}
}

// SweepOrphans removes every managed-label container not present in liveContainerIDs. It
// logs and continues past individual removal failures rather than aborting the sweep,
// matching the teacher's orphan cleanup.
func (j *Janitor) SweepOrphans(ctx context.Context, liveContainerIDs map[string]bool) (removed int, err error) {
	f := filters.NewArgs()
	f.Add("label", managedLabel)

	containers, err := j.docker.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return 0, fmt.Errorf("sandbox: failed to list containers for orphan sweep: %w", err)
	}

	for _, c := range containers {
		if liveContainerIDs[c.ID] {
			continue
		}

		if err := j.docker.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			log.Printf("sandbox: warning: failed to remove orphaned container %s: %v", truncateID(c.ID), err)
			continue
		}
		removed++
	}

	return removed, nil
}

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
