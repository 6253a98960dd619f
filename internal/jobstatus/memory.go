package jobstatus

import (
	"context"
	"sync"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// MemoryStore is the in-memory Job Status Store backing, map+mutex in the same style as
// internal/task.MemoryStore and internal/audit.MemoryStore.
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[string]agentmodel.BackgroundJobStatusInfo
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{statuses: make(map[string]agentmodel.BackgroundJobStatusInfo)}
}

func (s *MemoryStore) Set(ctx context.Context, status agentmodel.BackgroundJobStatusInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.statuses[status.JobID]; ok {
		status.CreatedAt = existing.CreatedAt
	}
	s.statuses[status.JobID] = status
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (agentmodel.BackgroundJobStatusInfo, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[jobID]
	return status, ok, nil
}
