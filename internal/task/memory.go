package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// MemoryStore is the in-memory Task Store backing, grounded on the teacher's
// in-process map+mutex style (e.g. WorkerManager.activeWorkers guarded by
// sync.RWMutex), keyed here by AgentTask.ID instead of container id.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]agentmodel.AgentTask
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]agentmodel.AgentTask)}
}

func (s *MemoryStore) Create(ctx context.Context, t agentmodel.AgentTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task: %s already exists", t.ID)
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (agentmodel.AgentTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return agentmodel.AgentTask{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) Update(ctx context.Context, t agentmodel.AgentTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *MemoryStore) ListByInstallation(ctx context.Context, installationID int64) ([]agentmodel.AgentTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []agentmodel.AgentTask
	for _, t := range s.tasks {
		if t.InstallationID == installationID {
			out = append(out, t)
		}
	}
	return out, nil
}
