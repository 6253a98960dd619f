package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opencopilot/agentcore/internal/clock"
	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// MemoryStore is the in-memory Audit Log Store backing (spec §4.3: "process lifetime").
// Grounded on the teacher's in-process map+mutex style (e.g.
// WorkerManager.activeWorkers guarded by sync.RWMutex), generalized to a slice since audit
// entries are append-ordered rather than keyed.
type MemoryStore struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries []agentmodel.AuditLog
}

// NewMemoryStore returns an empty MemoryStore using clk as its time source for
// DeleteOlderThan. Pass clock.Real{} in production.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{clock: clk}
}

func (s *MemoryStore) Store(ctx context.Context, entry agentmodel.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, filter QueryFilter) ([]agentmodel.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []agentmodel.AuditLog
	for _, e := range s.entries {
		if filter.matches(e) {
			matched = append(matched, e)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	limit := filter.normalizedLimit()
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) DeleteOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-retention)

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}
