package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/opencopilot/agentcore/internal/clock"
)

type entry struct {
	jobID     string
	expiresAt time.Time
}

// MemoryService is the in-memory Deduplication Service backing, grounded on the teacher's
// map+mutex style used throughout for in-process registries. An injected clock.Clock makes
// expiry deterministic under test.
type MemoryService struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   clock.Clock
}

// NewMemoryService returns an empty MemoryService using clk to evaluate TTL expiry.
func NewMemoryService(clk clock.Clock) *MemoryService {
	return &MemoryService{entries: make(map[string]entry), clock: clk}
}

func (s *MemoryService) TryRegister(ctx context.Context, fingerprint, jobID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if e, ok := s.entries[fingerprint]; ok && now.Before(e.expiresAt) {
		if e.jobID != jobID {
			return false, nil
		}
		// Same job re-registering (e.g. a retry) refreshes its own claim.
	}

	s.entries[fingerprint] = entry{jobID: jobID, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryService) Release(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fingerprint)
	return nil
}

func (s *MemoryService) GetActive(ctx context.Context, fingerprint string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fingerprint]
	if !ok || !s.clock.Now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.jobID, true, nil
}
