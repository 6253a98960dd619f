// Package audit implements the Audit Log Store (spec §4.3): an append-only, queryable
// record of significant runtime occurrences with two selectable backings (in-memory,
// durable SQLite) sharing identical semantics.
package audit

import (
	"context"
	"time"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// DefaultQueryLimit is applied when Query's filter leaves Limit at zero.
const DefaultQueryLimit = 100

// MaxQueryLimit is the hard cap spec §4.3 imposes regardless of the requested limit.
const MaxQueryLimit = 1000

// QueryFilter selects which AuditLog entries Query returns. A nil/zero field is
// unconstrained; all non-zero fields combine with AND.
type QueryFilter struct {
	EventType     agentmodel.AuditEventType
	CorrelationID string
	Start         *time.Time
	End           *time.Time
	Limit         int
}

// normalizedLimit returns f.Limit clamped to (0, MaxQueryLimit], substituting
// DefaultQueryLimit when f.Limit is zero or negative.
func (f QueryFilter) normalizedLimit() int {
	if f.Limit <= 0 {
		return DefaultQueryLimit
	}
	if f.Limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return f.Limit
}

func (f QueryFilter) matches(e agentmodel.AuditLog) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	return true
}

// Store is the Audit Log Store contract. Both backings (MemoryStore, SQLiteStore)
// implement it with identical semantics; only the latter survives a restart.
type Store interface {
	// Store appends entry. O(1) amortized.
	Store(ctx context.Context, entry agentmodel.AuditLog) error
	// Query returns entries matching filter, ordered by timestamp descending, capped at
	// MaxQueryLimit regardless of filter.Limit.
	Query(ctx context.Context, filter QueryFilter) ([]agentmodel.AuditLog, error)
	// DeleteOlderThan removes entries with timestamp < now-retention and returns the
	// count removed. A zero retention deletes every entry.
	DeleteOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
