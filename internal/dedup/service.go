// Package dedup implements the Deduplication Service (spec §4.6): a TTL-backed registry
// preventing the same fingerprint (job type + payload key fields, task id included for
// Plan/Execute jobs) from being dispatched twice concurrently.
package dedup

import (
	"context"
	"time"
)

// Service is the Deduplication Service contract.
//
// TryRegister claims fingerprint for jobID for the given ttl. It returns false without
// registering anything if a live (non-expired) entry already exists for fingerprint under
// a different jobID. Re-registering the same (fingerprint, jobID) pair refreshes the TTL
// and returns true — this lets a retried attempt of the same job keep its claim.
//
// Release clears the entry for fingerprint unconditionally, called once a job reaches a
// terminal state.
//
// GetActive reports the jobID currently holding fingerprint, if any live entry exists.
type Service interface {
	TryRegister(ctx context.Context, fingerprint, jobID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, fingerprint string) error
	GetActive(ctx context.Context, fingerprint string) (jobID string, ok bool, err error)
}
