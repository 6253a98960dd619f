package dispatcher

import (
	"math/rand"
	"time"
)

// backoffBase/backoffFactor/backoffCap/backoffJitter are this module's Open Question
// decision (SPEC_FULL.md §13) for spec §4.8's retry policy: base 1s, factor 2, capped at
// 5 minutes, ±20% jitter.
const (
	backoffBase   = time.Second
	backoffFactor = 2.0
	backoffCap    = 5 * time.Minute
	backoffJitter = 0.20
)

// computeBackoff returns the delay before retry attempt (1-indexed: the delay before the
// *next* attempt after `attempt` failures so far). Hand-rolled per DESIGN.md — no backoff
// library appears as a direct dependency anywhere in the pack, matching the teacher's own
// style of hand-rolling this class of timing logic.
func computeBackoff(attempt int) time.Duration {
	d := float64(backoffBase)
	for i := 1; i < attempt; i++ {
		d *= backoffFactor
	}
	if d > float64(backoffCap) {
		d = float64(backoffCap)
	}

	jitterRange := d * backoffJitter
	jittered := d + (rand.Float64()*2-1)*jitterRange
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}
