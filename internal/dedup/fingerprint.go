package dedup

import "fmt"

// Fingerprint computes the deterministic dedup key for a job: its type plus the task id
// owning the work (spec §4.6 — "for Plan/Execute jobs the task id is part of the
// fingerprint so the same task cannot be planned or executed twice concurrently").
func Fingerprint(jobType, taskID string) string {
	return fmt.Sprintf("%s:%s", jobType, taskID)
}
