// Package analysis runs session analyzers under a daily quota and a
// concurrency cap, and decides when cached analysis output is still
// usable.
package analysis

import (
	"time"

	"skb/internal/storage"
)

// CacheStillValid reports whether an analysis timestamp is within the
// configured cache duration. A non-positive duration disables expiry.
// A zero timestamp is never valid. Elapsed time is compared in whole
// seconds, fractions rounded down.
func CacheStillValid(analyzedAt time.Time, durationDays int, now time.Time) bool {
	if analyzedAt.IsZero() {
		return false
	}
	if durationDays <= 0 {
		return true
	}

	elapsed := int64(now.Sub(analyzedAt) / time.Second)
	return elapsed <= int64(durationDays)*86400
}

// EntryValid applies the full read-side validity check for a cached
// analysis row: the fingerprint must match the session's current
// content and the entry must not have aged out. A stale fingerprint
// invalidates immediately regardless of age.
func EntryValid(entry *storage.AnalysisEntry, currentFingerprint string, durationDays int, now time.Time) bool {
	if entry == nil {
		return false
	}
	if entry.Fingerprint != currentFingerprint {
		return false
	}
	return CacheStillValid(entry.AnalyzedAt, durationDays, now)
}
