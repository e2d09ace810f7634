package rfc9111

import "time"

// §  4.2.  Freshness
// §
// §     A "fresh" response is one whose age has not yet exceeded its
// §     freshness lifetime.  Conversely, a "stale" response is one where it
// §     has.
// §
// §     A response's "freshness lifetime" is the length of time between its
// §     generation by the origin server and its expiration time.  An
// §     "explicit expiration time" is the time at which the origin server
// §     intends that a stored response can no longer be used by a cache
// §     without further validation, whereas a "heuristic expiration time" is
// §     assigned by a cache when no explicit expiration time is available.
// §
// §     A response's "age" is the time that has passed since it was generated
// §     by, or successfully validated with, the origin server.

// Verdict is the outcome of evaluating a stored response at a point in time.
type Verdict int

const (
	// Absent means there is no stored response.
	Absent Verdict = iota
	// Fresh responses may be served without contacting the origin.
	Fresh
	// StaleRevalidate responses need a conditional request before reuse.
	StaleRevalidate
	// StaleRefetch responses have no validator and must be fetched again.
	StaleRefetch
)

var verdictNames = [...]string{
	Absent:          "ABSENT",
	Fresh:           "FRESH",
	StaleRevalidate: "STALE_REVALIDATE",
	StaleRefetch:    "STALE_REFETCH",
}

func (v Verdict) String() string {
	if v < 0 || int(v) >= len(verdictNames) {
		return "UNKNOWN"
	}
	return verdictNames[v]
}

// IsStale returns whether the verdict is one of the stale ones.
func (v Verdict) IsStale() bool {
	return v == StaleRevalidate || v == StaleRefetch
}

// §     The calculation to determine if a response is fresh is:
// §
// §        response_is_fresh = (freshness_lifetime > current_age)
// §
// §     freshness_lifetime is defined in Section 4.2.1; current_age is
// §     defined in Section 4.2.3.
//
// The evaluation order is fixed:
//  1. no-cache always means stale (it has to be validated before each use),
//  2. immutable means fresh for as long as it is stored (RFC 8246),
//  3. otherwise the calculation above.
func IsFresh(sr StoredResponse, now time.Time) bool {
	if sr.CacheControl.Has(NoCache) {
		return false
	}
	if sr.CacheControl.Has(Immutable) {
		return true
	}
	return freshness_lifetime(sr) > current_age(sr, now)
}

// Evaluate returns the verdict for the stored response at time `now`.
// A stale response without validators cannot be revalidated and has to be
// fetched from scratch.
func Evaluate(sr StoredResponse, now time.Time) Verdict {
	if IsFresh(sr, now) {
		return Fresh
	}
	if sr.HasValidator() {
		return StaleRevalidate
	}
	return StaleRefetch
}

// TimeToLive returns the remaining freshness in whole seconds (may be negative).
func TimeToLive(sr StoredResponse, now time.Time) int {
	return int((freshness_lifetime(sr) - current_age(sr, now)) / time.Second)
}
