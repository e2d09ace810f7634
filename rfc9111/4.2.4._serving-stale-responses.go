package rfc9111

import "time"

// §  4.2.4.  Serving Stale Responses
// §
// §     A "stale" response is one that either has explicit expiry information
// §     or is allowed to have heuristic expiry calculated, but is not fresh
// §     according to the calculations in Section 4.2.
// §
// §     A cache MUST NOT generate a stale response if it is prohibited by an
// §     explicit in-protocol directive (e.g., by a no-cache response
// §     directive, a must-revalidate response directive, or an applicable
// §     s-maxage or proxy-revalidate response directive; see Section 5.2.2).
// §
// §     A cache MUST NOT generate a stale response unless it is disconnected
// §     or doing so is explicitly permitted by the client or origin server
// §     (e.g., by the max-stale request directive in Section 5.2.1, extension
// §     directives such as those defined in [RFC5861], or configuration in
// §     accordance with an out-of-band contract).

// MayServeStale returns whether a stale response may still be served while it
// is refreshed out of band, as permitted by stale-while-revalidate (RFC 5861).
// The window is exclusive: current_age must be below the freshness lifetime
// plus the stale-while-revalidate delta.
func MayServeStale(sr StoredResponse, now time.Time) bool {
	cc := sr.CacheControl
	if cc.Has(NoCache) || cc.Has(MustRevalidate) {
		return false
	}
	window, ok := cc.StaleWhileRevalidate()
	if !ok {
		return false
	}
	return current_age(sr, now) < freshness_lifetime(sr)+window
}
