package rfc9111

import "time"

// §  4.2.1.  Calculating Freshness Lifetime
// §
// §     A cache can calculate the freshness lifetime (denoted as
// §     freshness_lifetime) of a response by evaluating the following rules
// §     and using the first match: [...]

// FreshnessLifetime returns the freshness lifetime of the stored response.
// It never returns a negative duration.
func FreshnessLifetime(sr StoredResponse) time.Duration {
	return freshness_lifetime(sr)
}

func freshness_lifetime(sr StoredResponse) time.Duration {
	cc := sr.CacheControl
	// §     A cache can calculate the freshness lifetime (denoted as
	// §     freshness_lifetime) of a response by evaluating the following rules
	// §     and using the first match:
	// §
	// §     *  If the cache is shared and the s-maxage response directive
	// §        (Section 5.2.2.10) is present, use its value, or
	if val, ok := cc.SMaxAge(); ok {
		return val
	}
	// §
	// §     *  If the max-age response directive (Section 5.2.2.1) is present,
	// §        use its value, or
	if val, ok := cc.MaxAge(); ok {
		return val
	}
	// §
	// §     *  If the Expires response header field (Section 5.3) is present, use
	// §        its value minus the value of the Date response header field (using
	// §        the time the message was received if it is not present, as per
	// §        Section 6.6.1 of [HTTP]), or
	if sr.HasExpires {
		return durationMax(0, sr.Expires.Sub(sr.ResponseDate))
	}
	// §
	// §     *  Otherwise, no explicit expiration time is present in the response.
	// §        A heuristic freshness lifetime might be applicable; see
	// §        Section 4.2.2.
	if val, ok := heuristic_freshness(sr); ok {
		return val
	}
	return 0
}

// §     Note that this calculation is intended to reduce clock skew by using
// §     the clock information provided by the origin server whenever
// §     possible.
// §
// §     When there is more than one value present for a given directive
// §     (e.g., two Expires header field lines or multiple Cache-Control: max-
// §     age directives), either the first occurrence should be used or the
// §     response should be considered stale.  If directives conflict (e.g.,
// §     both max-age and no-cache are present), the most restrictive
// §     directive should be honored.  Caches are encouraged to consider
// §     responses that have invalid freshness information (e.g., a max-age
// §     directive with non-integer content) to be stale.
