package rfc9111

import "time"

// §  4.2.3.  Calculating Age
// §
// §     The Age header field is used to convey an estimated age of the
// §     response message when obtained from a cache.  The Age field value is
// §     the cache's estimate of the number of seconds since the origin server
// §     generated or validated the response.  The Age value is therefore the
// §     sum of the time that the response has been resident in each of the
// §     caches along the path from the origin server, plus the time it has
// §     been in transit along network paths.
// §
// §     Age calculation uses the following data:
// §
// §     "age_value"
// §        The term "age_value" denotes the value of the Age header field
// §        (Section 5.1), in a form appropriate for arithmetic operation; or
// §        0, if not available.
func age_value(sr StoredResponse) time.Duration {
	if sr.HasAge {
		return sr.Age
	}
	return 0
}

// §
// §     "date_value"
// §        The term "date_value" denotes the value of the Date header field,
// §        in a form appropriate for arithmetic operations.  See
// §        Section 6.6.1 of [HTTP] for the definition of the Date header
// §        field and for requirements regarding responses without it.
//
// A response stored without a Date is dated with the time it was stored.
func date_value(sr StoredResponse) time.Time {
	return sr.ResponseDate
}

// §
// §     "now"
// §        The term "now" means the current value of this implementation's
// §        clock (Section 5.6.7 of [HTTP]).
//
// "now" is always an argument here, never read from the system clock.

// §
// §     A response's age can be calculated in two entirely independent ways:
// §
// §     1.  the "apparent_age": response_time minus date_value, if the
// §         implementation's clock is reasonably well synchronized to the
// §         origin server's clock.  If the result is negative, the result is
// §         replaced by zero.
// §
// §     2.  the "corrected_age_value", if all of the caches along the
// §         response path implement HTTP/1.1 or greater.  A cache MUST
// §         interpret this value relative to the time the request was
// §         initiated, not the time that the response was received.
//
// Request and response times are not recorded, so network latency is taken
// to be zero: response_time equals date_value, the apparent age is zero and
// the corrected initial age is the Age value. The resident time is then
// measured from date_value.

// §       resident_time = now - response_time;
func resident_time(sr StoredResponse, now time.Time) time.Duration {
	return durationMax(0, now.Sub(date_value(sr)))
}

// §       current_age = corrected_initial_age + resident_time;
func current_age(sr StoredResponse, now time.Time) time.Duration {
	return resident_time(sr, now) + age_value(sr)
}

// CurrentAge returns the age of the stored response at time `now`.
func CurrentAge(sr StoredResponse, now time.Time) time.Duration {
	return current_age(sr, now)
}

func durationMax(d1, d2 time.Duration) time.Duration {
	if d1 > d2 {
		return d1
	}
	return d2
}
