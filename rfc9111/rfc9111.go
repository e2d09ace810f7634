// Package rfc9111 implements the decision logic of HTTP Caching (RFC 9111,
// which obsoletes RFC 7234): parsing cache directives, calculating age and
// freshness, and planning validation.
//
// The files are named after the RFC sections they implement, and the relevant
// parts of the RFC text are quoted (prefixed with §) next to the code.
//
// Everything in this package is a pure function of its arguments. In particular
// the current time is always passed in explicitly.
package rfc9111

import (
	"net/http"
	"time"
)

// StoredResponse is the part of a stored response needed for the freshness
// and validation calculations. It is captured once when a response is stored
// and never updated with derived values (age, freshness): those are computed
// on every read.
type StoredResponse struct {
	CacheControl CacheControl
	// ETag is the opaque entity tag, including quotes and weakness indicator.
	ETag string
	// LastModified is the zero time if the response has no valid Last-Modified.
	LastModified time.Time
	// Expires is only meaningful if HasExpires is true.
	// An invalid Expires value is stored as the zero time (already expired).
	Expires    time.Time
	HasExpires bool
	// ResponseDate is the origin's Date header, or StoredAt if it is missing or invalid.
	ResponseDate time.Time
	// StoredAt is the value of the cache's clock when the response was written.
	StoredAt time.Time
	// Age is the Age header sent by the origin (or an upstream cache).
	Age    time.Duration
	HasAge bool
}

// NewStoredResponse captures the cache relevant fields from a response header.
// storedAt is used as the response date if the header has no valid Date.
func NewStoredResponse(header http.Header, storedAt time.Time) StoredResponse {
	sr := StoredResponse{
		CacheControl: ParseCacheControl(header.Values("Cache-Control")),
		ETag:         header.Get("ETag"),
		StoredAt:     storedAt,
		ResponseDate: storedAt,
	}
	if date, err := HttpDate(header.Get("Date")); err == nil {
		sr.ResponseDate = date
	}
	if lm := header.Get("Last-Modified"); lm != "" {
		if lastModified, err := HttpDate(lm); err == nil {
			sr.LastModified = lastModified
		}
	}
	sr.Expires, sr.HasExpires = getExpires(header)
	sr.Age, sr.HasAge = getAge(header)
	return sr
}

// HasValidator returns whether the response can be validated with a
// conditional request, i.e. it has an entity tag or a modification date.
func (sr StoredResponse) HasValidator() bool {
	return sr.ETag != "" || !sr.LastModified.IsZero()
}
