// Package rfc9211 renders the Cache-Status HTTP response header field (RFC 9211).
package rfc9211

import (
	"strconv"
	"strings"
)

// §  2.  The Cache-Status HTTP Response Header Field
// §
// §     The Cache-Status HTTP response header field indicates caches' handling
// §     of the request corresponding to the response it occurs within.
// §
// §     Its value is a List (Section 3.1 of [STRUCTURED-FIELDS]):
// §
// §     Cache-Status   = sf-list
// §
// §     Each member of the list represents a cache that has handled the
// §     request.  The first member of the list represents the cache closest
// §     to the origin server, and the last member of the list represents the
// §     cache closest to the user (possibly including the user agent's cache
// §     itself, if it appends a value).

// FwdReason is the value of the fwd parameter.
type FwdReason string

// §  2.2.  The fwd Parameter
const (
	// The cache was configured to not handle this request.
	FwdBypass FwdReason = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	FwdMethod FwdReason = "method"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdUriMiss FwdReason = "uri-miss"

	// The cache contained a response that matched the request
	// URI, but it could not select a response based upon this request's
	// header fields and stored Vary header fields.
	FwdVaryMiss FwdReason = "vary-miss"

	// The cache did not contain any responses that could be used to
	// satisfy this request (to be used when an implementation cannot
	// distinguish between uri-miss and vary-miss).
	FwdMiss FwdReason = "miss"

	// The cache was able to select a fresh response for the
	// request, but the request's semantics (e.g., Cache-Control request
	// directives) did not allow its use.
	FwdRequest FwdReason = "request"

	// The cache was able to select a response for the request, but
	// it was stale.
	FwdStale FwdReason = "stale"

	// The cache was able to select a partial response for the
	// request, but it did not contain all of the requested ranges (or
	// the request was for the complete response).
	FwdPartial FwdReason = "partial"
)

// CacheStatus is one member of the Cache-Status list.
type CacheStatus struct {
	cache     string
	hit       bool
	fwdReason FwdReason
	fwdStatus int
	ttl       *int
	stored    bool
	key       string
	detail    string
}

// New returns a status for the cache with the given name.
func New(cache string) *CacheStatus {
	return &CacheStatus{cache: cache}
}

// §  2.1.  The hit Parameter
// §
// §     "hit", when true, indicates that the request was satisfied by the
// §     cache; that is, it was not forwarded, and the response was obtained
// §     from the cache.
func (cs *CacheStatus) Hit() {
	cs.hit = true
	cs.fwdReason = ""
}

// Forward marks the request as forwarded for the given reason.
func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.hit = false
	cs.fwdReason = reason
}

// §  2.3.  The fwd-status Parameter
// §
// §     "fwd-status" indicates what status code (see Section 15 of [HTTP])
// §     the next hop server returned in response to the forwarded request.
func (cs *CacheStatus) FwdStatus(statusCode int) {
	cs.fwdStatus = statusCode
}

// §  2.4.  The ttl Parameter
// §
// §     "ttl" indicates the response's remaining freshness lifetime as
// §     calculated by the cache, as an integer number of seconds, measured
// §     when the response header section is sent by the cache.  This includes
// §     freshness assigned by the cache through, e.g., heuristics (see
// §     Section 4.2.2 of [HTTP-CACHING]), local configuration, or other
// §     factors.  May be negative, to indicate staleness.
func (cs *CacheStatus) TTL(seconds int) {
	cs.ttl = &seconds
}

// §  2.5.  The stored Parameter
// §
// §     "stored" indicates whether the cache stored the response (see
// §     Section 3 of [HTTP-CACHING]); a true value indicates that it did.
func (cs *CacheStatus) Stored() {
	cs.stored = true
}

// §  2.7.  The key Parameter
// §
// §     "key" conveys a representation of the cache key (see Section 2 of
// §     [HTTP-CACHING]) used for the response.
func (cs *CacheStatus) Key(key string) {
	cs.key = key
}

// §  2.8.  The detail Parameter
// §
// §     "detail" allows implementations to convey additional information not
// §     captured in other parameters, such as implementation-specific states
// §     or other caching-related metrics.
func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

// String renders the list member, e.g. `httpcache; fwd=stale; ttl=-12`.
func (cs *CacheStatus) String() string {
	var b strings.Builder
	b.WriteString(sfToken(cs.cache))
	if cs.hit {
		b.WriteString("; hit")
	} else if cs.fwdReason != "" {
		b.WriteString("; fwd=" + string(cs.fwdReason))
		if cs.fwdStatus != 0 {
			b.WriteString("; fwd-status=" + strconv.Itoa(cs.fwdStatus))
		}
	}
	if cs.ttl != nil {
		b.WriteString("; ttl=" + strconv.Itoa(*cs.ttl))
	}
	if cs.stored {
		b.WriteString("; stored")
	}
	if cs.key != "" {
		b.WriteString("; key=" + sfString(cs.key))
	}
	if cs.detail != "" {
		b.WriteString("; detail=" + sfToken(cs.detail))
	}
	return b.String()
}

// sfToken returns s unchanged if it is a valid sf-token, else as an sf-string.
func sfToken(s string) string {
	if isSfToken(s) {
		return s
	}
	return sfString(s)
}

// sfString quotes s. Characters an sf-string cannot hold become spaces.
func sfString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return ' '
		}
		return r
	}, s)
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func isSfToken(s string) bool {
	if s == "" {
		return false
	}
	first := s[0]
	if !(first >= 'a' && first <= 'z' || first >= 'A' && first <= 'Z' || first == '*') {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~:/", c) >= 0:
		default:
			return false
		}
	}
	return true
}
