package rfc9111

import (
	"net/http"
	"strings"
)

// Policy holds the request methods and response status codes a cache stores.
// The zero value uses DefaultMethods and DefaultStatusCodes.
type Policy struct {
	Methods     []string
	StatusCodes []int
}

// DefaultMethods are the request methods cached by default.
var DefaultMethods = []string{http.MethodGet}

// DefaultStatusCodes are the heuristically cacheable status codes that are
// cached by default (Section 4.2.2 lists them; 203, 300, 301, 404 and 410 are
// the ones a plain key/blob store can serve as-is, along with 200).
var DefaultStatusCodes = []int{
	http.StatusOK,
	http.StatusNonAuthoritativeInfo,
	http.StatusMultipleChoices,
	http.StatusMovedPermanently,
	http.StatusNotFound,
	http.StatusGone,
}

// DefaultPolicy returns a policy with the default methods and status codes.
func DefaultPolicy() Policy {
	return Policy{
		Methods:     append([]string(nil), DefaultMethods...),
		StatusCodes: append([]int(nil), DefaultStatusCodes...),
	}
}

// § 3.  Storing Responses in Caches
//
// IsCacheable returns whether a response with the given directives, to a
// request with the given method, may be stored.
func (p Policy) IsCacheable(cc CacheControl, method string, statusCode int) bool {
	// §    A cache MUST NOT store a response to a request unless:
	// §      *  the request method is understood by the cache;
	return p.methodIsUnderstood(method) &&
		// §  *  the response status code is final (see Section 15 of [HTTP]);
		responseStatusCodeIsFinal(statusCode) &&
		// §  *  if the response status code is 206 or 304, or the must-understand
		// §     cache directive (see Section 5.2.2.3) is present: the cache
		// §     understands the response status code;
		//
		// Only the configured status codes are understood, which also covers
		// 206 and 304 (never stored on their own).
		p.statusCodeIsUnderstood(statusCode) &&
		// §  *  the no-store cache directive is not present in the response (see
		// §     Section 5.2.2.5);
		!cc.Has(NoStore)
	// §  *  if the cache is shared: the private response directive is either
	// §     not present or allows a shared cache to store a modified response;
	// §     see Section 5.2.2.7);
	//
	// This is a private cache, so "private" does not prevent storage.
}

// §  In this context, a cache has "understood" a request method or a
// §  response status code if it recognizes it and implements all specified
// §  caching-related behavior.

func (p Policy) methodIsUnderstood(method string) bool {
	if method == "" {
		method = http.MethodGet
	}
	methods := p.Methods
	if len(methods) == 0 {
		methods = DefaultMethods
	}
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (p Policy) statusCodeIsUnderstood(statusCode int) bool {
	codes := p.StatusCodes
	if len(codes) == 0 {
		codes = DefaultStatusCodes
	}
	for _, code := range codes {
		if code == statusCode {
			return true
		}
	}
	return false
}

func responseStatusCodeIsFinal(statusCode int) bool {
	return statusCode >= 200 && statusCode <= 599
}

// §  Note that, in normal operation, some caches will not store a response
// §  that has neither a cache validator nor an explicit expiration time,
// §  as such responses are not usually useful to store.  However, caches
// §  are not prohibited from storing such responses.
//
// HasExplicitFreshness returns whether the header carries anything the
// freshness or validation model can work with: Cache-Control, Expires or a
// validator. Responses without any of these are stored as immutable
// ("generic mode") by the store.
func HasExplicitFreshness(header http.Header) bool {
	return len(header.Values("Cache-Control")) > 0 ||
		len(header.Values("Expires")) > 0 ||
		header.Get("ETag") != "" ||
		header.Get("Last-Modified") != ""
}
