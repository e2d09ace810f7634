package rfc9111

import "net/http"

// §  4.3.3.  Handling a Validation Response
// §
// §     Cache handling of a response to a conditional request depends upon
// §     its status code:
// §
// §     *  A 304 (Not Modified) response status code indicates that the
// §        stored response can be updated and reused; see Section 4.3.4.
// §
// §     *  A full response (i.e., one containing content) indicates that none
// §        of the stored responses nominated in the conditional request are
// §        suitable.  Instead, the cache MUST use the full response to
// §        satisfy the request.  The cache MAY store such a full response,
// §        subject to its constraints (see Section 3).
// §
// §     *  However, if a cache receives a 5xx (Server Error) response while
// §        attempting to validate a response, it can either forward this
// §        response to the requesting client or act as if the server failed
// §        to respond.  In the latter case, the cache can send a previously
// §        stored response, subject to its constraints on doing so (see
// §        Section 4.2.4), or retry the validation request.

// ValidationOutcome classifies the response to a validation request.
type ValidationOutcome int

const (
	// NotModified means the stored response is updated and reused.
	NotModified ValidationOutcome = iota
	// FullResponse means the stored response is replaced.
	FullResponse
	// ValidationFailed covers every other status. The stored response is
	// neither updated nor replaced.
	ValidationFailed
)

func (o ValidationOutcome) String() string {
	switch o {
	case NotModified:
		return "not-modified"
	case FullResponse:
		return "full-response"
	default:
		return "failed"
	}
}

// ClassifyValidationResponse returns the outcome for a validation response status.
// Only 200 is taken as a replacement: other full responses (including errors)
// are treated as a failed validation and leave the decision to the caller.
func ClassifyValidationResponse(statusCode int) ValidationOutcome {
	switch statusCode {
	case http.StatusNotModified:
		return NotModified
	case http.StatusOK:
		return FullResponse
	default:
		return ValidationFailed
	}
}

// MustNotServeOnFailure returns whether the stored response has to be
// discarded when validation fails, i.e. it carries must-revalidate.
//
// §  5.2.2.2.  must-revalidate
// §
// §     The must-revalidate response directive indicates that once the
// §     response has become stale, a cache MUST NOT reuse that response to
// §     satisfy another request until it has been successfully validated by
// §     the origin, as defined by Section 4.3.
func MustNotServeOnFailure(sr StoredResponse) bool {
	return sr.CacheControl.Has(MustRevalidate)
}
