package httpcache

import (
	"net/http"
	"time"

	"github.com/always-cache/httpcache/cache"
	serializer "github.com/always-cache/httpcache/pkg/response-serializer"
	"github.com/always-cache/httpcache/rfc9111"
	"github.com/google/uuid"
)

// Response is a response handed to the store.
type Response struct {
	// Method of the request; empty means GET.
	Method string
	// URL of the request. It is only used to match rules.
	URL string
	// StatusCode of the response; zero means 200.
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r Response) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func (r Response) statusCode() int {
	if r.StatusCode == 0 {
		return http.StatusOK
	}
	return r.StatusCode
}

// Record is a stored response. The embedded StoredResponse holds what was
// captured when the response was stored; age and freshness are never stored
// and are computed by the methods below for a given point in time.
type Record struct {
	Key        string
	StatusCode int
	Header     http.Header
	Body       []byte
	// Version changes on every write of the record.
	Version string

	rfc9111.StoredResponse
}

// newRecord captures the directives and validators of the header.
// The header is used as is; callers pass a storable copy. The storage time is
// truncated to the resolution providers persist.
func newRecord(key string, statusCode int, header http.Header, body []byte, storedAt time.Time) Record {
	storedAt = storedAt.Truncate(time.Microsecond)
	return Record{
		Key:            key,
		StatusCode:     statusCode,
		Header:         header,
		Body:           body,
		Version:        uuid.NewString(),
		StoredResponse: rfc9111.NewStoredResponse(header, storedAt),
	}
}

// CurrentAge returns the age of the record at time now.
func (r Record) CurrentAge(now time.Time) time.Duration {
	return rfc9111.CurrentAge(r.StoredResponse, now)
}

func (r Record) FreshnessLifetime() time.Duration {
	return rfc9111.FreshnessLifetime(r.StoredResponse)
}

func (r Record) IsFresh(now time.Time) bool {
	return rfc9111.IsFresh(r.StoredResponse, now)
}

func (r Record) Verdict(now time.Time) rfc9111.Verdict {
	return rfc9111.Evaluate(r.StoredResponse, now)
}

// TimeToLive returns the remaining freshness in seconds, negative if stale.
func (r Record) TimeToLive(now time.Time) int {
	return rfc9111.TimeToLive(r.StoredResponse, now)
}

// MayServeStale returns whether the stale record may be served while it is
// revalidated out of band (stale-while-revalidate).
func (r Record) MayServeStale(now time.Time) bool {
	return rfc9111.MayServeStale(r.StoredResponse, now)
}

// ConditionalHeaders returns the validation request header fields.
func (r Record) ConditionalHeaders() http.Header {
	return rfc9111.ConditionalHeaders(r.StoredResponse)
}

// Immutable reports whether the record never becomes stale on its own.
func (r Record) Immutable() bool {
	return r.CacheControl.Has(rfc9111.Immutable)
}

func (r Record) entry() (cache.Entry, error) {
	head, err := serializer.HeadToBytes(serializer.Head{StatusCode: r.StatusCode, Header: r.Header})
	if err != nil {
		return cache.Entry{}, err
	}
	e := cache.Entry{
		Key:          r.Key,
		Blob:         r.Body,
		Head:         head,
		StoredAt:     r.StoredAt,
		ResponseDate: r.ResponseDate,
		Version:      r.Version,
	}
	if r.HasAge {
		age := r.Age
		e.Age = &age
	}
	return e, nil
}

// recordFromEntry restores a record. The persisted timestamps take
// precedence over what the header says.
func recordFromEntry(e cache.Entry) (Record, error) {
	head, err := serializer.BytesToHead(e.Head)
	if err != nil {
		return Record{}, err
	}
	r := Record{
		Key:            e.Key,
		StatusCode:     head.StatusCode,
		Header:         head.Header,
		Body:           e.Blob,
		Version:        e.Version,
		StoredResponse: rfc9111.NewStoredResponse(head.Header, e.StoredAt),
	}
	r.ResponseDate = e.ResponseDate
	r.Age, r.HasAge = 0, e.Age != nil
	if e.Age != nil {
		r.Age = *e.Age
	}
	return r, nil
}

// Lookup is the result of a Get.
type Lookup struct {
	Verdict rfc9111.Verdict
	// Record is nil if the verdict is Absent.
	Record *Record
	// ServeStale is set for stale records that may be served while they are
	// revalidated (stale-while-revalidate).
	ServeStale bool
}

// Found reports whether a record was found.
func (l Lookup) Found() bool {
	return l.Record != nil
}
