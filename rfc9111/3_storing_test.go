package rfc9111

import (
	"net/http"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	var p Policy
	cc := ParseCacheControl([]string{"max-age=60"})
	for _, status := range []int{200, 203, 300, 301, 404, 410} {
		if !p.IsCacheable(cc, "GET", status) {
			t.Fatalf("Status %d should be cacheable", status)
		}
	}
	for _, status := range []int{206, 302, 304, 500} {
		if p.IsCacheable(cc, "GET", status) {
			t.Fatalf("Status %d should not be cacheable", status)
		}
	}
	if p.IsCacheable(cc, "POST", 200) {
		t.Fatal("POST should not be cacheable by default")
	}
	if !p.IsCacheable(cc, "", 200) {
		t.Fatal("Empty method means GET")
	}
}

func TestNoStoreIsNotCacheable(t *testing.T) {
	cc := ParseCacheControl([]string{"no-store, max-age=60"})
	if DefaultPolicy().IsCacheable(cc, "GET", 200) {
		t.Fatal("no-store should not be cacheable")
	}
}

func TestPrivateIsCacheable(t *testing.T) {
	cc := ParseCacheControl([]string{"private, max-age=60"})
	if !DefaultPolicy().IsCacheable(cc, "GET", 200) {
		t.Fatal("private should be cacheable in a private cache")
	}
}

func TestConfiguredPolicy(t *testing.T) {
	p := Policy{Methods: []string{"get", "POST"}, StatusCodes: []int{200, 302}}
	var cc CacheControl
	if !p.IsCacheable(cc, "POST", 302) {
		t.Fatal("Configured method and status should be cacheable")
	}
	if p.IsCacheable(cc, "GET", 404) {
		t.Fatal("404 is not configured")
	}
}

func TestHasExplicitFreshness(t *testing.T) {
	if HasExplicitFreshness(http.Header{"Content-Type": {"text/plain"}}) {
		t.Fatal("Plain header has no freshness information")
	}
	if !HasExplicitFreshness(http.Header{"Etag": {`"a"`}}) {
		t.Fatal("ETag is a validator")
	}
}

func TestStorableHeader(t *testing.T) {
	h := StorableHeader(http.Header{
		"Connection":          {"X-Foo"},
		"X-Foo":               {"1"},
		"Transfer-Encoding":   {"chunked"},
		"Proxy-Authorization": {"secret"},
		"Content-Type":        {"text/html"},
	})
	if len(h) != 1 || h.Get("Content-Type") != "text/html" {
		t.Fatalf("Header is %v", h)
	}
}
