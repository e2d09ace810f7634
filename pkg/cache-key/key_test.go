package cachekey

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestRequestFromKey(t *testing.T) {
	keyer := New("this-is-the-origin")
	key, err := keyer.Prefix("GET", "http://dev.localhost/page")
	if err != nil {
		t.Fatal(err)
	}
	req, err := keyer.Request(key)
	if err != nil {
		t.Fatalf("%s: %s", key, err)
	}
	if url := req.URL.String(); url != "http://dev.localhost/page" {
		t.Fatalf("Created request url for key %s is %s", key, url)
	}
}

func TestPrefixIncludesNamespace(t *testing.T) {
	namespace := "this-is-the-origin"
	key, _ := New(namespace).Prefix("get", "https://example.com")
	if !strings.HasPrefix(key, namespace+":GET:") {
		t.Fatalf("Key is %s", key)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"HTTPS://Example.COM":                  "https://example.com/",
		"http://example.com:80/a?b=2&a=1#frag": "http://example.com/a?a=1&b=2",
		"https://example.com:443/":             "https://example.com/",
		"https://example.com:8443/x":           "https://example.com:8443/x",
		"/relative?z=1&y=2":                    "/relative?y=2&z=1",
	}
	for in, want := range tests {
		got, err := Normalize(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Fatalf("Normalize(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestEquivalentURLsShareKey(t *testing.T) {
	keyer := New("")
	a, _ := keyer.Prefix("GET", "https://Example.com:443?b=1&a=2")
	b, _ := keyer.Prefix("", "https://example.com/?a=2&b=1")
	if a != b {
		t.Fatalf("Keys differ: %q and %q", a, b)
	}
}

func TestWithVary(t *testing.T) {
	keyer := New("ns")
	prefix, _ := keyer.Prefix("GET", "https://example.com/")
	reqHeader := http.Header{
		"Accept-Language": {"fi"},
		"Accept-Encoding": {"gzip"},
	}
	resHeader := http.Header{"Vary": {"Accept-Language, X-Absent", "accept-encoding"}}
	key := keyer.WithVary(prefix, reqHeader, resHeader)
	want := prefix + "\naccept-encoding: gzip\naccept-language: fi"
	if key != want {
		t.Fatalf("Key is %q", key)
	}

	parsed, err := keyer.Parse(key)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Method != "GET" || parsed.URL != "https://example.com/" {
		t.Fatalf("Parsed is %+v", parsed)
	}
	if parsed.Vary.Get("Accept-Language") != "fi" || parsed.Vary.Get("Accept-Encoding") != "gzip" {
		t.Fatalf("Vary is %v", parsed.Vary)
	}
	if _, ok := parsed.Vary["X-Absent"]; ok {
		t.Fatal("Absent header should not be part of the key")
	}
}

func TestVaryStar(t *testing.T) {
	keyer := New("")
	prefix, _ := keyer.Prefix("GET", "https://example.com/")
	if key := keyer.WithVary(prefix, http.Header{}, http.Header{"Vary": {"*"}}); key != prefix {
		t.Fatalf("Key is %q", key)
	}
}

func TestParseMalformed(t *testing.T) {
	keyer := New("ns")
	for _, key := range []string{"other:GET:/\t", "ns:GET:/", "ns:/\t"} {
		if _, err := keyer.Parse(key); !errors.Is(err, ErrMalformedKey) {
			t.Fatalf("%q: error is %v", key, err)
		}
	}
}
