// Package cachekey builds and parses the keys records are stored under.
//
// A key is "<namespace>:<METHOD>:<normalized URL>\t" followed by one
// "\n<name>: <value>" line per request header nominated by the response's Vary.
package cachekey

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/always-cache/httpcache/rfc9111"
)

var ErrMalformedKey = errors.New("malformed cache key")

const (
	namespaceSeparator = ":"
	methodSeparator    = ":"
	varySeparator      = "\t"
	varyLineSeparator  = "\n"
)

type Keyer struct {
	// Namespace separates caches sharing the same storage. May be empty.
	Namespace string
}

func New(namespace string) Keyer {
	return Keyer{Namespace: namespace}
}

// NamespacePrefix returns the prefix shared by all keys of this Keyer.
func (k Keyer) NamespacePrefix() string {
	if k.Namespace == "" {
		return ""
	}
	return k.Namespace + namespaceSeparator
}

// MethodPrefix returns the key prefix of all records stored for the method.
func (k Keyer) MethodPrefix(method string) string {
	return k.NamespacePrefix() + normalizeMethod(method) + methodSeparator
}

// Prefix returns the key for a request without the vary headers.
// All stored variants of a request share this prefix.
func (k Keyer) Prefix(method, rawURL string) (string, error) {
	u, err := Normalize(rawURL)
	if err != nil {
		return "", err
	}
	return k.MethodPrefix(method) + u + varySeparator, nil
}

// WithVary returns the full key based on a key prefix and the request and
// response header involved. Only nominated headers that are present on the
// request become part of the key. Vary: * is ignored.
func (k Keyer) WithVary(prefix string, reqHeader, resHeader http.Header) string {
	names := make([]string, 0)
	for _, name := range rfc9111.GetListHeader(resHeader, "Vary") {
		name = strings.ToLower(name)
		if name == "*" || len(reqHeader.Values(name)) == 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(prefix)
	last := ""
	for _, name := range names {
		if name == last {
			continue
		}
		last = name
		b.WriteString(varyLineSeparator + name + ": " + strings.Join(reqHeader.Values(name), ", "))
	}
	return b.String()
}

// Parsed is the request identity recovered from a key.
type Parsed struct {
	Method string
	URL    string
	// Vary holds the request header values that are part of the key.
	Vary http.Header
}

// Parse recovers method, URL and vary headers from a key built by this Keyer.
func (k Keyer) Parse(key string) (Parsed, error) {
	rest, ok := strings.CutPrefix(key, k.NamespacePrefix())
	if !ok {
		return Parsed{}, fmt.Errorf("%w: namespace does not match: %s", ErrMalformedKey, key)
	}
	identity, vary, found := strings.Cut(rest, varySeparator)
	if !found {
		return Parsed{}, fmt.Errorf("%w: %s", ErrMalformedKey, key)
	}
	method, uri, found := strings.Cut(identity, methodSeparator)
	if !found || method == "" || uri == "" {
		return Parsed{}, fmt.Errorf("%w: %s", ErrMalformedKey, key)
	}
	parsed := Parsed{Method: method, URL: uri, Vary: make(http.Header)}
	for _, line := range strings.Split(vary, varyLineSeparator) {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ": ")
		if !found {
			return Parsed{}, fmt.Errorf("%w: vary line %q", ErrMalformedKey, line)
		}
		parsed.Vary.Add(name, value)
	}
	return parsed, nil
}

// Request generates a request that is caching-wise equal to the request that
// resulted in the key, i.e. it carries the vary headers.
func (k Keyer) Request(key string) (*http.Request, error) {
	parsed, err := k.Parse(key)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(parsed.Method, parsed.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = parsed.Vary
	return req, nil
}

// Normalize returns the URL with lower-case scheme and host, without default
// port and fragment, with "/" for an empty path and the query sorted by name.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		host = strings.TrimSuffix(host, ":"+port)
	}
	u.Host = host
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String(), nil
}

func normalizeMethod(method string) string {
	if method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(method)
}
