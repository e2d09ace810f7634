package rfc9111

import (
	"sort"
	"strings"
	"time"
)

// Directive is a Cache-Control response directive understood by this package.
// Directives outside of this set are kept as extensions and ignored by the
// freshness calculations.
type Directive int

const (
	NoStore Directive = iota
	NoCache
	Private
	Public
	MaxAge
	SMaxAge
	MustRevalidate
	Immutable
	StaleWhileRevalidate

	directiveCount
)

var directiveNames = [directiveCount]string{
	NoStore:              "no-store",
	NoCache:              "no-cache",
	Private:              "private",
	Public:               "public",
	MaxAge:               "max-age",
	SMaxAge:              "s-maxage",
	MustRevalidate:       "must-revalidate",
	Immutable:            "immutable",
	StaleWhileRevalidate: "stale-while-revalidate",
}

func (d Directive) String() string {
	if d < 0 || d >= directiveCount {
		return "unknown"
	}
	return directiveNames[d]
}

// takesDeltaSeconds reports whether the directive argument is delta-seconds.
func (d Directive) takesDeltaSeconds() bool {
	return d == MaxAge || d == SMaxAge || d == StaleWhileRevalidate
}

func lookupDirective(name string) (Directive, bool) {
	for d, n := range directiveNames {
		if n == name {
			return Directive(d), true
		}
	}
	return 0, false
}

// CacheControl implements parsing of the "Cache-Control" header (/field).
//
// §  5.2. Cache-Control
// §
// §  The "Cache-Control" header field is used to list directives for caches along
// §  the request/response chain. [...] Cache directives are identified by a token, to
// §  be compared case-insensitively, and have an optional argument that can use both
// §  token and quoted-string syntax. For the directives defined below that define
// §  arguments, recipients ought to accept both forms, even if a specific form is
// §  required for generation.
// §
// §    Cache-Control   = #cache-directive
// §
// §    cache-directive = token [ "=" ( token / quoted-string ) ]
type CacheControl struct {
	present    [directiveCount]bool
	args       [directiveCount]string
	deltas     [directiveCount]time.Duration
	extensions map[string]string
	// Dropped lists the directives that were present but could not be used,
	// e.g. "max-age=-1" or "max-age=soon". They are reported for diagnostics only.
	Dropped []string
}

// ParseCacheControl takes Cache-Control headers as a slice of strings
// and returns an instance of `CacheControl`.
// It never fails: malformed directives are dropped and listed in `Dropped`.
func ParseCacheControl(headers []string) CacheControl {
	var c CacheControl
	for _, header := range headers {
		// process directives "#" means comma-separated list
		for _, directive := range splitList(header) {
			c.add(directive)
		}
	}
	return c
}

func (c *CacheControl) add(directive string) {
	directive = strings.TrimSpace(directive)
	if directive == "" {
		// §  empty list elements do not contribute to the count of elements present
		return
	}
	token, arg, hasArg := strings.Cut(directive, "=")
	name := getCacheControlDirectiveName(token)
	if !isToken(name) {
		c.Dropped = append(c.Dropped, directive)
		return
	}
	if hasArg {
		arg = getCacheControlDirectiveArgument(strings.TrimSpace(arg))
	}

	d, known := lookupDirective(name)
	if !known {
		if c.extensions == nil {
			c.extensions = make(map[string]string)
		}
		if _, ok := c.extensions[name]; !ok {
			c.extensions[name] = arg
		}
		return
	}
	// §  When there is more than one value present for a given directive
	// §  (e.g., two Expires header field lines or multiple Cache-Control:
	// §  max-age directives), either the first occurrence should be used or
	// §  the response should be considered stale.
	if c.present[d] {
		return
	}
	if d.takesDeltaSeconds() {
		delta, ok := parseDeltaSeconds(arg)
		if !hasArg || !ok {
			c.Dropped = append(c.Dropped, directive)
			return
		}
		c.deltas[d] = delta
	}
	c.present[d] = true
	c.args[d] = arg
}

// Has returns whether the specified directive is present.
func (c CacheControl) Has(d Directive) bool {
	if d < 0 || d >= directiveCount {
		return false
	}
	return c.present[d]
}

// Get returns the value (/argument) of the specified directive,
// along with a boolean indicating whether this directive is present.
// Both recognized and extension directives can be retrieved.
func (c CacheControl) Get(directive string) (string, bool) {
	name := getCacheControlDirectiveName(directive)
	if d, ok := lookupDirective(name); ok {
		return c.args[d], c.present[d]
	}
	val, ok := c.extensions[name]
	return val, ok
}

// HasDirective returns whether the specified directive is present
func (c CacheControl) HasDirective(directive string) bool {
	_, ok := c.Get(directive)
	return ok
}

// Extensions returns a copy of the unrecognized directives.
func (c CacheControl) Extensions() map[string]string {
	ext := make(map[string]string, len(c.extensions))
	for name, arg := range c.extensions {
		ext[name] = arg
	}
	return ext
}

// IsZero reports whether no directive (recognized or not) is present.
func (c CacheControl) IsZero() bool {
	for _, p := range c.present {
		if p {
			return false
		}
	}
	return len(c.extensions) == 0
}

// String renders the directives as a single Cache-Control field value.
// Recognized directives come first, followed by extensions sorted by name.
func (c CacheControl) String() string {
	parts := make([]string, 0, directiveCount)
	for d := Directive(0); d < directiveCount; d++ {
		if !c.present[d] {
			continue
		}
		switch {
		case d.takesDeltaSeconds():
			parts = append(parts, d.String()+"="+toDeltaSeconds(c.deltas[d]))
		case c.args[d] != "":
			parts = append(parts, d.String()+"="+quoteArgument(c.args[d]))
		default:
			parts = append(parts, d.String())
		}
	}
	names := make([]string, 0, len(c.extensions))
	for name := range c.extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if arg := c.extensions[name]; arg != "" {
			parts = append(parts, name+"="+quoteArgument(arg))
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ", ")
}

// getCacheControlDirectiveName returns a normalized name for the given directive.
func getCacheControlDirectiveName(token string) string {
	// §  [...] to be compared case-insensitively [...]
	return strings.ToLower(strings.TrimSpace(token))
}

// getCacheControlDirectiveArgument returns the directive argument in token form,
// i.e. it converts the argument from "quoted-string" to "token" form if needed.
func getCacheControlDirectiveArgument(arg string) string {
	// §  [...] argument that can use both token and quoted-string syntax. [...]
	if len(arg) >= 2 && arg[0] == '"' && arg[len(arg)-1] == '"' {
		return unescapeQuoted(arg[1 : len(arg)-1])
	}
	return arg
}

func unescapeQuoted(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

func quoteArgument(arg string) string {
	if isToken(arg) {
		return arg
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(arg) + `"`
}

// splitList splits a "#" list on commas that are not inside a quoted-string.
func splitList(header string) []string {
	items := make([]string, 0, 4)
	inQuotes, escaped := false, false
	start := 0
	for i := 0; i < len(header); i++ {
		switch ch := header[i]; {
		case escaped:
			escaped = false
		case ch == '\\' && inQuotes:
			escaped = true
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			items = append(items, header[start:i])
			start = i + 1
		}
	}
	return append(items, header[start:])
}

// isToken reports whether s is a non-empty RFC 9110 token.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

// §  5.2.2.  Response Directives
// §
// §  This section defines cache response directives. A cache MUST obey the Cache-
// §  Control directives defined in this section.

// MaxAge returns "max-age" as a duration, along with a boolean indicating
// whether the "max-age" directive was present.
//
// §  5.2.2.1. max-age
// §
// §  The max-age response directive indicates that the response is to be considered
// §  stale after its age is greater than the specified number of seconds.
func (c CacheControl) MaxAge() (time.Duration, bool) {
	return c.getDeltaSeconds(MaxAge)
}

// SMaxAge returns "s-maxage" as a duration.
//
// §  5.2.2.10.  s-maxage
// §
// §     The s-maxage response directive indicates that, for a shared cache,
// §     the maximum age specified by this directive overrides the maximum age
// §     specified by either the max-age directive or the Expires header
// §     field.
func (c CacheControl) SMaxAge() (time.Duration, bool) {
	return c.getDeltaSeconds(SMaxAge)
}

// StaleWhileRevalidate returns the "stale-while-revalidate" window.
//
// §  RFC 5861, 3.  The stale-while-revalidate Cache-Control Extension
// §
// §     When present in an HTTP response, the stale-while-revalidate Cache-
// §     Control extension indicates that caches MAY serve the response in
// §     which it appears after it becomes stale, up to the indicated number
// §     of seconds.
func (c CacheControl) StaleWhileRevalidate() (time.Duration, bool) {
	return c.getDeltaSeconds(StaleWhileRevalidate)
}

// getDeltaSeconds returns the "delta-seconds" as `time.Duration`,
// as well as a boolean indicating whether the directive was set.
//
// Examples:
// directive    -> 0,  false (dropped while parsing)
// directive=0  -> 0,  true
// directive=60 -> 60, true
func (c CacheControl) getDeltaSeconds(d Directive) (time.Duration, bool) {
	if !c.present[d] {
		return 0, false
	}
	return c.deltas[d], true
}

// §  5.2.2.4.  no-cache
// §
// §     The no-cache response directive, in its unqualified form (without an
// §     argument), indicates that the response MUST NOT be used to satisfy
// §     any other request without forwarding it for validation and receiving
// §     a successful response; see Section 4.3.
// §
// §        |  *Note:* The qualified form of the directive is often handled by
// §        |  caches as if an unqualified no-cache directive was received;
// §        |  that is, the special handling for the qualified form is not
// §        |  widely implemented.
//
// The qualified form is treated like the unqualified one.

// §  5.2.2.5.  no-store
// §
// §     The no-store response directive indicates that a cache MUST NOT store
// §     any part of either the immediate request or the response and MUST NOT
// §     use the response to satisfy any other request.

// §  5.2.3.  Extension Directives
// §
// §     The Cache-Control header field can be extended through the use of one
// §     or more extension cache directives.  A cache MUST ignore unrecognized
// §     cache directives.
//
// immutable (RFC 8246) and stale-while-revalidate (RFC 5861) are extensions
// this cache understands; anything else ends up in `Extensions()`.
