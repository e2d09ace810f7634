// Package rules adjusts the Cache-Control of responses before they are stored,
// e.g. to make an origin that sends no caching headers cacheable.
package rules

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

type Rules []Rule

// Rule matches requests by method, path, path prefix and query.
// The first matching rule is applied.
type Rule struct {
	Prefix string `yaml:"prefix"`
	Path   string `yaml:"path"`
	// Method defaults to GET.
	Method string `yaml:"method"`
	// Default is used as Cache-Control if the response has none.
	Default string `yaml:"default"`
	// Override replaces the Cache-Control of the response.
	Override string `yaml:"override"`
	// Query matches query parameters; an empty value only requires presence.
	Query   map[string]string `yaml:"query"`
	Headers map[string]string `yaml:"headers"`
}

// Apply returns the header with the first matching rule applied. The given
// header is not modified. Rules are only applied to 200 responses.
func (r Rules) Apply(method, rawURL string, statusCode int, header http.Header) http.Header {
	if statusCode != 0 && statusCode != http.StatusOK {
		return header
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		log.Debug().Err(err).Str("url", rawURL).Msg("Not applying rules to unparseable URL")
		return header
	}
	rule := r.find(method, u)
	if rule == nil {
		return header
	}
	applied := header.Clone()
	if applied == nil {
		applied = make(http.Header)
	}
	applyRule(*rule, applied)
	return applied
}

func applyRule(rule Rule, header http.Header) {
	if rule.Override != "" {
		log.Trace().Msg("Overriding Cache-Control header")
		header.Set("Cache-Control", rule.Override)
	} else if rule.Default != "" && header.Get("Cache-Control") == "" {
		log.Trace().Msg("Applying default Cache-Control header")
		header.Set("Cache-Control", rule.Default)
	}
	for name, value := range rule.Headers {
		log.Trace().Msgf("Setting header %s", name)
		header.Set(name, value)
	}
}

func (r Rules) find(method string, u *url.URL) *Rule {
	if method == "" {
		method = http.MethodGet
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	log.Trace().Msgf("Finding rule for request %s:%s", method, path)
rulesLoop:
	for i, rule := range r {
		ruleMethod := rule.Method
		if ruleMethod == "" {
			ruleMethod = http.MethodGet
		}
		if !strings.EqualFold(ruleMethod, method) {
			continue
		}
		if rule.Path != "" && rule.Path != path {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(path, rule.Prefix) {
			continue
		}
		if len(rule.Query) > 0 {
			qry := u.Query()
			for name, value := range rule.Query {
				if value == "" && !qry.Has(name) {
					continue rulesLoop
				} else if value != "" && qry.Get(name) != value {
					continue rulesLoop
				}
			}
		}
		return &r[i]
	}
	return nil
}
