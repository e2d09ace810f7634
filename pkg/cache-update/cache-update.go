package cacheupdate

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/httpcache/rfc9111"
)

// CacheUpdate represents a single `Cache-Update` entry.
type CacheUpdate struct {
	// Fully resolved URL of the resource to update.
	URL string
	// Update delay, i.e. delay update by this duration.
	Delay time.Duration
}

var delayDirective = regexp.MustCompile(`(?i)\bdelay=(\d+)`)

// GetCacheUpdates gets the updates requested by a response to an unsafe
// request. Relative paths are resolved against the request URL.
// Responses that do not invalidate (safe method, error status) request none.
func GetCacheUpdates(method, rawURL string, statusCode int, header http.Header) []CacheUpdate {
	if !rfc9111.InvalidatesTarget(method, statusCode) {
		return nil
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	updates := make([]CacheUpdate, 0)
	for _, update := range rfc9111.GetListHeader(header, "Cache-Update") {
		// path is the first element
		path := strings.TrimSpace(strings.Split(update, ";")[0])
		if path == "" {
			continue
		}
		ref, err := url.Parse(path)
		if err != nil {
			continue
		}
		updates = append(updates, CacheUpdate{
			URL:   base.ResolveReference(ref).String(),
			Delay: getDelay(update),
		})
	}
	return updates
}

// getDelay returns the delay to wait before updating the cache for from the `Cache-Update` header parameter.
// The delay directive syntax is `delay=N`, where N is the number of seconds to wait.
// Directives are separated by a semicolon.
// If no delay directive is found, it returns 0.
func getDelay(update string) time.Duration {
	if matches := delayDirective.FindStringSubmatch(update); matches != nil {
		if delay, err := strconv.Atoi(matches[1]); err == nil {
			return time.Duration(delay) * time.Second
		}
	}
	return 0
}
