package main

import (
	"crypto/tls"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/always-cache/httpcache/pkg/refresh"
)

// newOriginFetcher returns a fetcher sending refresh requests to the origin
// through a reverse proxy. If host is set, it is used as the Host header and
// for TLS negotiation, e.g. when the origin URL is just an IP address.
func newOriginFetcher(origin, host string) (refresh.HandlerFetcher, error) {
	originURL, err := url.Parse(origin)
	if err != nil {
		return refresh.HandlerFetcher{}, err
	}
	transport := http.DefaultTransport
	if host != "" {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				ServerName: host,
			},
		}
	}
	proxy := &httputil.ReverseProxy{
		Director:  createDirector(originURL.Scheme, originURL.Host, host),
		Transport: transport,
	}
	return refresh.HandlerFetcher{Handler: proxy}, nil
}

func createDirector(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		if hostHeader != "" {
			req.Host = hostHeader
		}
	}
}
