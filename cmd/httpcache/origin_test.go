package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOriginFetcher(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"a"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Cache-Control", "max-age=60")
		w.Write([]byte(r.Host + r.URL.Path))
	}))
	defer origin.Close()

	fetcher, err := newOriginFetcher(origin.URL, "www.example.com")
	if err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest("GET", "https://www.example.com/page", nil)
	res, err := fetcher.Fetch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK || string(res.Body) != "www.example.com/page" {
		t.Fatalf("Unexpected response %d %q", res.StatusCode, res.Body)
	}
	if res.URL != "https://www.example.com/page" {
		t.Fatalf("Response URL should be the public one, got %s", res.URL)
	}

	req.Header.Set("If-None-Match", `"a"`)
	res, err = fetcher.Fetch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusNotModified {
		t.Fatalf("Expected 304, got %d", res.StatusCode)
	}
}
