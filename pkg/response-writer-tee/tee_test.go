package tee

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseSaver(t *testing.T) {
	rs := NewResponseSaver(nil)
	rs.Header().Set("ETag", `"a"`)
	rs.WriteHeader(http.StatusNotModified)
	rs.WriteHeader(http.StatusOK)

	if rs.StatusCode() != http.StatusNotModified {
		t.Fatalf("Expected status 304, got %d", rs.StatusCode())
	}
	if rs.Header().Get("ETag") != `"a"` {
		t.Fatalf("Header not saved: %v", rs.Header())
	}
}

func TestResponseSaverTee(t *testing.T) {
	rec := httptest.NewRecorder()
	rs := NewResponseSaver(rec)
	rs.Header().Set("Content-Type", "text/plain")
	rs.Write([]byte("hello"))

	if rs.StatusCode() != http.StatusOK || rec.Code != http.StatusOK {
		t.Fatalf("Expected implicit 200, got %d / %d", rs.StatusCode(), rec.Code)
	}
	if string(rs.Body()) != "hello" || rec.Body.String() != "hello" {
		t.Fatalf("Body not tee'd: %q / %q", rs.Body(), rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "text/plain" {
		t.Fatalf("Header not tee'd: %v", rec.Header())
	}
}

func TestResponseSaverNothingWritten(t *testing.T) {
	rs := NewResponseSaver(nil)
	if rs.StatusCode() != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rs.StatusCode())
	}
	if len(rs.Body()) != 0 {
		t.Fatalf("Expected empty body, got %q", rs.Body())
	}
}
