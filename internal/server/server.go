// Package server exposes the store over a small admin HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/httpcache"
	"github.com/always-cache/httpcache/rfc9111"
	"github.com/always-cache/httpcache/rfc9211"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

var errMissingKey = errors.New("missing key parameter")

type Server struct {
	Router *chi.Mux
	store  *httpcache.Store
	log    zerolog.Logger
	now    func() time.Time
	name   string
	// ceiling used by /sweep without a ceiling parameter
	ceiling time.Duration
}

type Options struct {
	Store  *httpcache.Store
	Logger zerolog.Logger
	// Name of the cache in Cache-Status. Defaults to "httpcache".
	Name         string
	SweepCeiling time.Duration
	// Clock for sweeps and listings. time.Now if nil.
	Now func() time.Time
}

func New(opts Options) *Server {
	s := &Server{
		Router:  chi.NewRouter(),
		store:   opts.Store,
		log:     opts.Logger,
		now:     opts.Now,
		name:    opts.Name,
		ceiling: opts.SweepCeiling,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.name == "" {
		s.name = "httpcache"
	}

	r := s.Router
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Trace().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Admin request")
	}))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/entries", s.handleList)
	r.Delete("/entries", s.handleClear)
	r.Get("/entry", s.handleGet)
	r.Delete("/entry", s.handleDelete)
	r.Get("/entry/conditional", s.handleConditional)
	r.Post("/sweep", s.handleSweep)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// entry is the JSON representation of a record.
type entry struct {
	Key          string     `json:"key"`
	Status       int        `json:"status"`
	Verdict      string     `json:"verdict"`
	TTL          int        `json:"ttl"`
	Age          int        `json:"age"`
	StoredAt     time.Time  `json:"storedAt"`
	ResponseDate time.Time  `json:"responseDate"`
	ETag         string     `json:"etag,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty"`
	Immutable    bool       `json:"immutable,omitempty"`
}

func newEntry(rec httpcache.Record, now time.Time) entry {
	e := entry{
		Key:          rec.Key,
		Status:       rec.StatusCode,
		Verdict:      rec.Verdict(now).String(),
		TTL:          rec.TimeToLive(now),
		Age:          int(rec.CurrentAge(now).Seconds()),
		StoredAt:     rec.StoredAt,
		ResponseDate: rec.ResponseDate,
		ETag:         rec.ETag,
		Immutable:    rec.Immutable(),
	}
	if !rec.LastModified.IsZero() {
		lm := rec.LastModified
		e.LastModified = &lm
	}
	return e
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		if limit, err = strconv.Atoi(l); err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}
	records, err := s.store.Match(r.Context(), r.URL.Query().Get("match"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := s.now()
	entries := make([]entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, newEntry(rec, now))
	}
	s.writeJSON(w, r, entries)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGet serves the stored response with a Cache-Status describing it.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	l := s.store.Lookup(r.Context(), key)
	status := rfc9211.New(s.name)
	status.Key(key)
	if !l.Found() {
		status.Forward(rfc9211.FwdUriMiss)
		w.Header().Set("Cache-Status", status.String())
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	rec := l.Record
	now := s.now()
	switch {
	case l.Verdict == rfc9111.Fresh:
		status.Hit()
	case l.ServeStale:
		status.Hit()
		status.Detail("stale-while-revalidate")
	default:
		status.Forward(rfc9211.FwdStale)
		status.Detail(strings.ToLower(l.Verdict.String()))
	}
	status.TTL(rec.TimeToLive(now))

	for name, values := range rec.Header {
		w.Header()[name] = values
	}
	w.Header().Set("Age", strconv.Itoa(int(rec.CurrentAge(now).Seconds())))
	w.Header().Set("Cache-Status", status.String())
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Body)))
	w.WriteHeader(rec.StatusCode)
	if r.Method != http.MethodHead {
		w.Write(rec.Body)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), key); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConditional(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	header, err := s.store.ConditionalHeaders(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if header == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, r, header)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	ceiling := s.ceiling
	if c := r.URL.Query().Get("ceiling"); c != "" {
		var err error
		if ceiling, err = time.ParseDuration(c); err != nil || ceiling < 0 {
			http.Error(w, "invalid ceiling", http.StatusBadRequest)
			return
		}
	}
	deleted, err := s.store.Sweep(r.Context(), s.now(), ceiling)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	hlog.FromRequest(r).Info().Int("deleted", deleted).Dur("ceiling", ceiling).Msg("Swept cache on request")
	s.writeJSON(w, r, map[string]int{"deleted": deleted})
}

func (s *Server) key(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, errMissingKey.Error(), http.StatusBadRequest)
		return "", false
	}
	return key, true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Could not write response")
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).Msg("Admin request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
