package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/always-cache/httpcache"
	tee "github.com/always-cache/httpcache/pkg/response-writer-tee"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Fetcher performs a request against the origin.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (httpcache.Response, error)
}

type FetcherFunc func(ctx context.Context, req *http.Request) (httpcache.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (httpcache.Response, error) {
	return f(ctx, req)
}

// HandlerFetcher fetches by serving the request with a handler, typically a
// reverse proxy to the origin, and saving what it writes.
type HandlerFetcher struct {
	Handler http.Handler
}

func (f HandlerFetcher) Fetch(ctx context.Context, req *http.Request) (httpcache.Response, error) {
	rs := tee.NewResponseSaver(nil)
	f.Handler.ServeHTTP(rs, req.WithContext(ctx))
	if err := ctx.Err(); err != nil {
		return httpcache.Response{}, err
	}
	return httpcache.Response{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: rs.StatusCode(),
		Header:     rs.Header(),
		Body:       rs.Body(),
	}, nil
}

// Worker processes TaskRevalidate tasks: it rebuilds the request from the
// key, sends it with the queued validators and hands the response to
// Store.Revalidate.
type Worker struct {
	store   *httpcache.Store
	fetcher Fetcher
	log     zerolog.Logger
}

func NewWorker(store *httpcache.Store, fetcher Fetcher, logger zerolog.Logger) *Worker {
	return &Worker{
		store:   store,
		fetcher: fetcher,
		log:     logger.With().Str("component", "refresh").Logger(),
	}
}

// ProcessTask implements asynq.Handler.
func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		w.log.Error().Err(err).Msg("Dropping refresh with bad payload")
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}
	log := w.log.With().Str("key", p.Key).Logger()

	req, err := w.store.Keyer().Request(p.Key)
	if err != nil {
		log.Error().Err(err).Msg("Dropping refresh of unparseable key")
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}
	for name, values := range p.Conditional {
		req.Header[name] = values
	}

	log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("Requesting content from origin")
	res, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		log.Warn().Err(err).Msg("Could not fetch from origin")
		return err
	}

	l, err := w.store.Revalidate(ctx, p.Key, res)
	if errors.Is(err, httpcache.ErrNotCacheable) {
		log.Debug().Int("status", res.StatusCode).Msg("Origin response is not cacheable")
		return nil
	}
	if err != nil {
		return err
	}
	log.Trace().Stringer("verdict", l.Verdict).Msg("Refreshed")
	return nil
}

// Register adds the worker to the mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.Handle(TaskRevalidate, w)
}

// NewServer returns an asynq server processing the refresh queue.
func NewServer(redisAddr string, concurrency int, logger zerolog.Logger) *asynq.Server {
	return asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{Queue: 1},
		Logger:      asynqLogger{logger.With().Str("component", "asynq").Logger()},
	})
}

// asynqLogger writes asynq's logs to zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
