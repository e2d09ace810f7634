// Package refresh revalidates stored responses out of band. Stale records that
// may still be served are queued as asynq tasks; a worker fetches them from
// the origin and merges the result into the store.
package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	cachekey "github.com/always-cache/httpcache/pkg/cache-key"
	cacheupdate "github.com/always-cache/httpcache/pkg/cache-update"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	TaskRevalidate = "httpcache:revalidate"
	// Queue all refresh tasks are put in.
	Queue = "httpcache"
)

// Payload of a TaskRevalidate task.
type Payload struct {
	Key string `json:"key"`
	// Conditional holds the validators of the stored record, if any.
	Conditional http.Header `json:"conditional,omitempty"`
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client queues refresh tasks. It implements httpcache.Refresher.
type Client struct {
	enqueuer enqueuer
	keyer    cachekey.Keyer
	log      zerolog.Logger
	// Unique suppresses identical tasks queued within this period.
	Unique  time.Duration
	Timeout time.Duration
}

// NewClient returns a client queueing tasks in the redis at redisAddr.
func NewClient(redisAddr string, keyer cachekey.Keyer, logger zerolog.Logger) *Client {
	return newClient(asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}), keyer, logger)
}

func newClient(e enqueuer, keyer cachekey.Keyer, logger zerolog.Logger) *Client {
	return &Client{
		enqueuer: e,
		keyer:    keyer,
		log:      logger.With().Str("component", "refresh").Logger(),
		Unique:   time.Minute,
		Timeout:  30 * time.Second,
	}
}

// Refresh queues the revalidation of the record under key.
// A refresh of the same record that is already queued is not an error.
func (c *Client) Refresh(ctx context.Context, key string, conditional http.Header) error {
	return c.enqueue(ctx, Payload{Key: key, Conditional: conditional}, 0)
}

// ScheduleUpdates queues refreshes of the resources named by the Cache-Update
// header of a response to an unsafe request. It returns the number of queued
// updates.
func (c *Client) ScheduleUpdates(ctx context.Context, method, rawURL string, statusCode int, header http.Header) (int, error) {
	queued := 0
	for _, update := range cacheupdate.GetCacheUpdates(method, rawURL, statusCode, header) {
		key, err := c.keyer.Prefix(http.MethodGet, update.URL)
		if err != nil {
			c.log.Warn().Err(err).Str("url", update.URL).Msg("Ignoring unparseable Cache-Update")
			continue
		}
		if err := c.enqueue(ctx, Payload{Key: key}, update.Delay); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

func (c *Client) enqueue(ctx context.Context, p Payload, delay time.Duration) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(Queue), asynq.MaxRetry(3), asynq.Timeout(c.Timeout)}
	if c.Unique > 0 {
		opts = append(opts, asynq.Unique(c.Unique))
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	info, err := c.enqueuer.EnqueueContext(ctx, asynq.NewTask(TaskRevalidate, payload), opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		c.log.Trace().Str("key", p.Key).Msg("Refresh already queued")
		return nil
	}
	if err != nil {
		return err
	}
	c.log.Trace().Str("key", p.Key).Str("id", info.ID).Dur("delay", delay).Msg("Queued refresh")
	return nil
}

// Close closes the connection to redis.
func (c *Client) Close() error {
	if closer, ok := c.enqueuer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
