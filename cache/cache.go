package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// sharedLoadTimeout bounds a load that has outlived the caller that started it.
const sharedLoadTimeout = 30 * time.Second

// Client is the read-through cache handed to consumers. Create one per
// process, or one per test for isolation.
type Client struct {
	backend Backend
	logger  *log.Logger
	group   singleflight.Group
	stats   stats
}

type stats struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	loads         atomic.Uint64
	invalidations atomic.Uint64
	staleServed   atomic.Uint64
	errors        atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the cache counters.
type StatsSnapshot struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Loads         uint64 `json:"loads"`
	Invalidations uint64 `json:"invalidations"`
	StaleServed   uint64 `json:"staleServed"`
	Errors        uint64 `json:"errors"`
}

// New creates a Client over backend.
func New(backend Backend, logger *log.Logger) *Client {
	if backend == nil {
		panic("cache.New: backend is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{backend: backend, logger: logger}
}

// Invalidate marks key stale so the next Fetch reloads it.
func (c *Client) Invalidate(ctx context.Context, key string) error {
	if err := c.backend.Invalidate(ctx, key); err != nil {
		c.stats.errors.Add(1)
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	c.stats.invalidations.Add(1)
	c.logger.WithField("key", key).Debug("cache.invalidate")
	return nil
}

// Stats returns the current counters.
func (c *Client) Stats() StatsSnapshot {
	return StatsSnapshot{
		Hits:          c.stats.hits.Load(),
		Misses:        c.stats.misses.Load(),
		Loads:         c.stats.loads.Load(),
		Invalidations: c.stats.invalidations.Load(),
		StaleServed:   c.stats.staleServed.Load(),
		Errors:        c.stats.errors.Load(),
	}
}

// Snapshot is the outcome of a Fetch. When Stale is set the value is the last
// successfully fetched one and Err holds the reason the refetch failed.
type Snapshot[T any] struct {
	Value T
	Stale bool
	Err   error
}

// Fetch returns the value for key, calling load when the entry is missing or
// stale. Concurrent misses for the same key and generation share one load.
// An error is returned only when load fails and no earlier value exists, or
// when ctx ends first; the shared load keeps running for the other callers.
func Fetch[T any](ctx context.Context, c *Client, key string, load func(context.Context) (T, error)) (Snapshot[T], error) {
	entry, found, gen, err := c.backend.Load(ctx, key)
	canStore := true
	if err != nil {
		// Backend trouble degrades to an uncached read.
		c.stats.errors.Add(1)
		c.logger.WithError(err).WithField("key", key).Warn("cache load failed")
		found, canStore = false, false
	}

	if found && entry.Fresh {
		var v T
		if err := sonic.Unmarshal(entry.Data, &v); err == nil {
			c.stats.hits.Add(1)
			return Snapshot[T]{Value: v}, nil
		}
		c.stats.errors.Add(1)
		c.logger.WithField("key", key).Warn("cache entry undecodable, reloading")
		found = false
	}
	c.stats.misses.Add(1)

	ch := c.group.DoChan(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		// The load is shared, so one caller going away must not cancel it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		c.stats.loads.Add(1)
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		data, err := sonic.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		if canStore {
			stored, err := c.backend.Store(loadCtx, key, data, gen)
			if err != nil {
				c.stats.errors.Add(1)
				c.logger.WithError(err).WithField("key", key).Warn("cache store failed")
			} else if !stored {
				c.logger.WithField("key", key).Debug("cache.store.superseded")
			}
		}
		return data, nil
	})
	var data any
	select {
	case <-ctx.Done():
		return Snapshot[T]{}, ctx.Err()
	case res := <-ch:
		data, err = res.Val, res.Err
	}
	if err != nil {
		if found {
			var stale T
			if derr := sonic.Unmarshal(entry.Data, &stale); derr == nil {
				c.stats.staleServed.Add(1)
				return Snapshot[T]{Value: stale, Stale: true, Err: err}, nil
			}
		}
		return Snapshot[T]{}, err
	}

	var v T
	if err := sonic.Unmarshal(data.([]byte), &v); err != nil {
		return Snapshot[T]{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return Snapshot[T]{Value: v}, nil
}
