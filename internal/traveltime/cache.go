// Package traveltime memoizes driving durations between address pairs and
// absorbs provider failures into a fallback.
package traveltime

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"shootday/internal/metrics"
)

// Source tells where an estimate came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceFresh    Source = "fresh"
	SourceFallback Source = "fallback"
)

// Estimate is the result of one lookup. Minutes is zero for fallback.
type Estimate struct {
	Minutes int    `json:"minutes"`
	Source  Source `json:"source"`
}

// Or returns the estimated minutes, or def when the lookup fell back.
func (e Estimate) Or(def int) int {
	if e.Source == SourceFallback {
		return def
	}
	return e.Minutes
}

// Provider computes a fresh duration. Any error counts as an estimation failure.
type Provider interface {
	TravelMinutes(ctx context.Context, origin, destination string) (int, error)
}

// Options hold the cache policy.
type Options struct {
	OKTTL     time.Duration
	FailedTTL time.Duration
	Timeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.OKTTL <= 0 {
		o.OKTTL = 30 * 24 * time.Hour
	}
	if o.FailedTTL <= 0 {
		o.FailedTTL = time.Hour
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	return o
}

// Cache is safe for concurrent use. Concurrent misses on one key share a
// single provider call.
type Cache struct {
	store    Store
	provider Provider
	clock    clock.Clock
	opts     Options
	group    singleflight.Group
	log      *zap.Logger

	// failures remembers failed attempts in process so the negative cache
	// still holds while the store is unreachable.
	failures *gocache.Cache
}

// New creates a cache. A nil provider makes every miss a fallback.
func New(store Store, provider Provider, clk clock.Clock, opts Options, log *zap.Logger) *Cache {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Cache{
		store:    store,
		provider: provider,
		clock:    clk,
		opts:     opts,
		log:      log,
		failures: gocache.New(opts.FailedTTL, 10*time.Minute),
	}
}

// Estimate returns the driving minutes from origin to destination. It never
// fails: store errors, provider errors and timeouts all yield SourceFallback.
func (c *Cache) Estimate(ctx context.Context, origin, destination string) Estimate {
	est := c.estimate(ctx, origin, destination)
	metrics.TravelEstimates.WithLabelValues(string(est.Source)).Inc()
	return est
}

func (c *Cache) estimate(ctx context.Context, origin, destination string) Estimate {
	if Normalize(origin) == "" || Normalize(destination) == "" {
		return Estimate{Source: SourceFallback}
	}
	key := Key(origin, destination)

	if e, ok := c.lookup(ctx, key); ok {
		return cached(e)
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Another flight may have finished between our miss and joining
		// the group.
		rctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
		e, ok := c.lookup(rctx, key)
		cancel()
		if ok {
			return cached(e), nil
		}
		return c.refresh(key, origin, destination), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Estimate)
	case <-ctx.Done():
		return Estimate{Source: SourceFallback}
	}
}

func cached(e Entry) Estimate {
	if e.Status == StatusOK {
		return Estimate{Minutes: e.Minutes, Source: SourceCache}
	}
	return Estimate{Source: SourceFallback}
}

// lookup returns an entry still inside its staleness window. A failed
// attempt remembered in process counts when the store has nothing fresh.
func (c *Cache) lookup(ctx context.Context, key string) (Entry, bool) {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("travel cache read failed", zap.String("key", key), zap.Error(err))
		ok = false
	}
	if ok && c.fresh(e) {
		return e, true
	}
	if v, found := c.failures.Get(key); found {
		if f := v.(Entry); c.fresh(f) {
			return f, true
		}
	}
	return Entry{}, false
}

func (c *Cache) fresh(e Entry) bool {
	return c.clock.Now().Sub(e.ComputedAt) < c.ttl(e.Status)
}

func (c *Cache) ttl(s Status) time.Duration {
	if s == StatusOK {
		return c.opts.OKTTL
	}
	return c.opts.FailedTTL
}

type lookupResult struct {
	minutes int
	err     error
}

// refresh runs detached from any caller so one cancelled request does not
// fail the others waiting on the same key. A result arriving after the
// timeout is dropped.
func (c *Cache) refresh(key, origin, destination string) Estimate {
	started := c.clock.Now()
	if c.provider == nil {
		c.write(key, Entry{ComputedAt: started, Status: StatusFailed})
		return Estimate{Source: SourceFallback}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()

	done := make(chan lookupResult, 1)
	wall := time.Now()
	go func() {
		m, err := c.provider.TravelMinutes(ctx, origin, destination)
		done <- lookupResult{minutes: m, err: err}
	}()

	var res lookupResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = lookupResult{err: ctx.Err()}
	}
	metrics.ProviderLatency.Observe(time.Since(wall).Seconds())

	if res.err == nil && ctx.Err() != nil {
		res.err = ctx.Err()
	}
	if res.err != nil {
		result := "error"
		if ctx.Err() != nil {
			result = "timeout"
		}
		metrics.ProviderCalls.WithLabelValues(result).Inc()
		c.log.Warn("travel estimate failed",
			zap.String("key", key),
			zap.String("result", result),
			zap.Error(res.err),
		)
		c.write(key, Entry{ComputedAt: started, Status: StatusFailed})
		return Estimate{Source: SourceFallback}
	}

	metrics.ProviderCalls.WithLabelValues("ok").Inc()
	c.write(key, Entry{Minutes: res.minutes, ComputedAt: started, Status: StatusOK})
	return Estimate{Minutes: res.minutes, Source: SourceFresh}
}

func (c *Cache) write(key string, e Entry) {
	if e.Status == StatusFailed {
		c.failures.SetDefault(key, e)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()
	wrote, err := c.store.PutIfNewer(ctx, key, e, c.ttl(e.Status))
	if err != nil {
		c.log.Warn("travel cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	if !wrote {
		c.log.Debug("travel cache write skipped, newer entry present", zap.String("key", key))
	}
}
