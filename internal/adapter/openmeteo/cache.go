package openmeteo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/heat-forecast/internal/domain"
	"github.com/couchcryptid/heat-forecast/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedForecaster wraps a Forecaster with an in-memory LRU cache whose
// entries expire after ttl. Failed fetches are never cached.
type CachedForecaster struct {
	inner   domain.Forecaster
	cache   *lruCache
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedForecaster creates a cache decorator around inner. A nil clock
// uses real time.
func NewCachedForecaster(inner domain.Forecaster, ttl time.Duration, maxEntries int, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *CachedForecaster {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &CachedForecaster{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
		logger:  logger.With("component", "forecast_cache"),
	}
}

func (c *CachedForecaster) Fetch(ctx context.Context, coord domain.Coordinate, spec domain.VariableSpec, window domain.Window) (domain.RawForecast, error) {
	key := cacheKey(coord, spec, window)
	now := c.clock.Now()

	e, ok := c.cache.get(key)
	switch {
	case ok && now.Sub(e.fetchedAt) < c.ttl:
		c.metrics.ForecastCache.WithLabelValues("hit").Inc()
		c.logger.Debug("forecast cache hit", "key", key)
		return e.value, nil
	case ok:
		c.metrics.ForecastCache.WithLabelValues("stale").Inc()
	default:
		c.metrics.ForecastCache.WithLabelValues("miss").Inc()
	}

	raw, err := c.inner.Fetch(ctx, coord, spec, window)
	if err != nil {
		if ok {
			c.cache.remove(key)
			c.logger.Warn("forecast cache refresh failed", "key", key, "error", err)
		}
		return raw, err
	}
	c.cache.put(key, raw, now)
	return raw, nil
}

// Len returns the number of cached entries, fresh or stale.
func (c *CachedForecaster) Len() int {
	return c.cache.len()
}

// cacheKey uses the coordinate at full precision, matching the request.
func cacheKey(coord domain.Coordinate, spec domain.VariableSpec, window domain.Window) string {
	return fmt.Sprintf("%s,%s|%s|%d/%d/%s",
		strconv.FormatFloat(coord.Lat, 'f', -1, 64), strconv.FormatFloat(coord.Lon, 'f', -1, 64),
		strings.Join(spec.Keys(), ","), window.PastSteps, window.ForecastSteps, window.Interval)
}

// lruCache is a thread-safe LRU of RawForecasts stamped with their fetch time.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     domain.RawForecast
	fetchedAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

// get returns a copy of the entry so callers never race with put.
func (c *lruCache) get(key string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	c.moveToFront(e)
	return entry{key: e.key, value: e.value, fetchedAt: e.fetchedAt}, true
}

func (c *lruCache) put(key string, value domain.RawForecast, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.fetchedAt = at
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, fetchedAt: at}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.unlink(e)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
