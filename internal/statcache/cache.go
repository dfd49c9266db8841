// Package statcache memoizes expensive aggregation results for a bounded
// freshness window.
package statcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eventtriage/internal/logger"
	"eventtriage/internal/metrics"
)

// ErrCacheCompute marks errors produced by a compute function.
var ErrCacheCompute = errors.New("cache compute failed")

// ComputeError wraps the failure of the compute function for Key.
type ComputeError struct {
	Key string
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute %s: %v", e.Key, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// Is lets callers test for ErrCacheCompute while the cause stays reachable
// through Unwrap.
func (e *ComputeError) Is(target error) bool { return target == ErrCacheCompute }

// Cache is a cache-aside wrapper over a Backend. A nil backend disables
// caching: every lookup computes.
//
// Reads hold a shared lock for the whole lookup-or-compute. Mutate holds the
// exclusive lock across a write and the invalidation that follows it, so no
// reader can store a value computed from pre-write data after the flush.
type Cache struct {
	backend Backend
	mu      sync.RWMutex
	group   singleflight.Group
	now     func() time.Time
}

// New constructs a cache over backend.
func New(backend Backend) *Cache {
	return &Cache{backend: backend, now: time.Now}
}

// Enabled reports whether results are persisted.
func (c *Cache) Enabled() bool {
	return c != nil && c.backend != nil
}

// SetClock overrides the time source.
func (c *Cache) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// GetOrCompute returns the stored value for key while it is younger than ttl,
// otherwise it calls fn, stores the result and returns it. Failed computes are
// not stored. Concurrent misses for the same key share one fn call.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	name := metricName(key)
	if !c.Enabled() {
		v, err := fn(ctx)
		if err != nil {
			var zero T
			return zero, &ComputeError{Key: key, Err: err}
		}
		return v, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := lookup[T](ctx, c, key, ttl); ok {
		metrics.CacheRequests.WithLabelValues(name, "hit").Inc()
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			logger.Warnf("Stat cache encode failed: key=%s err=%v", key, err)
			return v, nil
		}
		if err := c.backend.Set(ctx, key, Entry{Value: data, ComputedAt: c.now()}); err != nil {
			logger.Warnf("Stat cache store failed: key=%s err=%v", key, err)
		}
		return v, nil
	})
	if err != nil {
		metrics.CacheRequests.WithLabelValues(name, "error").Inc()
		var zero T
		return zero, &ComputeError{Key: key, Err: err}
	}
	metrics.CacheRequests.WithLabelValues(name, "miss").Inc()

	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, &ComputeError{Key: key, Err: fmt.Errorf("unexpected cached type %T", res)}
	}
	return v, nil
}

func lookup[T any](ctx context.Context, c *Cache, key string, ttl time.Duration) (T, bool) {
	var zero T
	e, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		logger.Warnf("Stat cache read failed: key=%s err=%v", key, err)
		return zero, false
	}
	if !ok || c.now().Sub(e.ComputedAt) >= ttl {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(e.Value, &v); err != nil {
		logger.Warnf("Stat cache decode failed: key=%s err=%v", key, err)
		return zero, false
	}
	return v, true
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidateLocked(ctx)
}

// Mutate runs fn and, when it succeeds, invalidates every entry before any
// reader can proceed.
func (c *Cache) Mutate(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.Enabled() {
		return fn(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := fn(ctx); err != nil {
		return err
	}
	return c.invalidateLocked(ctx)
}

func (c *Cache) invalidateLocked(ctx context.Context) error {
	if err := c.backend.DeleteAll(ctx); err != nil {
		return fmt.Errorf("invalidate stat cache: %w", err)
	}
	metrics.CacheInvalidations.Inc()
	logger.Debugf("Stat cache invalidated")
	return nil
}

// Close releases the backend.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.backend.Close()
}

// Key builds a cache key from an aggregation name and its parameters.
// Empty parameters render as "all".
func Key(name string, params ...any) string {
	if len(params) == 0 {
		return name
	}
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, name)
	for _, p := range params {
		s := strings.TrimSpace(fmt.Sprint(p))
		if s == "" || s == "<nil>" {
			s = "all"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ":")
}

func metricName(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
