// Package cache memoises search results in Redis. Keys include the index
// version, which names the loaded snapshots, so a reload or a restart over
// newer snapshots makes older entries unreachable without an explicit flush.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/resilience"
)

const (
	keyPrefix   = "search:"
	breakerName = "query-cache"
)

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	isMiss  func(error) bool
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache over store. isMiss reports whether a Get error means
// the key is absent rather than a failure. Repeated store failures open a
// circuit breaker, and while it is open every lookup is a plain miss.
func New(store Store, ttl time.Duration, isMiss func(error) bool, m *metrics.Metrics) *QueryCache {
	breakerCfg := resilience.CircuitBreakerConfig{}
	if m != nil {
		m.CircuitState.WithLabelValues(breakerName).Set(float64(resilience.StateClosed))
		breakerCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		isMiss:  isMiss,
		breaker: resilience.NewCircuitBreaker(breakerName, breakerCfg),
		logger:  slog.Default().With("component", "query-cache"),
		metrics: m,
	}
}

func (c *QueryCache) Get(ctx context.Context, version string, query string, limit int) (*executor.SearchResult, bool) {
	key := buildKey(version, query, limit)
	var (
		data   string
		absent bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if err != nil && c.isMiss(err) {
			absent = true
			return nil
		}
		return err
	})
	if err != nil || absent {
		if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, version string, query string, limit int, result *executor.SearchResult) {
	key := buildKey(version, query, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes, stores and returns it.
// Concurrent misses for the same key share one computation. The bool is true
// on a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	version string,
	query string,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, version, query, limit); ok {
		return result, true, nil
	}
	key := buildKey(version, query, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, version, query, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

// Available reports whether the store is currently being consulted.
func (c *QueryCache) Available() bool {
	return c.breaker.GetState() != resilience.StateOpen
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(version, query string, limit int) string {
	raw := fmt.Sprintf("%s|%s|limit=%d", version, normalizeQuery(query), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery lower-cases and sorts the query words. Scores are sums over
// query terms, so word order never changes a result.
func normalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	sort.Strings(words)
	return strings.Join(words, " ")
}
