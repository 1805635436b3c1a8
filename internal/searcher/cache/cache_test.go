package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/resilience"
)

var errNotFound = errors.New("not found")

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", errNotFound
	}
	return v, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memoryStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func newCache(store Store) *QueryCache {
	return New(store, time.Minute, func(err error) bool { return errors.Is(err, errNotFound) }, nil)
}

func result(docID string) *executor.SearchResult {
	return &executor.SearchResult{
		Query:     "q",
		TotalHits: 1,
		Results:   []ranker.ScoredDoc{{DocID: docID, Score: 1.5}},
		TermStats: map[string]int{"q": 1},
	}
}

func TestGetOrComputeCachesByVersion(t *testing.T) {
	c := newCache(newMemoryStore())
	ctx := context.Background()
	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return result("a"), nil
	}

	res, hit, err := c.GetOrCompute(ctx, "v1", "Hello World", 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "a", res.Results[0].DocID)

	res, hit, err = c.GetOrCompute(ctx, "v1", "world  hello", 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, result("a"), res)
	assert.Equal(t, 1, calls)

	_, hit, err = c.GetOrCompute(ctx, "v2", "hello world", 10, compute)
	require.NoError(t, err)
	assert.False(t, hit, "a new index version misses")
	_, hit, err = c.GetOrCompute(ctx, "v2", "hello world", 5, compute)
	require.NoError(t, err)
	assert.False(t, hit, "the limit is part of the key")
	assert.Equal(t, 3, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(3), misses)
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := newCache(newMemoryStore())
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "v1", "q", 10, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), "v1", "q", 10)
	assert.False(t, ok)
}

func TestConcurrentMissesShareOneComputation(t *testing.T) {
	c := newCache(newMemoryStore())
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return result("a"), nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "v1", "shared", 10, compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvalidate(t *testing.T) {
	store := newMemoryStore()
	c := newCache(store)
	ctx := context.Background()
	c.Set(ctx, "v1", "a", 10, result("a"))
	c.Set(ctx, "v1", "b", 10, result("b"))

	deleted, err := c.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	_, ok := c.Get(ctx, "v1", "a", 10)
	assert.False(t, ok)
}

type downStore struct{ calls atomic.Int32 }

func (s *downStore) Get(context.Context, string) (string, error) {
	s.calls.Add(1)
	return "", errors.New("connection refused")
}

func (s *downStore) Set(context.Context, string, interface{}, time.Duration) error {
	s.calls.Add(1)
	return errors.New("connection refused")
}

func (s *downStore) FlushByPattern(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestFailingStoreOpensBreaker(t *testing.T) {
	store := &downStore{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(store, time.Minute, func(err error) bool { return errors.Is(err, errNotFound) }, m)
	ctx := context.Background()
	compute := func() (*executor.SearchResult, error) { return result("a"), nil }

	for i := 0; i < 3; i++ {
		res, hit, err := c.GetOrCompute(ctx, "v1", "q", 10, compute)
		require.NoError(t, err, "store failures fall through to the computation")
		assert.False(t, hit)
		assert.Equal(t, "a", res.Results[0].DocID)
	}
	assert.False(t, c.Available())
	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(m.CircuitState.WithLabelValues("query-cache")))

	before := store.calls.Load()
	_, _, err := c.GetOrCompute(ctx, "v1", "q", 10, compute)
	require.NoError(t, err)
	assert.Equal(t, before, store.calls.Load(), "an open breaker skips the store")
}

func TestRestartOverNewerSnapshotMisses(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultIndexConfig()
	cfg.DataDir = dir
	cfg.Fields = []config.FieldConfig{{Name: "title", Boost: 1}}
	ctx := context.Background()
	store := newMemoryStore()

	writer, err := indexer.NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, writer.IndexDocument("1", indexer.Document{"title": "alpha"}))
	require.NoError(t, writer.Flush())

	search := func(e *indexer.Engine) (*executor.SearchResult, bool) {
		res, hit, err := newCache(store).GetOrCompute(ctx, e.Version(), "alpha", 10, func() (*executor.SearchResult, error) {
			return e.Search(ctx, "alpha", 10)
		})
		require.NoError(t, err)
		return res, hit
	}

	before, err := indexer.NewEngine(cfg)
	require.NoError(t, err)
	res, hit := search(before)
	assert.False(t, hit)
	assert.Equal(t, 1, res.TotalHits)

	require.NoError(t, writer.IndexDocument("2", indexer.Document{"title": "alpha"}))
	require.NoError(t, writer.Flush())

	after, err := indexer.NewEngine(cfg)
	require.NoError(t, err)
	require.Equal(t, before.Generation(), after.Generation())
	res, hit = search(after)
	assert.False(t, hit, "entries cached before the restart belong to the older snapshot")
	assert.Equal(t, 2, res.TotalHits)

	res, hit = search(after)
	assert.True(t, hit)
	assert.Equal(t, 2, res.TotalHits)
}
