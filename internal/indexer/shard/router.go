// Package shard provides hash-based shard routing for index engines. Each
// shard owns an independent indexer.Engine backed by its own data directory,
// documents are placed by hashing their key, and searches fan out to every
// shard before the per-shard rankings are merged.
package shard

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/metrics"
)

// Router maps documents to dedicated indexer.Engine instances.
type Router struct {
	engines []*indexer.Engine
	logger  *slog.Logger
}

// NewRouter creates cfg.Shards engines, each in its own sub-directory under
// cfg.DataDir. m may be nil.
func NewRouter(cfg config.IndexConfig, m *metrics.Metrics) (*Router, error) {
	if cfg.Shards < 1 {
		return nil, fmt.Errorf("shard count must be positive, got %d", cfg.Shards)
	}
	r := &Router{
		engines: make([]*indexer.Engine, 0, cfg.Shards),
		logger:  slog.Default().With("component", "shard-router"),
	}
	for i := 0; i < cfg.Shards; i++ {
		shardCfg := cfg
		if cfg.DataDir != "" {
			shardCfg.DataDir = filepath.Join(cfg.DataDir, fmt.Sprintf("shard-%d", i))
		}
		var opts []indexer.Option
		if m != nil {
			opts = append(opts, indexer.WithMetrics(m, strconv.Itoa(i)))
		}
		engine, err := indexer.NewEngine(shardCfg, opts...)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		r.engines = append(r.engines, engine)
		r.logger.Info("shard engine initialized",
			"shard_id", i,
			"data_dir", shardCfg.DataDir,
		)
	}
	if m != nil {
		m.ActiveShards.Set(float64(len(r.engines)))
	}
	r.logger.Info("shard router ready", "num_shards", len(r.engines))
	return r, nil
}

// ShardFor returns the shard that owns docID.
func (r *Router) ShardFor(docID string) int {
	return int(xxhash.Sum64String(docID) % uint64(len(r.engines)))
}

// Route returns the Engine that owns docID.
func (r *Router) Route(docID string) *indexer.Engine {
	return r.engines[r.ShardFor(docID)]
}

// Engine returns the Engine for a shard ID.
func (r *Router) Engine(shardID int) (*indexer.Engine, error) {
	if shardID < 0 || shardID >= len(r.engines) {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shardID, len(r.engines)-1)
	}
	return r.engines[shardID], nil
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return len(r.engines)
}

func (r *Router) IndexDocument(docID string, doc indexer.Document) error {
	return r.Route(docID).IndexDocument(docID, doc)
}

func (r *Router) ReplaceDocument(docID string, doc indexer.Document) error {
	return r.Route(docID).ReplaceDocument(docID, doc)
}

func (r *Router) RemoveDocument(docID string) error {
	return r.Route(docID).RemoveDocument(docID)
}

// Vacuum vacuums every shard and returns the combined work done.
func (r *Router) Vacuum() index.VacuumStats {
	var total index.VacuumStats
	for _, engine := range r.engines {
		s := engine.Vacuum()
		total.PostingsPurged += s.PostingsPurged
		total.NodesPruned += s.NodesPruned
		total.DocumentsPurged += s.DocumentsPurged
	}
	return total
}

// Search queries every shard concurrently and merges their rankings. Each
// shard scores with its own statistics.
func (r *Router) Search(ctx context.Context, text string, limit int) (*executor.SearchResult, error) {
	results := make([]*executor.SearchResult, len(r.engines))
	g, gctx := errgroup.WithContext(ctx)
	for i, engine := range r.engines {
		i, engine := i, engine
		g.Go(func() error {
			res, err := engine.Search(gctx, text, limit)
			if err != nil {
				return fmt.Errorf("searching shard %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &executor.SearchResult{
		Query:     text,
		TermStats: make(map[string]int),
	}
	ranked := make([][]ranker.ScoredDoc, 0, len(results))
	for _, res := range results {
		merged.TotalHits += res.TotalHits
		for term, n := range res.TermStats {
			merged.TermStats[term] += n
		}
		ranked = append(ranked, res.Results)
	}
	merged.Results = merger.Merge(ranked, limit)
	return merged, nil
}

// Generation is the sum of the shard generations, so it grows whenever any
// shard changes.
func (r *Router) Generation() uint64 {
	var total uint64
	for _, engine := range r.engines {
		total += engine.Generation()
	}
	return total
}

// Version joins the shard versions in shard order. It changes whenever any
// shard's content does and is shared by routers over the same snapshots.
func (r *Router) Version() string {
	versions := make([]string, len(r.engines))
	for i, engine := range r.engines {
		versions[i] = engine.Version()
	}
	return strings.Join(versions, ",")
}

// Stats returns per-shard statistics in shard order.
func (r *Router) Stats() []indexer.Stats {
	stats := make([]indexer.Stats, len(r.engines))
	for i, engine := range r.engines {
		stats[i] = engine.Stats()
	}
	return stats
}

// FlushAll snapshots every shard, returning all failures.
func (r *Router) FlushAll() error {
	var result *multierror.Error
	for id, engine := range r.engines {
		if err := engine.Flush(); err != nil {
			r.logger.Error("flush failed", "shard_id", id, "error", err)
			result = multierror.Append(result, fmt.Errorf("shard %d: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}

// ReloadAll tells every shard engine to pick up its newest snapshot and
// returns how many shards reloaded.
func (r *Router) ReloadAll() (int, error) {
	var result *multierror.Error
	reloaded := 0
	for id, engine := range r.engines {
		ok, err := engine.ReloadLatest()
		if err != nil {
			r.logger.Error("reload failed", "shard_id", id, "error", err)
			result = multierror.Append(result, fmt.Errorf("shard %d: %w", id, err))
			continue
		}
		if ok {
			reloaded++
		}
	}
	return reloaded, result.ErrorOrNil()
}

// StartReloadLoop starts the periodic snapshot reload of every shard.
func (r *Router) StartReloadLoop(ctx context.Context) {
	for _, engine := range r.engines {
		engine.StartReloadLoop(ctx)
	}
}

// Close flushes and closes every shard engine.
func (r *Router) Close() error {
	return r.closeAll()
}

func (r *Router) closeAll() error {
	var result *multierror.Error
	for id, engine := range r.engines {
		if err := engine.Close(); err != nil {
			r.logger.Error("close failed", "shard_id", id, "error", err)
			result = multierror.Append(result, fmt.Errorf("shard %d: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}
